package waitlist

import "time"

func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (p *Promoter) SetClock(now func() time.Time) {
	p.now = now
}
