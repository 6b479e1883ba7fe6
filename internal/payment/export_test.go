package payment

import "time"

func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}
