package memstore

import (
	"context"

	"github.com/hackgods/dental-booking-engine/internal/audit"
)

type AuditSink struct {
	s *Store
}

func (a *AuditSink) Record(ctx context.Context, ev audit.Event) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	a.s.nextEventID++
	ev.ID = a.s.nextEventID
	a.s.events = append(a.s.events, ev)
	return nil
}

// Events returns a copy of everything recorded so far, oldest first.
func (a *AuditSink) Events() []audit.Event {
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	out := make([]audit.Event, len(a.s.events))
	copy(out, a.s.events)
	return out
}

// EventTypes lists recorded event types in order.
func (a *AuditSink) EventTypes() []string {
	events := a.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.EventType
	}
	return out
}
