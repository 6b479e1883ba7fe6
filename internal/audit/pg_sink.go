package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/hackgods/dental-booking-engine/internal/db"
)

// PgSink appends events to the event_logs table.
type PgSink struct {
	db db.DBTX
}

func NewPgSink(conn db.DBTX) *PgSink {
	return &PgSink{db: conn}
}

func (s *PgSink) Record(ctx context.Context, ev Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, waitlist_entry_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.WaitlistEntryID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
