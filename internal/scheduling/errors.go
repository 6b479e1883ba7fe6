package scheduling

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotUnavailable means the requested start is taken or not bookable.
	// Callers should re-query availability.
	ErrSlotUnavailable = errors.New("slot unavailable")
	// ErrScheduleNotFound means the provider has no working rule for that weekday.
	ErrScheduleNotFound = errors.New("no schedule for that day")
	// ErrInvalidDuration means the service duration cannot be scheduled at all.
	ErrInvalidDuration = errors.New("invalid service duration")
)

// MalformedRecordWarning describes a stored appointment that could not be
// read as an interval. It is logged and the record skipped.
type MalformedRecordWarning struct {
	AppointmentID string
	Field         string
	Value         string
	Reason        string
}

func (w MalformedRecordWarning) Error() string {
	return fmt.Sprintf("malformed appointment %s: %s=%q: %s", w.AppointmentID, w.Field, w.Value, w.Reason)
}
