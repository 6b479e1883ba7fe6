package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var (
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrAppointmentExpired      = errors.New("appointment has expired")
	ErrRescheduleLimitExceeded = errors.New("reschedule limit exceeded")
	ErrConcurrentModification  = errors.New("appointment was modified concurrently")
	ErrPaymentStateConflict    = errors.New("payment state conflict")
	ErrInvalidInitiator        = errors.New("invalid cancellation initiator")
)

// StatusChange is a conditional status update. It only applies while the
// row still has status From and reservation status Payment.
type StatusChange struct {
	From         Status
	To           Status
	Payment      PaymentStatus
	CancelledBy  *Initiator
	CancelReason *string
}

// Move is a conditional reschedule of one appointment.
type Move struct {
	ID              uuid.UUID
	Status          Status
	RescheduleCount int
	Date            scheduling.Date
	StartTime       scheduling.TimeOfDay
	EndTime         scheduling.TimeOfDay
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListForProviderDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]Appointment, error)

	// ActiveOccupancy lists the rows holding time on the provider's day.
	// Unpaid pending rows past their expiry do not count.
	ActiveOccupancy(ctx context.Context, providerID uuid.UUID, date scheduling.Date, now time.Time) ([]scheduling.Occupancy, error)

	// WithinDay runs fn while holding the exclusive write lock for the
	// provider's day. fn's writes commit together or not at all.
	WithinDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date, fn func(tx DayTx) error) error

	// UpdateStatus returns ErrConcurrentModification when the row no longer
	// matches the change's preconditions.
	UpdateStatus(ctx context.Context, id uuid.UUID, change StatusChange) (*Appointment, error)

	// Expiry worker
	FindExpiredPending(ctx context.Context, now time.Time) ([]Appointment, error)
}

// DayTx is the view of one provider day inside WithinDay.
type DayTx interface {
	// ExpirePending cancels unpaid pending rows past expiry and returns them.
	ExpirePending(ctx context.Context, now time.Time) ([]Appointment, error)
	ActiveOccupancy(ctx context.Context) ([]scheduling.Occupancy, error)
	Insert(ctx context.Context, a *Appointment) error
	Move(ctx context.Context, m Move) (*Appointment, error)
}

// Stale reports whether a pending booking has outlived its hold without
// any reservation payment.
func (a *Appointment) Stale(now time.Time) bool {
	return a.Status == StatusPending &&
		a.PaymentStatus == PaymentPending &&
		a.ExpiresAt != nil &&
		!now.Before(*a.ExpiresAt)
}

// ExpiredHold reports whether the appointment was cancelled by the pending
// expiry rather than by a person.
func (a *Appointment) ExpiredHold() bool {
	return a.Status == StatusCancelled &&
		a.CancelledBy != nil && *a.CancelledBy == InitiatorSystem &&
		a.CancelReason != nil && *a.CancelReason == ReasonExpired
}

// ReasonExpired is the cancel reason written by the pending expiry.
const ReasonExpired = "expired"
