// Package payment tracks the two payment axes of an appointment: the
// reservation deposit and the point-of-service payment.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var (
	ErrRefundFromPending = errors.New("cannot refund a reservation that was never paid")
	ErrRefundExceedsPaid = errors.New("refund exceeds amount paid")
	ErrPartialRefund     = errors.New("refund must return the full reservation amount")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidAxis       = errors.New("unknown payment axis")

	// ErrPaymentStateConflict is shared with the appointment package, which
	// refuses to cancel fully paid bookings.
	ErrPaymentStateConflict = appointment.ErrPaymentStateConflict
)

type Axis string

const (
	AxisReservation Axis = "reservation"
	AxisService     Axis = "service"
)

func (a Axis) Valid() bool {
	return a == AxisReservation || a == AxisService
}

type Kind string

const (
	KindPayment Kind = "payment"
	KindRefund  Kind = "refund"
	KindWaiver  Kind = "waiver"
)

// Record is one immutable ledger row.
type Record struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Axis          Axis      `json:"axis"`
	Kind          Kind      `json:"kind"`
	Amount        int64     `json:"amount"`
	Method        string    `json:"method,omitempty"`
	Note          string    `json:"note,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Change is a conditional rewrite of an appointment's payment columns
// together with the ledger record it produces. It applies only while the
// row is still in Expected.
type Change struct {
	Expected             appointment.State
	Next                 appointment.State
	PaymentAmount        int64
	ServicePaymentAmount int64
	RefundedAmount       int64
	CancelledBy          *appointment.Initiator
	CancelReason         *string
	Record               Record
}

// Store persists payment changes. Apply writes the appointment update and
// the record atomically and returns appointment.ErrConcurrentModification
// when the row moved on.
type Store interface {
	Apply(ctx context.Context, appointmentID uuid.UUID, change Change) (*appointment.Appointment, error)
	ListRecords(ctx context.Context, appointmentID uuid.UUID) ([]Record, error)
	RecordsForDate(ctx context.Context, date scheduling.Date) ([]Record, error)
}

// Revenue is the money collected for appointments on one date.
type Revenue struct {
	Date        scheduling.Date `json:"date"`
	Reservation int64           `json:"reservation"`
	Service     int64           `json:"service"`
	Refunded    int64           `json:"refunded"`
	Net         int64           `json:"net"`
}

// Summarize folds ledger records into revenue totals.
func Summarize(date scheduling.Date, records []Record) Revenue {
	rev := Revenue{Date: date}
	for _, r := range records {
		switch {
		case r.Kind == KindPayment && r.Axis == AxisReservation:
			rev.Reservation += r.Amount
		case r.Kind == KindPayment && r.Axis == AxisService:
			rev.Service += r.Amount
		case r.Kind == KindRefund:
			rev.Refunded += r.Amount
		}
	}
	rev.Net = rev.Reservation + rev.Service - rev.Refunded
	return rev
}
