package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// PaymentStatus is the reservation (deposit) axis.
type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "pending"
	PaymentReservationPaid PaymentStatus = "reservation_paid"
	PaymentFullyPaid       PaymentStatus = "fully_paid"
	PaymentRefunded        PaymentStatus = "refunded"
)

// ServicePaymentStatus is the point-of-service axis.
type ServicePaymentStatus string

const (
	ServicePaymentPending ServicePaymentStatus = "pending"
	ServicePaymentPaid    ServicePaymentStatus = "paid"
	ServicePaymentWaived  ServicePaymentStatus = "waived"
)

// Initiator says who asked for a cancellation.
type Initiator string

const (
	InitiatorPatient Initiator = "patient"
	InitiatorStaff   Initiator = "staff"
	InitiatorSystem  Initiator = "system"
)

func (i Initiator) Valid() bool {
	switch i {
	case InitiatorPatient, InitiatorStaff, InitiatorSystem:
		return true
	}
	return false
}

type Appointment struct {
	ID                   uuid.UUID
	ProviderID           uuid.UUID
	ServiceID            uuid.UUID
	UserID               uuid.UUID
	Date                 scheduling.Date
	StartTime            scheduling.TimeOfDay
	EndTime              scheduling.TimeOfDay
	Status               Status
	PaymentStatus        PaymentStatus
	ServicePaymentStatus ServicePaymentStatus
	PaymentAmount        int64
	ServicePaymentAmount int64
	RefundedAmount       int64
	ConfirmationNumber   string
	RescheduleCount      int
	MaxReschedules       int
	CancelledBy          *Initiator
	CancelReason         *string
	ExpiresAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// State is the composite of the three status axes.
func (a *Appointment) State() State {
	return State{Status: a.Status, Payment: a.PaymentStatus, Service: a.ServicePaymentStatus}
}

// DurationMinutes is the booked length.
func (a *Appointment) DurationMinutes() int {
	return int(a.EndTime - a.StartTime)
}

// Slot identifies the provider time an appointment occupies.
func (a *Appointment) Slot() Slot {
	return Slot{ProviderID: a.ProviderID, ServiceID: a.ServiceID, Date: a.Date, StartTime: a.StartTime}
}

// Slot is the (provider, service, date, time) tuple freed or taken by a booking.
type Slot struct {
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	Date       scheduling.Date
	StartTime  scheduling.TimeOfDay
}

// BookRequest is the input to Service.Book.
type BookRequest struct {
	ProviderID uuid.UUID
	ServiceID  uuid.UUID
	UserID     uuid.UUID
	Date       scheduling.Date
	StartTime  scheduling.TimeOfDay
}
