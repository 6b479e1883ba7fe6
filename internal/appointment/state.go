package appointment

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrIllegalState            = errors.New("illegal appointment state")
)

// State is the composite of an appointment's status and its two payment axes.
type State struct {
	Status  Status
	Payment PaymentStatus
	Service ServicePaymentStatus
}

var statusTransitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
}

var reservationTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:         {PaymentReservationPaid},
	PaymentReservationPaid: {PaymentFullyPaid, PaymentRefunded},
	PaymentFullyPaid:       {PaymentRefunded},
}

var serviceTransitions = map[ServicePaymentStatus][]ServicePaymentStatus{
	ServicePaymentPending: {ServicePaymentPaid, ServicePaymentWaived},
}

func allowed[T comparable](table map[T][]T, from, to T) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether the status axis may move from -> to.
func CanTransition(from, to Status) bool {
	return allowed(statusTransitions, from, to)
}

// CanTransitionPayment reports whether the reservation axis may move from -> to.
func CanTransitionPayment(from, to PaymentStatus) bool {
	return allowed(reservationTransitions, from, to)
}

// CanTransitionServicePayment reports whether the service axis may move from -> to.
func CanTransitionServicePayment(from, to ServicePaymentStatus) bool {
	return allowed(serviceTransitions, from, to)
}

// IsTerminal reports whether no further status transition exists.
func (s Status) IsTerminal() bool {
	return len(statusTransitions[s]) == 0
}

// IsActive reports whether the appointment occupies its slot.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanReschedule reports whether the appointment's time may still move.
func (s Status) CanReschedule() bool {
	return s.IsActive()
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentReservationPaid, PaymentFullyPaid, PaymentRefunded:
		return true
	}
	return false
}

func (p ServicePaymentStatus) Valid() bool {
	switch p {
	case ServicePaymentPending, ServicePaymentPaid, ServicePaymentWaived:
		return true
	}
	return false
}

// Validate rejects combinations of the three axes that must never be stored.
func (s State) Validate() error {
	switch {
	case !s.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrIllegalState, s.Status)
	case !s.Payment.Valid():
		return fmt.Errorf("%w: unknown payment status %q", ErrIllegalState, s.Payment)
	case !s.Service.Valid():
		return fmt.Errorf("%w: unknown service payment status %q", ErrIllegalState, s.Service)
	case s.Payment == PaymentRefunded && s.Status != StatusCancelled:
		return fmt.Errorf("%w: refunded reservation on a %s appointment", ErrIllegalState, s.Status)
	case s.Status == StatusCancelled && s.Payment == PaymentFullyPaid:
		return fmt.Errorf("%w: cancelled appointment still fully paid", ErrIllegalState)
	}
	return nil
}

// Validate checks the appointment's own invariants. serviceDuration is the
// catalog duration for its service; pass 0 to skip that check.
func (a *Appointment) Validate(serviceDuration int) error {
	if err := a.State().Validate(); err != nil {
		return err
	}
	if a.EndTime <= a.StartTime {
		return fmt.Errorf("%w: end %s not after start %s", ErrIllegalState, a.EndTime, a.StartTime)
	}
	if serviceDuration > 0 && a.DurationMinutes() != serviceDuration {
		return fmt.Errorf("%w: booked %d minutes for a %d minute service", ErrIllegalState, a.DurationMinutes(), serviceDuration)
	}
	if a.RescheduleCount < 0 || a.RescheduleCount > a.MaxReschedules {
		return fmt.Errorf("%w: reschedule count %d exceeds limit %d", ErrIllegalState, a.RescheduleCount, a.MaxReschedules)
	}
	if a.PaymentAmount < 0 || a.ServicePaymentAmount < 0 {
		return fmt.Errorf("%w: negative paid amount", ErrIllegalState)
	}
	return nil
}
