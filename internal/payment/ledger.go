package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/observability/metrics"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var tracer = otel.Tracer("dental.internal.payment")

type appointmentReader interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// Releaser runs the follow-up of a cancellation. *appointment.Service
// implements it.
type Releaser interface {
	Released(ctx context.Context, before, after *appointment.Appointment, by appointment.Initiator, reason string)
}

// RefundRequest describes a reservation refund. With CancelIfActive an
// active appointment is cancelled in the same write.
type RefundRequest struct {
	Amount         int64
	CancelIfActive bool
	By             appointment.Initiator
	Reason         string
}

type Ledger struct {
	appts    appointmentReader
	store    Store
	releaser Releaser
	recorder *audit.Recorder
	metrics  *metrics.BookingMetrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewLedger(appts appointmentReader, store Store, releaser Releaser, recorder *audit.Recorder, m *metrics.BookingMetrics, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		appts:    appts,
		store:    store,
		releaser: releaser,
		recorder: recorder,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// RecordPayment takes money on one axis. Reservation payments move
// pending -> reservation_paid -> fully_paid and need an active appointment.
// Service payments move pending -> paid and need a confirmed or completed one.
func (l *Ledger) RecordPayment(ctx context.Context, id uuid.UUID, axis Axis, amount int64, method string) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "payment.RecordPayment")
	defer span.End()
	span.SetAttributes(attribute.String("axis", string(axis)), attribute.Int64("amount", amount))

	if !axis.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAxis, axis)
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	appt, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}

	change := l.baseChange(appt)
	switch axis {
	case AxisReservation:
		if !appt.Status.IsActive() {
			return nil, fmt.Errorf("%w: reservation payment on a %s appointment", ErrPaymentStateConflict, appt.Status)
		}
		if appt.Stale(l.now()) {
			return nil, appointment.ErrAppointmentExpired
		}
		next := appointment.PaymentReservationPaid
		if appt.PaymentStatus == appointment.PaymentReservationPaid {
			next = appointment.PaymentFullyPaid
		}
		if !appointment.CanTransitionPayment(appt.PaymentStatus, next) {
			return nil, fmt.Errorf("%w: reservation is %s", ErrPaymentStateConflict, appt.PaymentStatus)
		}
		change.Next.Payment = next
		change.PaymentAmount += amount

	case AxisService:
		if appt.Status != appointment.StatusConfirmed && appt.Status != appointment.StatusCompleted {
			return nil, fmt.Errorf("%w: service payment on a %s appointment", ErrPaymentStateConflict, appt.Status)
		}
		if !appointment.CanTransitionServicePayment(appt.ServicePaymentStatus, appointment.ServicePaymentPaid) {
			return nil, fmt.Errorf("%w: service payment is %s", ErrPaymentStateConflict, appt.ServicePaymentStatus)
		}
		change.Next.Service = appointment.ServicePaymentPaid
		change.ServicePaymentAmount += amount
	}
	change.Record.Axis = axis
	change.Record.Kind = KindPayment
	change.Record.Amount = amount
	change.Record.Method = method

	updated, err := l.apply(ctx, appt, change)
	if err != nil {
		return nil, err
	}
	l.recorder.Appointment(ctx, updated.ID, audit.EventPaymentRecorded, map[string]any{
		"axis":   string(axis),
		"amount": amount,
		"method": method,
		"status": paymentStatusOf(updated, axis),
	})
	return updated, nil
}

// WaiveServicePayment closes the service axis without taking money.
func (l *Ledger) WaiveServicePayment(ctx context.Context, id uuid.UUID, reason string) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "payment.WaiveServicePayment")
	defer span.End()

	appt, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	switch appt.Status {
	case appointment.StatusConfirmed, appointment.StatusCompleted, appointment.StatusNoShow:
	default:
		return nil, fmt.Errorf("%w: cannot waive service payment on a %s appointment", ErrPaymentStateConflict, appt.Status)
	}
	if !appointment.CanTransitionServicePayment(appt.ServicePaymentStatus, appointment.ServicePaymentWaived) {
		return nil, fmt.Errorf("%w: service payment is %s", ErrPaymentStateConflict, appt.ServicePaymentStatus)
	}

	change := l.baseChange(appt)
	change.Next.Service = appointment.ServicePaymentWaived
	change.Record.Axis = AxisService
	change.Record.Kind = KindWaiver
	change.Record.Note = reason

	updated, err := l.apply(ctx, appt, change)
	if err != nil {
		return nil, err
	}
	l.recorder.Appointment(ctx, updated.ID, audit.EventServicePaymentWaived, map[string]any{"reason": reason})
	return updated, nil
}

// Refund returns the whole reservation amount paid. Refunds apply to cancelled appointments;
// with CancelIfActive an active appointment is cancelled by the same write
// and its slot is released.
func (l *Ledger) Refund(ctx context.Context, id uuid.UUID, req RefundRequest) (*appointment.Appointment, error) {
	ctx, span := tracer.Start(ctx, "payment.Refund")
	defer span.End()
	span.SetAttributes(attribute.Int64("amount", req.Amount), attribute.Bool("cancel_if_active", req.CancelIfActive))

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	appt, err := l.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PaymentStatus == appointment.PaymentPending {
		return nil, ErrRefundFromPending
	}
	if !appointment.CanTransitionPayment(appt.PaymentStatus, appointment.PaymentRefunded) {
		return nil, fmt.Errorf("%w: reservation is %s", ErrPaymentStateConflict, appt.PaymentStatus)
	}
	// refunded is terminal for the reservation axis, so one refund settles it
	outstanding := appt.PaymentAmount - appt.RefundedAmount
	if req.Amount > outstanding {
		return nil, fmt.Errorf("%w: %d requested, %d paid", ErrRefundExceedsPaid, req.Amount, outstanding)
	}
	if req.Amount < outstanding {
		return nil, fmt.Errorf("%w: %d requested, %d paid", ErrPartialRefund, req.Amount, outstanding)
	}

	change := l.baseChange(appt)
	change.Next.Payment = appointment.PaymentRefunded
	change.RefundedAmount += req.Amount

	cancelling := false
	if appt.Status != appointment.StatusCancelled {
		if !req.CancelIfActive || !appointment.CanTransition(appt.Status, appointment.StatusCancelled) {
			return nil, fmt.Errorf("%w: refund requires a cancelled appointment, got %s", ErrPaymentStateConflict, appt.Status)
		}
		by := req.By
		if !by.Valid() {
			by = appointment.InitiatorStaff
		}
		req.By = by
		change.Next.Status = appointment.StatusCancelled
		change.CancelledBy = &by
		if req.Reason != "" {
			change.CancelReason = &req.Reason
		}
		cancelling = true
	}
	change.Record.Axis = AxisReservation
	change.Record.Kind = KindRefund
	change.Record.Amount = req.Amount
	change.Record.Note = req.Reason

	updated, err := l.apply(ctx, appt, change)
	if err != nil {
		return nil, err
	}
	l.recorder.Appointment(ctx, updated.ID, audit.EventPaymentRefunded, map[string]any{
		"amount":    req.Amount,
		"cancelled": cancelling,
	})
	if cancelling {
		l.metrics.ObserveTransition(string(appt.Status), string(appointment.StatusCancelled))
		if l.releaser != nil {
			l.releaser.Released(ctx, appt, updated, req.By, req.Reason)
		}
	}
	return updated, nil
}

// Records lists the ledger rows of one appointment.
func (l *Ledger) Records(ctx context.Context, id uuid.UUID) ([]Record, error) {
	records, err := l.store.ListRecords(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list payment records: %w", err)
	}
	return records, nil
}

// NetRevenue sums reservation and service payments minus refunds for the
// appointments held on date.
func (l *Ledger) NetRevenue(ctx context.Context, date scheduling.Date) (Revenue, error) {
	records, err := l.store.RecordsForDate(ctx, date)
	if err != nil {
		return Revenue{}, fmt.Errorf("load payment records: %w", err)
	}
	return Summarize(date, records), nil
}

func (l *Ledger) load(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	appt, err := l.appts.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, appointment.ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

func (l *Ledger) baseChange(appt *appointment.Appointment) Change {
	return Change{
		Expected:             appt.State(),
		Next:                 appt.State(),
		PaymentAmount:        appt.PaymentAmount,
		ServicePaymentAmount: appt.ServicePaymentAmount,
		RefundedAmount:       appt.RefundedAmount,
		Record: Record{
			ID:            uuid.New(),
			AppointmentID: appt.ID,
			CreatedAt:     l.now().UTC(),
		},
	}
}

func (l *Ledger) apply(ctx context.Context, appt *appointment.Appointment, change Change) (*appointment.Appointment, error) {
	if err := change.Next.Validate(); err != nil {
		return nil, err
	}
	updated, err := l.store.Apply(ctx, appt.ID, change)
	if err != nil {
		return nil, err
	}
	l.metrics.ObservePayment(string(change.Record.Axis), string(change.Record.Kind))
	return updated, nil
}

func paymentStatusOf(a *appointment.Appointment, axis Axis) string {
	if axis == AxisService {
		return string(a.ServicePaymentStatus)
	}
	return string(a.PaymentStatus)
}
