package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/audit"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/config"
	"github.com/hackgods/dental-booking-engine/internal/notify"
	"github.com/hackgods/dental-booking-engine/internal/observability/metrics"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

var tracer = otel.Tracer("dental.internal.appointment")

// SlotListener is told when booked time is released or taken. The waitlist
// promoter implements it.
type SlotListener interface {
	SlotFreed(ctx context.Context, slot Slot) error
	SlotBooked(ctx context.Context, appt Appointment) error
}

// Deps are the optional collaborators of Service. Nil members are replaced
// with no-op implementations.
type Deps struct {
	Recorder *audit.Recorder
	Notifier notify.Gateway
	Listener SlotListener
	Metrics  *metrics.BookingMetrics
	Logger   *zap.Logger
	Clock    func() time.Time
}

type Service struct {
	repo           Repository
	catalog        catalog.Store
	detector       *scheduling.Detector
	recorder       *audit.Recorder
	notifier       notify.Gateway
	listener       SlotListener
	metrics        *metrics.BookingMetrics
	logger         *zap.Logger
	now            func() time.Time
	pendingTTL     time.Duration
	maxReschedules int
}

func NewService(repo Repository, cat catalog.Store, cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = notify.NewLogGateway(logger)
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:           repo,
		catalog:        cat,
		detector:       scheduling.NewDetector(logger),
		recorder:       deps.Recorder,
		notifier:       notifier,
		listener:       deps.Listener,
		metrics:        deps.Metrics,
		logger:         logger,
		now:            clock,
		pendingTTL:     cfg.PendingTTL,
		maxReschedules: cfg.MaxReschedules,
	}
}

// SetSlotListener attaches the listener after construction, for wiring
// where the listener itself depends on this service.
func (s *Service) SetSlotListener(l SlotListener) {
	s.listener = l
}

// AvailableSlots lists the bookable start times for a service on a
// provider's day.
func (s *Service) AvailableSlots(ctx context.Context, providerID uuid.UUID, date scheduling.Date, serviceID uuid.UUID) ([]scheduling.TimeOfDay, error) {
	svc, err := s.catalog.GetService(ctx, serviceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	rule, err := catalog.RuleFor(ctx, s.catalog, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule rule: %w", err)
	}
	if rule == nil || !rule.IsAvailable {
		return scheduling.Candidates(rule, svc.DurationMinutes)
	}

	occupied, err := s.repo.ActiveOccupancy(ctx, providerID, date, s.now())
	if err != nil {
		return nil, err
	}
	return scheduling.FreeSlots(rule, svc.DurationMinutes, occupied, s.detector)
}

// SlotOpen reports whether slot could be booked right now: it is on the
// provider's schedule and no live booking overlaps it.
func (s *Service) SlotOpen(ctx context.Context, slot Slot) (bool, error) {
	svc, err := s.catalog.GetService(ctx, slot.ServiceID)
	if err != nil {
		return false, fmt.Errorf("load service: %w", err)
	}
	rule, err := catalog.RuleFor(ctx, s.catalog, slot.ProviderID, slot.Date)
	if err != nil {
		return false, fmt.Errorf("load schedule rule: %w", err)
	}
	if err := scheduling.CheckSlot(rule, slot.StartTime, svc.DurationMinutes); err != nil {
		if errors.Is(err, scheduling.ErrSlotUnavailable) {
			return false, nil
		}
		return false, err
	}
	occupied, err := s.repo.ActiveOccupancy(ctx, slot.ProviderID, slot.Date, s.now())
	if err != nil {
		return false, err
	}
	return s.detector.Available(occupied, slot.StartTime, svc.DurationMinutes, ""), nil
}

// Book creates a pending appointment. The slot is re-validated while the
// provider's day is locked, so two requests for the same time cannot both win.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Book")
	defer span.End()
	span.SetAttributes(
		attribute.String("provider_id", req.ProviderID.String()),
		attribute.String("date", req.Date.String()),
		attribute.String("start_time", req.StartTime.String()),
	)

	started := time.Now()
	appt, err := s.book(ctx, req)
	s.metrics.ObserveBooking(bookingOutcome(err), time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("appointment_id", appt.ID.String()))
	return appt, nil
}

func (s *Service) book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if req.Date.IsZero() || !req.StartTime.Valid() {
		return nil, fmt.Errorf("%w: missing date or start time", scheduling.ErrSlotUnavailable)
	}
	svc, err := s.catalog.GetService(ctx, req.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	duration := svc.DurationMinutes
	if err := scheduling.ValidateDuration(duration); err != nil {
		return nil, err
	}
	rule, err := catalog.RuleFor(ctx, s.catalog, req.ProviderID, req.Date)
	if err != nil {
		return nil, fmt.Errorf("load schedule rule: %w", err)
	}
	if err := scheduling.CheckSlot(rule, req.StartTime, duration); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.pendingTTL)
	appt := &Appointment{
		ID:                   uuid.New(),
		ProviderID:           req.ProviderID,
		ServiceID:            req.ServiceID,
		UserID:               req.UserID,
		Date:                 req.Date,
		StartTime:            req.StartTime,
		EndTime:              req.StartTime.Add(duration),
		Status:               StatusPending,
		PaymentStatus:        PaymentPending,
		ServicePaymentStatus: ServicePaymentPending,
		ConfirmationNumber:   newConfirmationNumber(req.Date),
		MaxReschedules:       s.maxReschedules,
		ExpiresAt:            &expiresAt,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := appt.Validate(duration); err != nil {
		return nil, err
	}

	var expired []Appointment
	err = s.repo.WithinDay(ctx, req.ProviderID, req.Date, func(tx DayTx) error {
		var err error
		if expired, err = tx.ExpirePending(ctx, now); err != nil {
			return err
		}
		occupied, err := tx.ActiveOccupancy(ctx)
		if err != nil {
			return err
		}
		if !s.detector.Available(occupied, req.StartTime, duration, "") {
			return fmt.Errorf("%w: %s overlaps an existing booking", scheduling.ErrSlotUnavailable, req.StartTime)
		}
		return tx.Insert(ctx, appt)
	})
	if err != nil {
		// rows swept before a failed insert were rolled back with it
		return nil, err
	}
	s.afterExpiry(ctx, expired)

	s.recorder.Appointment(ctx, appt.ID, audit.EventAppointmentCreated, map[string]any{
		"provider_id":         appt.ProviderID.String(),
		"service_id":          appt.ServiceID.String(),
		"user_id":             appt.UserID.String(),
		"date":                appt.Date.String(),
		"start_time":          appt.StartTime.String(),
		"confirmation_number": appt.ConfirmationNumber,
		"expires_at":          expiresAt,
	})
	s.notify(ctx, appt, notify.TemplateAppointmentCreated)
	if s.listener != nil {
		if err := s.listener.SlotBooked(ctx, *appt); err != nil {
			s.logger.Warn("slot booked listener failed", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		}
	}
	return appt, nil
}

// Confirm moves a pending appointment to confirmed. A pending booking past
// its hold is expired instead and ErrAppointmentExpired is returned.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Confirm")
	defer span.End()

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.ExpiredHold() {
		return nil, ErrAppointmentExpired
	}
	if appt.Stale(s.now()) {
		s.expireOne(ctx, *appt)
		return nil, ErrAppointmentExpired
	}

	updated, err := s.transition(ctx, appt, StatusChange{To: StatusConfirmed})
	if err != nil {
		return nil, err
	}
	s.recorder.Appointment(ctx, updated.ID, audit.EventAppointmentConfirmed, map[string]any{
		"confirmation_number": updated.ConfirmationNumber,
	})
	s.notify(ctx, updated, notify.TemplateAppointmentConfirmed)
	return updated, nil
}

// Cancel releases the appointment's slot. Payments are untouched; a fully
// paid appointment can only be cancelled together with a refund.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, by Initiator, reason string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Cancel")
	defer span.End()

	if !by.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidInitiator, by)
	}
	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, StatusCancelled) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, StatusCancelled)
	}
	if appt.PaymentStatus == PaymentFullyPaid {
		return nil, fmt.Errorf("%w: fully paid appointment must be refunded to cancel", ErrPaymentStateConflict)
	}

	change := StatusChange{To: StatusCancelled, CancelledBy: &by}
	if reason != "" {
		change.CancelReason = &reason
	}
	updated, err := s.transition(ctx, appt, change)
	if err != nil {
		return nil, err
	}
	s.Released(ctx, appt, updated, by, reason)
	return updated, nil
}

// Released runs the side effects of a cancellation that has already been
// written: audit, notification and handing the slot to the listener. The
// payment ledger calls it after a refund that cancels.
func (s *Service) Released(ctx context.Context, before, after *Appointment, by Initiator, reason string) {
	s.recorder.Appointment(ctx, after.ID, audit.EventAppointmentCancelled, map[string]any{
		"from_status":  string(before.Status),
		"cancelled_by": string(by),
		"reason":       reason,
	})
	s.notify(ctx, after, notify.TemplateAppointmentCancelled)
	s.slotFreed(ctx, before.Slot())
}

// Reschedule moves an active appointment to a new date and start time,
// keeping its status. The move is validated on the target day under the
// same lock Book uses.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, date scheduling.Date, start scheduling.TimeOfDay) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Reschedule")
	defer span.End()

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanReschedule() {
		return nil, fmt.Errorf("%w: cannot reschedule a %s appointment", ErrInvalidStatusTransition, appt.Status)
	}
	now := s.now()
	if appt.Stale(now) {
		s.expireOne(ctx, *appt)
		return nil, ErrAppointmentExpired
	}
	if appt.RescheduleCount >= appt.MaxReschedules {
		return nil, fmt.Errorf("%w: %d of %d used", ErrRescheduleLimitExceeded, appt.RescheduleCount, appt.MaxReschedules)
	}
	if date.IsZero() || !start.Valid() {
		return nil, fmt.Errorf("%w: missing date or start time", scheduling.ErrSlotUnavailable)
	}

	svc, err := s.catalog.GetService(ctx, appt.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("load service: %w", err)
	}
	duration := svc.DurationMinutes
	rule, err := catalog.RuleFor(ctx, s.catalog, appt.ProviderID, date)
	if err != nil {
		return nil, fmt.Errorf("load schedule rule: %w", err)
	}
	if err := scheduling.CheckSlot(rule, start, duration); err != nil {
		return nil, err
	}

	var (
		moved   *Appointment
		expired []Appointment
	)
	err = s.repo.WithinDay(ctx, appt.ProviderID, date, func(tx DayTx) error {
		var err error
		if expired, err = tx.ExpirePending(ctx, now); err != nil {
			return err
		}
		occupied, err := tx.ActiveOccupancy(ctx)
		if err != nil {
			return err
		}
		if !s.detector.Available(occupied, start, duration, appt.ID.String()) {
			return fmt.Errorf("%w: %s overlaps an existing booking", scheduling.ErrSlotUnavailable, start)
		}
		moved, err = tx.Move(ctx, Move{
			ID:              appt.ID,
			Status:          appt.Status,
			RescheduleCount: appt.RescheduleCount,
			Date:            date,
			StartTime:       start,
			EndTime:         start.Add(duration),
		})
		if err != nil {
			return err
		}
		return moved.Validate(duration)
	})
	if err != nil {
		return nil, err
	}
	s.afterExpiry(ctx, expired)

	s.recorder.Appointment(ctx, moved.ID, audit.EventAppointmentRescheduled, map[string]any{
		"from_date":        appt.Date.String(),
		"from_start_time":  appt.StartTime.String(),
		"to_date":          moved.Date.String(),
		"to_start_time":    moved.StartTime.String(),
		"reschedule_count": moved.RescheduleCount,
	})
	s.notify(ctx, moved, notify.TemplateAppointmentRescheduled)
	if appt.Date != moved.Date || appt.StartTime != moved.StartTime {
		s.slotFreed(ctx, appt.Slot())
	}
	return moved, nil
}

// MarkCompleted records that a confirmed appointment took place.
func (s *Service) MarkCompleted(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.finish(ctx, id, StatusCompleted, audit.EventAppointmentCompleted)
}

// MarkNoShow records that the patient of a confirmed appointment did not attend.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.finish(ctx, id, StatusNoShow, audit.EventAppointmentNoShow)
}

func (s *Service) finish(ctx context.Context, id uuid.UUID, to Status, event string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Mark"+string(to))
	defer span.End()

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, appt, StatusChange{To: to})
	if err != nil {
		return nil, err
	}
	s.recorder.Appointment(ctx, updated.ID, event, nil)
	return updated, nil
}

// ExpirePendingAppointments is intended to be called by the worker periodically.
// It returns how many bookings it expired.
func (s *Service) ExpirePendingAppointments(ctx context.Context) (int, error) {
	candidates, err := s.repo.FindExpiredPending(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("find expired pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range candidates {
		if s.expireOne(ctx, appt) {
			expired++
		}
	}
	return expired, nil
}

// expireOne cancels a stale pending booking as the system. It reports false
// when someone else changed the row first.
func (s *Service) expireOne(ctx context.Context, appt Appointment) bool {
	by := InitiatorSystem
	reason := ReasonExpired
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, StatusChange{
		From:         StatusPending,
		To:           StatusCancelled,
		Payment:      PaymentPending,
		CancelledBy:  &by,
		CancelReason: &reason,
	})
	if err != nil {
		if !errors.Is(err, ErrConcurrentModification) {
			s.logger.Error("failed to expire appointment", zap.String("appointment_id", appt.ID.String()), zap.Error(err))
		}
		return false
	}
	s.afterExpiry(ctx, []Appointment{*updated})
	return true
}

func (s *Service) afterExpiry(ctx context.Context, expired []Appointment) {
	for i := range expired {
		a := &expired[i]
		s.metrics.ObserveTransition(string(StatusPending), string(StatusCancelled))
		s.recorder.Appointment(ctx, a.ID, audit.EventAppointmentExpired, map[string]any{
			"reason": ReasonExpired,
		})
		s.notify(ctx, a, notify.TemplateAppointmentCancelled)
		s.slotFreed(ctx, a.Slot())
	}
}

// transition applies a status change after checking the status table and
// the composite state validator. change.From and change.Payment are filled
// from appt.
func (s *Service) transition(ctx context.Context, appt *Appointment, change StatusChange) (*Appointment, error) {
	if !CanTransition(appt.Status, change.To) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, appt.Status, change.To)
	}
	next := appt.State()
	next.Status = change.To
	if err := next.Validate(); err != nil {
		return nil, err
	}

	change.From = appt.Status
	change.Payment = appt.PaymentStatus
	updated, err := s.repo.UpdateStatus(ctx, appt.ID, change)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveTransition(string(change.From), string(change.To))
	return updated, nil
}

func (s *Service) slotFreed(ctx context.Context, slot Slot) {
	if s.listener == nil {
		return
	}
	if err := s.listener.SlotFreed(ctx, slot); err != nil {
		s.logger.Warn("slot freed listener failed",
			zap.String("provider_id", slot.ProviderID.String()),
			zap.String("date", slot.Date.String()),
			zap.String("start_time", slot.StartTime.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) notify(ctx context.Context, appt *Appointment, template string) {
	err := s.notifier.Notify(ctx, appt.UserID, template, map[string]any{
		"appointment_id":      appt.ID.String(),
		"confirmation_number": appt.ConfirmationNumber,
		"date":                appt.Date.String(),
		"start_time":          appt.StartTime.String(),
	})
	if err != nil {
		s.logger.Warn("failed to send notification",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("template", template),
			zap.Error(err),
		)
	}
}

// Get retrieves an appointment by ID
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}
	return appt, nil
}

// ListByUser retrieves appointments for a specific patient
func (s *Service) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	appointments, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by user: %w", err)
	}
	return appointments, nil
}

// ListForProviderDay retrieves a provider's appointments on one date
func (s *Service) ListForProviderDay(ctx context.Context, providerID uuid.UUID, date scheduling.Date) ([]Appointment, error) {
	appointments, err := s.repo.ListForProviderDay(ctx, providerID, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments for provider day: %w", err)
	}
	return appointments, nil
}

func newConfirmationNumber(date scheduling.Date) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("DC-%04d%02d%02d-%s", date.Year, int(date.Month), date.Day, suffix)
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, scheduling.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, scheduling.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, catalog.ErrServiceNotFound):
		return "service_not_found"
	default:
		return "error"
	}
}
