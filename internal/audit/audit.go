// Package audit records every state transition of the booking core.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed   = "APPOINTMENT_CONFIRMED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventAppointmentNoShow      = "APPOINTMENT_NO_SHOW"
	EventAppointmentExpired     = "APPOINTMENT_EXPIRED"

	EventPaymentRecorded      = "PAYMENT_RECORDED"
	EventPaymentRefunded      = "PAYMENT_REFUNDED"
	EventServicePaymentWaived = "SERVICE_PAYMENT_WAIVED"

	EventWaitlistJoined    = "WAITLIST_JOINED"
	EventWaitlistNotified  = "WAITLIST_NOTIFIED"
	EventWaitlistBooked    = "WAITLIST_BOOKED"
	EventWaitlistExpired   = "WAITLIST_EXPIRED"
	EventWaitlistCancelled = "WAITLIST_CANCELLED"
)

type Event struct {
	ID              int64
	EventType       string
	AppointmentID   *uuid.UUID
	WaitlistEntryID *uuid.UUID
	Payload         []byte
	CreatedAt       time.Time
}

// Sink persists audit events.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// Recorder builds events and hands them to a Sink. Audit failures are logged
// and never fail the business operation that produced them.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger, now: time.Now}
}

func (r *Recorder) Appointment(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	id := appointmentID
	r.emit(ctx, Event{EventType: eventType, AppointmentID: &id}, payload)
}

func (r *Recorder) Waitlist(ctx context.Context, entryID uuid.UUID, eventType string, payload map[string]any) {
	id := entryID
	r.emit(ctx, Event{EventType: eventType, WaitlistEntryID: &id}, payload)
}

func (r *Recorder) emit(ctx context.Context, ev Event, payload map[string]any) {
	if r == nil || r.sink == nil {
		return
	}
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.logger.Warn("failed to marshal audit payload", zap.String("event_type", ev.EventType), zap.Error(err))
		data = nil
	}
	ev.Payload = data
	ev.CreatedAt = r.now()

	if err := r.sink.Record(ctx, ev); err != nil {
		r.logger.Error("failed to record audit event", zap.String("event_type", ev.EventType), zap.Error(err))
	}
}
