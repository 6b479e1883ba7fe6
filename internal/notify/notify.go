// Package notify hands patient notifications to the messaging system. The
// booking core only triggers notifications; delivery is someone else's job.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TemplateAppointmentCreated     = "appointment_created"
	TemplateAppointmentConfirmed   = "appointment_confirmed"
	TemplateAppointmentCancelled   = "appointment_cancelled"
	TemplateAppointmentRescheduled = "appointment_rescheduled"
	TemplateWaitlistSlotAvailable  = "waitlist_slot_available"
)

// Gateway sends a templated notification to a user.
type Gateway interface {
	Notify(ctx context.Context, userID uuid.UUID, template string, data map[string]any) error
}

// Job is the message published for the messaging workers.
type Job struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Template  string         `json:"template"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func newJob(userID uuid.UUID, template string, data map[string]any) Job {
	return Job{
		ID:        uuid.New(),
		UserID:    userID,
		Template:  template,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
}

// LogGateway only logs. Used when no queue is configured.
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Notify(ctx context.Context, userID uuid.UUID, template string, data map[string]any) error {
	g.logger.Info("notification (not delivered)",
		zap.String("user_id", userID.String()),
		zap.String("template", template),
		zap.Any("data", data),
	)
	return nil
}
