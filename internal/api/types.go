package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/payment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

type CreateAppointmentRequest struct {
	ProviderID string                `json:"provider_id"`
	ServiceID  string                `json:"service_id"`
	UserID     string                `json:"user_id"`
	Date       scheduling.Date       `json:"date"`
	StartTime  *scheduling.TimeOfDay `json:"start_time"`
}

type CancelRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	Date      scheduling.Date       `json:"date"`
	StartTime *scheduling.TimeOfDay `json:"start_time"`
}

type PaymentRequest struct {
	Axis   string `json:"axis"`
	Amount int64  `json:"amount"`
	Method string `json:"method,omitempty"`
}

type RefundRequest struct {
	Amount         int64  `json:"amount"`
	CancelIfActive bool   `json:"cancel_if_active"`
	CancelledBy    string `json:"cancelled_by,omitempty"`
	Reason         string `json:"reason,omitempty"`
}

type WaiveRequest struct {
	Reason string `json:"reason,omitempty"`
}

type JoinWaitlistRequest struct {
	UserID        string                `json:"user_id"`
	ProviderID    string                `json:"provider_id"`
	ServiceID     string                `json:"service_id"`
	Date          scheduling.Date       `json:"date"`
	PreferredTime *scheduling.TimeOfDay `json:"preferred_time,omitempty"`
}

type PromoteRequest struct {
	ProviderID string               `json:"provider_id"`
	ServiceID  string               `json:"service_id"`
	Date       scheduling.Date      `json:"date"`
	StartTime  scheduling.TimeOfDay `json:"start_time"`
}

type ScheduleRuleRequest struct {
	StartTime   scheduling.TimeOfDay  `json:"start_time"`
	EndTime     scheduling.TimeOfDay  `json:"end_time"`
	BreakStart  *scheduling.TimeOfDay `json:"break_start,omitempty"`
	BreakEnd    *scheduling.TimeOfDay `json:"break_end,omitempty"`
	IsAvailable bool                  `json:"is_available"`
}

type ServiceRequest struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

type AppointmentResponse struct {
	ID                   uuid.UUID            `json:"id"`
	ProviderID           uuid.UUID            `json:"provider_id"`
	ServiceID            uuid.UUID            `json:"service_id"`
	UserID               uuid.UUID            `json:"user_id"`
	Date                 scheduling.Date      `json:"date"`
	StartTime            scheduling.TimeOfDay `json:"start_time"`
	EndTime              scheduling.TimeOfDay `json:"end_time"`
	Status               string               `json:"status"`
	PaymentStatus        string               `json:"payment_status"`
	ServicePaymentStatus string               `json:"service_payment_status"`
	PaymentAmount        int64                `json:"payment_amount"`
	ServicePaymentAmount int64                `json:"service_payment_amount"`
	RefundedAmount       int64                `json:"refunded_amount"`
	ConfirmationNumber   string               `json:"confirmation_number"`
	RescheduleCount      int                  `json:"reschedule_count"`
	MaxReschedules       int                  `json:"max_reschedules"`
	CancelledBy          string               `json:"cancelled_by,omitempty"`
	CancelReason         string               `json:"cancel_reason,omitempty"`
	ExpiresAt            *time.Time           `json:"expires_at,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	resp := AppointmentResponse{
		ID:                   a.ID,
		ProviderID:           a.ProviderID,
		ServiceID:            a.ServiceID,
		UserID:               a.UserID,
		Date:                 a.Date,
		StartTime:            a.StartTime,
		EndTime:              a.EndTime,
		Status:               string(a.Status),
		PaymentStatus:        string(a.PaymentStatus),
		ServicePaymentStatus: string(a.ServicePaymentStatus),
		PaymentAmount:        a.PaymentAmount,
		ServicePaymentAmount: a.ServicePaymentAmount,
		RefundedAmount:       a.RefundedAmount,
		ConfirmationNumber:   a.ConfirmationNumber,
		RescheduleCount:      a.RescheduleCount,
		MaxReschedules:       a.MaxReschedules,
		ExpiresAt:            a.ExpiresAt,
		CreatedAt:            a.CreatedAt,
	}
	if a.CancelledBy != nil {
		resp.CancelledBy = string(*a.CancelledBy)
	}
	if a.CancelReason != nil {
		resp.CancelReason = *a.CancelReason
	}
	return resp
}

func newAppointmentList(appts []appointment.Appointment) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(appts))
	for i := range appts {
		out = append(out, newAppointmentResponse(&appts[i]))
	}
	return out
}

type SlotsResponse struct {
	ProviderID uuid.UUID              `json:"provider_id"`
	ServiceID  uuid.UUID              `json:"service_id"`
	Date       scheduling.Date        `json:"date"`
	Slots      []scheduling.TimeOfDay `json:"slots"`
}

type ScheduleRuleResponse struct {
	DayOfWeek   int                   `json:"day_of_week"`
	StartTime   scheduling.TimeOfDay  `json:"start_time"`
	EndTime     scheduling.TimeOfDay  `json:"end_time"`
	BreakStart  *scheduling.TimeOfDay `json:"break_start,omitempty"`
	BreakEnd    *scheduling.TimeOfDay `json:"break_end,omitempty"`
	IsAvailable bool                  `json:"is_available"`
}

func newRuleResponse(r scheduling.Rule) ScheduleRuleResponse {
	return ScheduleRuleResponse{
		DayOfWeek:   int(r.DayOfWeek),
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		BreakStart:  r.BreakStart,
		BreakEnd:    r.BreakEnd,
		IsAvailable: r.IsAvailable,
	}
}

type PaymentRecordsResponse struct {
	AppointmentID uuid.UUID        `json:"appointment_id"`
	Records       []payment.Record `json:"records"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
