package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/payment"
	redisclient "github.com/hackgods/dental-booking-engine/internal/redis"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
	"github.com/hackgods/dental-booking-engine/internal/waitlist"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins. Schedule errors
// come before ErrSlotUnavailable because CheckSlot wraps one in the other.
var errorMappings = []errorMapping{
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{waitlist.ErrEntryNotFound, http.StatusNotFound, "waitlist_entry_not_found"},
	{catalog.ErrServiceNotFound, http.StatusNotFound, "service_not_found"},
	{catalog.ErrRuleNotFound, http.StatusNotFound, "schedule_rule_not_found"},

	{scheduling.ErrScheduleNotFound, http.StatusUnprocessableEntity, "schedule_not_found"},
	{scheduling.ErrInvalidDuration, http.StatusUnprocessableEntity, "invalid_duration"},
	{scheduling.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},

	{appointment.ErrAppointmentExpired, http.StatusConflict, "appointment_expired"},
	{appointment.ErrRescheduleLimitExceeded, http.StatusConflict, "reschedule_limit_exceeded"},
	{appointment.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{appointment.ErrIllegalState, http.StatusConflict, "illegal_state"},
	{appointment.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{appointment.ErrInvalidInitiator, http.StatusBadRequest, "invalid_initiator"},

	{payment.ErrRefundFromPending, http.StatusConflict, "refund_from_pending"},
	{payment.ErrRefundExceedsPaid, http.StatusUnprocessableEntity, "refund_exceeds_paid"},
	{payment.ErrPartialRefund, http.StatusUnprocessableEntity, "partial_refund"},
	{payment.ErrPaymentStateConflict, http.StatusConflict, "payment_state_conflict"},
	{payment.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{payment.ErrInvalidAxis, http.StatusBadRequest, "invalid_axis"},

	{waitlist.ErrAlreadyWaitlisted, http.StatusConflict, "already_waitlisted"},
	{waitlist.ErrInvalidStatusTransition, http.StatusConflict, "invalid_status_transition"},
	{waitlist.ErrConcurrentModification, http.StatusConflict, "concurrent_modification"},
	{waitlist.ErrInvalidEntry, http.StatusBadRequest, "invalid_waitlist_entry"},

	{redisclient.ErrLockNotAcquired, http.StatusConflict, "slot_busy"},
}

// writeServiceError maps a service error onto the JSON error body. Anything
// unrecognised is an infrastructure fault: it is logged and its text hidden.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}
	loggerFrom(r.Context()).Error("request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
