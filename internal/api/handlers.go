package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON: "+err.Error())
		return false
	}
	return true
}

func parseUUID(w http.ResponseWriter, value, field string) (uuid.UUID, bool) {
	id, err := uuid.Parse(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+field, field+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	return parseUUID(w, chi.URLParam(r, param), param)
}

func queryDate(w http.ResponseWriter, r *http.Request) (scheduling.Date, bool) {
	d, err := scheduling.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return scheduling.Date{}, false
	}
	return d, true
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := urlUUID(w, r, "providerID")
		if !ok {
			return
		}
		serviceID, ok := parseUUID(w, r.URL.Query().Get("service_id"), "service_id")
		if !ok {
			return
		}
		date, ok := queryDate(w, r)
		if !ok {
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), providerID, date, serviceID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if slots == nil {
			slots = []scheduling.TimeOfDay{}
		}
		writeJSON(w, http.StatusOK, SlotsResponse{ProviderID: providerID, ServiceID: serviceID, Date: date, Slots: slots})
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		providerID, ok := parseUUID(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}
		serviceID, ok := parseUUID(w, req.ServiceID, "service_id")
		if !ok {
			return
		}
		userID, ok := parseUUID(w, req.UserID, "user_id")
		if !ok {
			return
		}
		if req.Date.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_date", "date is required")
			return
		}
		if req.StartTime == nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time is required")
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookRequest{
			ProviderID: providerID,
			ServiceID:  serviceID,
			UserID:     userID,
			Date:       req.Date,
			StartTime:  *req.StartTime,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := parseUUID(w, r.URL.Query().Get("user_id"), "user_id")
		if !ok {
			return
		}
		limit, err := queryInt(r, "limit", 20)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
			return
		}
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_offset", err.Error())
			return
		}

		appts, err := svc.ListByUser(r.Context(), userID, limit, offset)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentList(appts))
	}
}

func providerDayHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := urlUUID(w, r, "providerID")
		if !ok {
			return
		}
		date, ok := queryDate(w, r)
		if !ok {
			return
		}
		appts, err := svc.ListForProviderDay(r.Context(), providerID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentList(appts))
	}
}

// transitionHandler serves the body-less lifecycle actions.
func transitionHandler(action func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		appt, err := action(r, id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.Confirm(r.Context(), id)
	})
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.MarkCompleted(r.Context(), id)
	})
}

func noShowAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(func(r *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
		return svc.MarkNoShow(r.Context(), id)
	})
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req CancelRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, appointment.Initiator(req.CancelledBy), req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req RescheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Date.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_date", "date is required")
			return
		}
		if req.StartTime == nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time is required")
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, req.Date, *req.StartTime)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}
