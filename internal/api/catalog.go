package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/scheduling"
)

func listScheduleHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := urlUUID(w, r, "providerID")
		if !ok {
			return
		}
		rules, err := store.ListRules(r.Context(), providerID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		out := make([]ScheduleRuleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, newRuleResponse(rule))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// putScheduleRuleHandler replaces the provider's rule for one weekday,
// given as 0 (Sunday) to 6 (Saturday).
func putScheduleRuleHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := urlUUID(w, r, "providerID")
		if !ok {
			return
		}
		day, err := strconv.Atoi(chi.URLParam(r, "weekday"))
		if err != nil || day < 0 || day > 6 {
			writeError(w, http.StatusBadRequest, "invalid_weekday", "weekday must be 0-6")
			return
		}
		var req ScheduleRuleRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		rule := scheduling.Rule{
			ProviderID:  providerID,
			DayOfWeek:   time.Weekday(day),
			StartTime:   req.StartTime,
			EndTime:     req.EndTime,
			BreakStart:  req.BreakStart,
			BreakEnd:    req.BreakEnd,
			IsAvailable: req.IsAvailable,
		}
		if err := rule.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_rule", err.Error())
			return
		}
		if err := store.UpsertRule(r.Context(), rule); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newRuleResponse(rule))
	}
}

func getServiceHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "serviceID")
		if !ok {
			return
		}
		svc, err := store.GetService(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	}
}

func putServiceHandler(store catalog.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "serviceID")
		if !ok {
			return
		}
		var req ServiceRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" || req.Price < 0 {
			writeError(w, http.StatusBadRequest, "invalid_service", "name is required and price must not be negative")
			return
		}
		if err := scheduling.ValidateDuration(req.DurationMinutes); err != nil {
			writeServiceError(w, r, err)
			return
		}

		svc := catalog.Service{ID: id, Name: req.Name, DurationMinutes: req.DurationMinutes, Price: req.Price}
		if err := store.UpsertService(r.Context(), svc); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, svc)
	}
}
