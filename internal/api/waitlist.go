package api

import (
	"net/http"

	"github.com/hackgods/dental-booking-engine/internal/waitlist"
)

func joinWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinWaitlistRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		userID, ok := parseUUID(w, req.UserID, "user_id")
		if !ok {
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

		entry, err := svc.Join(r.Context(), waitlist.JoinRequest{
			UserID:        userID,
			ProviderID:    providerID,
			ServiceID:     serviceID,
			Date:          req.Date,
			PreferredTime: req.PreferredTime,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, entry)
	}
}

func getWaitlistEntryHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		entry, err := svc.Get(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

func listWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseUUID(w, r.URL.Query().Get("provider_id"), "provider_id")
		if !ok {
			return
		}
		date, ok := queryDate(w, r)
		if !ok {
			return
		}
		entries, err := svc.ListForDay(r.Context(), providerID, date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func cancelWaitlistEntryHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		entry, err := svc.Cancel(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}

// promoteWaitlistHandler is the staff action that offers a slot by hand.
// It answers 204 when nobody is waiting for the slot.
func promoteWaitlistHandler(p *waitlist.Promoter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PromoteRequest
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
		if req.Date.IsZero() {
			writeError(w, http.StatusBadRequest, "invalid_date", "date is required")
			return
		}

		entry, err := p.Promote(r.Context(), waitlist.SlotKey{
			ProviderID: providerID,
			ServiceID:  serviceID,
			Date:       req.Date,
			Time:       req.StartTime,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if entry == nil {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	}
}
