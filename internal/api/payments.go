package api

import (
	"net/http"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/payment"
)

func recordPaymentHandler(ledger *payment.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req PaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := ledger.RecordPayment(r.Context(), id, payment.Axis(req.Axis), req.Amount, req.Method)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func refundHandler(ledger *payment.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req RefundRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := ledger.Refund(r.Context(), id, payment.RefundRequest{
			Amount:         req.Amount,
			CancelIfActive: req.CancelIfActive,
			By:             appointment.Initiator(req.CancelledBy),
			Reason:         req.Reason,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func waiveServicePaymentHandler(ledger *payment.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		var req WaiveRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := ledger.WaiveServicePayment(r.Context(), id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentResponse(appt))
	}
}

func paymentRecordsHandler(ledger *payment.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		records, err := ledger.Records(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, PaymentRecordsResponse{AppointmentID: id, Records: records})
	}
}

func revenueHandler(ledger *payment.Ledger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, ok := queryDate(w, r)
		if !ok {
			return
		}
		rev, err := ledger.NetRevenue(r.Context(), date)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rev)
	}
}
