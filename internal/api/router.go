package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hackgods/dental-booking-engine/internal/appointment"
	"github.com/hackgods/dental-booking-engine/internal/catalog"
	"github.com/hackgods/dental-booking-engine/internal/payment"
	"github.com/hackgods/dental-booking-engine/internal/waitlist"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Payments     *payment.Ledger
	Waitlist     *waitlist.Service
	Promoter     *waitlist.Promoter
	Catalog      catalog.Store
	Health       *HealthHandler
	Metrics      http.Handler // defaults to promhttp.Handler()
	Logger       *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	health := cfg.Health
	if health == nil {
		health = NewHealthHandler(nil, nil, "", "")
	}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(TracingMiddleware)
	r.Use(LoggingMiddleware(logger))

	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", metricsHandler)

	r.Route("/providers/{providerID}", func(r chi.Router) {
		r.Get("/slots", availableSlotsHandler(cfg.Appointments))
		r.Get("/appointments", providerDayHandler(cfg.Appointments))
		r.Get("/schedule", listScheduleHandler(cfg.Catalog))
		r.Put("/schedule/{weekday}", putScheduleRuleHandler(cfg.Catalog))
	})

	r.Get("/services/{serviceID}", getServiceHandler(cfg.Catalog))
	r.Put("/services/{serviceID}", putServiceHandler(cfg.Catalog))

	r.Route("/appointments", func(r chi.Router) {
		r.Post("/", createAppointmentHandler(cfg.Appointments))
		r.Get("/", listAppointmentsHandler(cfg.Appointments))

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", getAppointmentHandler(cfg.Appointments))
			r.Post("/confirm", confirmAppointmentHandler(cfg.Appointments))
			r.Post("/cancel", cancelAppointmentHandler(cfg.Appointments))
			r.Post("/reschedule", rescheduleAppointmentHandler(cfg.Appointments))
			r.Post("/complete", completeAppointmentHandler(cfg.Appointments))
			r.Post("/no-show", noShowAppointmentHandler(cfg.Appointments))

			r.Get("/payments", paymentRecordsHandler(cfg.Payments))
			r.Post("/payments", recordPaymentHandler(cfg.Payments))
			r.Post("/refunds", refundHandler(cfg.Payments))
			r.Post("/service-payment/waive", waiveServicePaymentHandler(cfg.Payments))
		})
	})

	r.Get("/revenue", revenueHandler(cfg.Payments))

	r.Route("/waitlist", func(r chi.Router) {
		r.Post("/", joinWaitlistHandler(cfg.Waitlist))
		r.Get("/", listWaitlistHandler(cfg.Waitlist))
		r.Post("/promote", promoteWaitlistHandler(cfg.Promoter))
		r.Get("/{id}", getWaitlistEntryHandler(cfg.Waitlist))
		r.Post("/{id}/cancel", cancelWaitlistEntryHandler(cfg.Waitlist))
	})

	return r
}
