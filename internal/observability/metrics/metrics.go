package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking core.
type BookingMetrics struct {
	bookings    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	payments    *prometheus.CounterVec
	promotions  *prometheus.CounterVec
	bookLatency prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "payment",
			Name:      "changes_total",
			Help:      "Payment axis changes",
		}, []string{"axis", "kind"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "waitlist",
			Name:      "promotions_total",
			Help:      "Waitlist promotion attempts by outcome",
		}, []string{"outcome"}),
		bookLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "book_latency_seconds",
			Help:      "Latency of the authoritative booking write",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookings, m.transitions, m.payments, m.promotions, m.bookLatency)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(outcome).Inc()
	m.bookLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *BookingMetrics) ObservePayment(axis, kind string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(axis, kind).Inc()
}

func (m *BookingMetrics) ObservePromotion(outcome string) {
	if m == nil {
		return
	}
	m.promotions.WithLabelValues(outcome).Inc()
}
