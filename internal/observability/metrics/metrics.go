package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking workflow and
// the appointment lifecycle.
type BookingMetrics struct {
	attemptsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	bookingLatency   *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by item kind and outcome",
		}, []string{"item", "outcome"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "appointment",
			Name:      "transitions_total",
			Help:      "Appointment status transitions by target status",
		}, []string{"to"}),
		bookingLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "latency_seconds",
			Help:      "Latency of booking requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"item"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.transitionsTotal, m.bookingLatency)
	return m
}

// Booking outcomes besides the rejection kinds.
const (
	OutcomeConfirmed = "confirmed"
	OutcomeBooked    = "booked"
	OutcomeError     = "error"
)

// ObserveAttempt records one booking attempt. outcome is OutcomeConfirmed,
// OutcomeBooked for an appointment left pending, OutcomeError, or the
// rejection kind.
func (m *BookingMetrics) ObserveAttempt(item, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(item, outcome).Inc()
	m.bookingLatency.WithLabelValues(item).Observe(seconds)
}

func (m *BookingMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

// NotifyMetrics counts external notification deliveries.
type NotifyMetrics struct {
	deliveriesTotal *prometheus.CounterVec
	retriesTotal    *prometheus.CounterVec
}

func NewNotifyMetrics(reg prometheus.Registerer) *NotifyMetrics {
	m := &NotifyMetrics{
		deliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "External notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		retriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "notify",
			Name:      "retries_total",
			Help:      "Outbox retry attempts by channel and status",
		}, []string{"channel", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.deliveriesTotal, m.retriesTotal)
	return m
}

func (m *NotifyMetrics) ObserveDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.deliveriesTotal.WithLabelValues(channel, status).Inc()
}

func (m *NotifyMetrics) ObserveRetry(channel, status string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(channel, status).Inc()
}
