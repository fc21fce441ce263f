package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name || fam.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; ok && v == p.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveAttempt("service", "confirmed", 0.02)
	m.ObserveAttempt("service", "confirmed", 0.03)
	m.ObserveAttempt("product", "conflict", 0.01)
	m.ObserveTransition("completed")

	if got := counterValue(t, reg, "clinic_booking_attempts_total", map[string]string{"item": "service", "outcome": "confirmed"}); got != 2 {
		t.Fatalf("expected 2 confirmed service attempts, got %v", got)
	}
	if got := counterValue(t, reg, "clinic_appointment_transitions_total", map[string]string{"to": "completed"}); got != 1 {
		t.Fatalf("expected 1 completed transition, got %v", got)
	}
}

func TestNotifyMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotifyMetrics(reg)
	m.ObserveDelivery("sms", "failed")
	m.ObserveRetry("sms", "delivered")

	if got := counterValue(t, reg, "clinic_notify_deliveries_total", map[string]string{"channel": "sms", "status": "failed"}); got != 1 {
		t.Fatalf("expected 1 failed sms, got %v", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var b *BookingMetrics
	b.ObserveAttempt("service", OutcomeBooked, 0.1)
	b.ObserveTransition("cancelled")
	var n *NotifyMetrics
	n.ObserveDelivery("email", "sent")
	n.ObserveRetry("email", "failed")
}
