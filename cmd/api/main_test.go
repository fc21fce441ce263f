package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, booking, notify := setupMetrics()
	if handler == nil || booking == nil || notify == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	booking.ObserveAttempt("service", "confirmed", 0.02)
	booking.ObserveTransition("completed")
	notify.ObserveDelivery("sms", "sent")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	for _, name := range []string{
		"clinic_booking_attempts_total",
		"clinic_appointment_transitions_total",
		"clinic_notify_deliveries_total",
		"go_goroutines",
	} {
		if !strings.Contains(rr.Body.String(), name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}

func TestSetupMetricsIsRepeatable(t *testing.T) {
	setupMetrics()
	setupMetrics()
}

func TestConnectPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "", logger); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
}

func TestConnectPostgresPoolInvalidURLReturnsNil(t *testing.T) {
	logger := logging.New("error")
	if pool := connectPostgresPool(context.Background(), "postgres://%zz", logger); pool != nil {
		t.Fatalf("expected nil pool for malformed URL")
	}
}
