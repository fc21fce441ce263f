package appointments

import (
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/skinovation-clinic/internal/observability/metrics"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

func attemptCount(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, fam := range families {
		if fam.GetName() != "clinic_booking_attempts_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestBook_AttemptOutcomes(t *testing.T) {
	f := newFixture(t)
	reg := prometheus.NewRegistry()
	f.svc = NewService(f.store, f.roster, f.dir, f.cat, logging.NewWithWriter(io.Discard, "error"),
		WithMetrics(metrics.NewBookingMetrics(reg)),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return f.now }),
	)

	res, err := f.book(monday, "14:00")
	require.NoError(t, err)
	require.Equal(t, StatusPending, res.Appointment.Status)
	assert.Equal(t, 1.0, attemptCount(t, reg, metrics.OutcomeBooked))

	f.setMondayProfile(t)
	res, err = f.book(monday, "15:00")
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, res.Appointment.Status)
	assert.Equal(t, 1.0, attemptCount(t, reg, metrics.OutcomeConfirmed))

	_, err = f.book(tuesday, "15:00")
	require.Error(t, err)
	assert.Equal(t, 1.0, attemptCount(t, reg, string(KindOf(err))))
	assert.Zero(t, attemptCount(t, reg, "pending"))
}
