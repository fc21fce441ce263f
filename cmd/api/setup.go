package main

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/skinovation-clinic/internal/observability/metrics"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// setupMetrics builds a private registry so tests can create it repeatedly.
func setupMetrics() (http.Handler, *metrics.BookingMetrics, *metrics.NotifyMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	booking := metrics.NewBookingMetrics(reg)
	notify := metrics.NewNotifyMetrics(reg)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), booking, notify
}

// connectPostgresPool returns nil when url is empty or unreachable.
func connectPostgresPool(ctx context.Context, url string, logger *logging.Logger) *pgxpool.Pool {
	if url == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		return nil
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Error("failed to ping postgres", "error", err)
		pool.Close()
		return nil
	}
	return pool
}

// openSQL exposes the pool through database/sql for the account directory
// and history log.
func openSQL(pool *pgxpool.Pool) *sql.DB {
	return stdlib.OpenDBFromPool(pool)
}
