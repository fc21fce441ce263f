package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/skinovation-clinic/cmd/mainconfig"
	"github.com/wolfman30/skinovation-clinic/internal/api/router"
	"github.com/wolfman30/skinovation-clinic/internal/app/bootstrap"
	"github.com/wolfman30/skinovation-clinic/internal/appointments"
	"github.com/wolfman30/skinovation-clinic/internal/attendants"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
	appconfig "github.com/wolfman30/skinovation-clinic/internal/config"
	"github.com/wolfman30/skinovation-clinic/internal/events"
	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/internal/http/handlers"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel).ForService("api")
	logger.Info("starting clinic API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic", cfg.ClinicName,
	)

	if cfg.JWTSecret == "" {
		logger.Error("JWT_SECRET is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := connectPostgresPool(ctx, cfg.DatabaseURL, logger)
	if pool == nil {
		logger.Error("DATABASE_URL is required and must be reachable")
		os.Exit(1)
	}
	defer pool.Close()
	sqlDB := openSQL(pool)
	defer sqlDB.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	awsCfg, err := mainconfig.LoadAWSConfigIfNeeded(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	emailSender, emailProvider, err := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	if err != nil {
		logger.Error("failed to configure email", "error", err)
		os.Exit(1)
	}
	smsSender, smsProvider := bootstrap.BuildSMSSender(cfg, logger)
	logger.Info("notification channels configured", "email", emailProvider, "sms", smsProvider)

	metricsHandler, bookingMetrics, notifyMetrics := setupMetrics()

	outbox := events.NewOutboxStore(pool)
	dispatcher := bootstrap.BuildDispatcher(cfg, emailSender, smsSender, outbox, notifyMetrics, logger)
	hub := notify.NewHub(logger)
	audit := history.NewLog(sqlDB)
	directory := bootstrap.BuildDirectory(sqlDB, redisClient, cfg, logger)
	notes := notify.NewPostgresStore(pool)
	roster := attendants.NewPostgresRepository(pool)

	svc := appointments.NewService(
		appointments.NewPostgresStore(pool),
		roster,
		directory,
		catalog.NewPostgresCatalog(pool),
		logger,
		appointments.WithDispatcher(dispatcher),
		appointments.WithHub(hub),
		appointments.WithAudit(audit),
		appointments.WithMetrics(bookingMetrics),
		appointments.WithSlotCapacity(cfg.SlotCapacity),
		appointments.WithCancellationNotice(cfg.CancellationNoticeDays),
		appointments.WithLocation(cfg.Location()),
	)

	r := router.New(&router.Config{
		Logger:            logger,
		Appointments:      handlers.NewAppointmentsHandler(svc, logger),
		Notifications:     handlers.NewNotificationsHandler(notes, logger),
		Schedules:         handlers.NewSchedulesHandler(directory, audit, logger),
		Roster:            handlers.NewRosterHandler(roster, directory, audit, logger),
		History:           handlers.NewHistoryHandler(audit, logger),
		LiveNotifications: http.HandlerFunc(hub.HandleWebSocket),
		MetricsHandler:    metricsHandler,
		HealthChecks: map[string]router.HealthCheck{
			"postgres": pool.Ping,
		},
		JWTSecret:          cfg.JWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		BookingLimiter:     bootstrap.BuildBookingLimiter(ctx, redisClient, cfg, logger),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
