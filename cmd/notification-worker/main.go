package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/wolfman30/skinovation-clinic/cmd/mainconfig"
	"github.com/wolfman30/skinovation-clinic/internal/app/bootstrap"
	"github.com/wolfman30/skinovation-clinic/internal/config"
	"github.com/wolfman30/skinovation-clinic/internal/events"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel).ForService("notification-worker")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.DatabaseURL == "" {
		logger.Error("notification worker requires DATABASE_URL")
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

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

	// Retries must not enqueue again, so this dispatcher has no outbox.
	dispatcher := bootstrap.BuildDispatcher(cfg, emailSender, smsSender, nil, nil, logger)
	deliverer := events.NewDeliverer(events.NewOutboxStore(pool), notify.NewRetryHandler(dispatcher), logger).
		WithBatchSize(int32(cfg.OutboxBatchSize)).
		WithInterval(cfg.OutboxPollInterval).
		WithMaxAttempts(cfg.OutboxMaxAttempts)

	logger.Info("notification worker started",
		"email", emailProvider,
		"sms", smsProvider,
		"interval", cfg.OutboxPollInterval,
		"max_attempts", cfg.OutboxMaxAttempts,
	)
	done := make(chan struct{})
	go func() {
		deliverer.Start(ctx)
		close(done)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("notification worker shutting down")
	cancel()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn("outbox pass did not finish before shutdown")
	}
}
