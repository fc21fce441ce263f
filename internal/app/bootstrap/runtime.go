package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	appconfig "github.com/wolfman30/skinovation-clinic/internal/config"
	httpmiddleware "github.com/wolfman30/skinovation-clinic/internal/http/middleware"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildDirectory returns the account directory, fronted by the Redis
// schedule-profile cache when a client is available.
func BuildDirectory(sqlDB *sql.DB, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) accounts.Directory {
	dir := accounts.NewSQLDirectory(sqlDB)
	if redisClient == nil {
		return dir
	}
	if logger == nil {
		logger = logging.Default()
	}
	ttl := cfg.ScheduleCacheTTL
	logger.Info("schedule profile cache enabled", "ttl", ttl)
	return accounts.NewProfileCache(dir, redisClient, ttl, logger)
}

// BuildBookingLimiter prefers a Redis limiter so every API instance shares
// one budget; without Redis each process limits on its own.
func BuildBookingLimiter(ctx context.Context, redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) httpmiddleware.Limiter {
	perMinute := cfg.BookingRatePerMinute
	if perMinute <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient != nil {
		return httpmiddleware.NewRedisLimiter(redisClient, perMinute, time.Minute)
	}
	limiter := httpmiddleware.NewMemoryLimiter(perMinute)
	go limiter.RunSweeper(ctx, 5*time.Minute)
	logger.Info("booking rate limiter is process-local", "per_minute", perMinute)
	return limiter
}
