package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("SLOT_CAPACITY", "")
	t.Setenv("CANCELLATION_NOTICE_DAYS", "")
	t.Setenv("EMAIL_PROVIDER", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.SlotCapacity != 3 {
		t.Fatalf("expected slot capacity 3, got %d", cfg.SlotCapacity)
	}
	if cfg.CancellationNoticeDays != 2 {
		t.Fatalf("expected 2 notice days, got %d", cfg.CancellationNoticeDays)
	}
	if cfg.EmailProvider != "stub" {
		t.Fatalf("expected stub email provider, got %s", cfg.EmailProvider)
	}
	if cfg.CORSAllowedOrigins != nil {
		t.Fatalf("expected no cors origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.OutboxPollInterval != 2*time.Second {
		t.Fatalf("expected default outbox interval, got %s", cfg.OutboxPollInterval)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SLOT_CAPACITY", "5")
	t.Setenv("EMAIL_PROVIDER", " SES ")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SCHEDULE_CACHE_TTL", "90s")
	t.Setenv("REDIS_TLS", "true")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SlotCapacity != 5 {
		t.Fatalf("expected slot capacity override, got %d", cfg.SlotCapacity)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected normalized email provider, got %q", cfg.EmailProvider)
	}
	if len(cfg.CORSAllowedOrigins) != 2 || cfg.CORSAllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected cors origins %v", cfg.CORSAllowedOrigins)
	}
	if cfg.ScheduleCacheTTL != 90*time.Second {
		t.Fatalf("expected cache ttl override, got %s", cfg.ScheduleCacheTTL)
	}
	if !cfg.RedisTLS {
		t.Fatalf("expected redis tls enabled")
	}
}

func TestLocationFallsBackToUTC(t *testing.T) {
	cfg := &Config{ClinicTimezone: "Not/AZone"}
	if cfg.Location() != time.UTC {
		t.Fatalf("expected UTC fallback")
	}
	cfg.ClinicTimezone = "Asia/Manila"
	if cfg.Location().String() != "Asia/Manila" {
		t.Fatalf("expected Asia/Manila, got %s", cfg.Location())
	}
}
