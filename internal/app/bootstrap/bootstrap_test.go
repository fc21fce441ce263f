package bootstrap

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	appconfig "github.com/wolfman30/skinovation-clinic/internal/config"
	httpmiddleware "github.com/wolfman30/skinovation-clinic/internal/http/middleware"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildDirectoryCachesWithRedis(t *testing.T) {
	logger := logging.New("error")
	cfg := &appconfig.Config{}
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	if _, ok := BuildDirectory(db, nil, cfg, logger).(*accounts.SQLDirectory); !ok {
		t.Fatalf("expected plain directory without redis")
	}

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer client.Close()
	if _, ok := BuildDirectory(db, client, cfg, logger).(*accounts.ProfileCache); !ok {
		t.Fatalf("expected profile cache with redis")
	}
}

func TestBuildBookingLimiter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := logging.New("error")

	if l := BuildBookingLimiter(ctx, nil, &appconfig.Config{}, logger); l != nil {
		t.Fatalf("expected limiter disabled at zero budget")
	}
	if _, ok := BuildBookingLimiter(ctx, nil, &appconfig.Config{BookingRatePerMinute: 5}, logger).(*httpmiddleware.MemoryLimiter); !ok {
		t.Fatalf("expected memory limiter without redis")
	}
	mr := miniredis.RunT(t)
	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer client.Close()
	if _, ok := BuildBookingLimiter(ctx, client, &appconfig.Config{BookingRatePerMinute: 5}, logger).(*httpmiddleware.RedisLimiter); !ok {
		t.Fatalf("expected redis limiter")
	}
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.New("error")
	tests := []struct {
		name     string
		cfg      appconfig.Config
		provider string
		wantErr  bool
	}{
		{name: "default stub", cfg: appconfig.Config{}, provider: "stub"},
		{name: "sendgrid", cfg: appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.key", SendGridFromEmail: "hello@clinic.test"}, provider: "sendgrid"},
		{name: "sendgrid without key", cfg: appconfig.Config{EmailProvider: "sendgrid"}, provider: "stub"},
		{name: "ses without aws config", cfg: appconfig.Config{EmailProvider: "ses", SESFromEmail: "hello@clinic.test"}, wantErr: true},
		{name: "unknown", cfg: appconfig.Config{EmailProvider: "pigeon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			sender, provider, err := BuildEmailSender(&cfg, nil, logger)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if sender == nil || provider != tt.provider {
				t.Fatalf("expected %s sender, got %q (%T)", tt.provider, provider, sender)
			}
		})
	}
}

func TestBuildSMSSender(t *testing.T) {
	logger := logging.New("error")
	if _, provider := BuildSMSSender(&appconfig.Config{}, logger); provider != "stub" {
		t.Fatalf("expected stub without credentials, got %q", provider)
	}
	sender, provider := BuildSMSSender(&appconfig.Config{TwilioAccountSID: "AC1", TwilioAuthToken: "tok", TwilioFromNumber: "+15550000000"}, logger)
	if provider != "twilio" {
		t.Fatalf("expected twilio, got %q", provider)
	}
	if _, ok := sender.(*notify.TwilioSender); !ok {
		t.Fatalf("unexpected sender %T", sender)
	}
}
