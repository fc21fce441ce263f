package bootstrap

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"

	appconfig "github.com/wolfman30/skinovation-clinic/internal/config"
	"github.com/wolfman30/skinovation-clinic/internal/events"
	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/internal/observability/metrics"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// BuildEmailSender selects the email provider named by EMAIL_PROVIDER. awsCfg
// is only consulted for "ses". Misconfigured providers fall back to the stub
// so a missing key never blocks bookings.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string, error) {
	if cfg == nil {
		return nil, "", fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		if sender != nil {
			return sender, "sendgrid", nil
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY is empty; using stub email")
	case "ses":
		if awsCfg == nil {
			return nil, "", fmt.Errorf("bootstrap: ses requires aws config")
		}
		if cfg.SESFromEmail == "" {
			return nil, "", fmt.Errorf("bootstrap: SES_FROM_EMAIL is required for ses")
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.ClinicName,
		}, logger)
		return sender, "ses", nil
	case "", "stub":
	default:
		return nil, "", fmt.Errorf("bootstrap: unknown email provider %q", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub", nil
}

// BuildSMSSender uses Twilio when credentials are present, the stub otherwise.
func BuildSMSSender(cfg *appconfig.Config, logger *logging.Logger) (notify.SMSSender, string) {
	if sender := notify.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger); sender != nil {
		return sender, "twilio"
	}
	return notify.NewStubSMSSender(logger), "stub"
}

// BuildDispatcher wires both channels with outbox retry and delivery metrics.
func BuildDispatcher(cfg *appconfig.Config, email notify.EmailSender, sms notify.SMSSender, outbox *events.OutboxStore, m *metrics.NotifyMetrics, logger *logging.Logger) *notify.Dispatcher {
	opts := []notify.DispatcherOption{
		notify.WithTimeout(cfg.DispatchTimeout),
		notify.WithMetrics(m),
	}
	if outbox != nil {
		opts = append(opts, notify.WithOutbox(outbox))
	}
	return notify.NewDispatcher(email, sms, logger, opts...)
}
