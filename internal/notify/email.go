package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// EmailSender is the clinic's outbound mail channel. Owners get booking and
// request alerts through it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a plain-text clinic email. AppointmentID, when set, is
// attached to the provider message so bounces can be traced to a booking.
type EmailMessage struct {
	To            string
	ToName        string
	Subject       string
	Body          string
	AppointmentID *uuid.UUID
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	// FromName defaults to the clinic name.
	FromName string
}

const (
	defaultFromName = "Skinovation Beauty Clinic"
	emailCategory   = "clinic-notification"
)

// SendGridSender mails owner alerts through SendGrid.
type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// NewSendGridSender returns nil without an API key so the caller can fall
// back to SES or the log-only sender.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = defaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s.client == nil {
		return fmt.Errorf("notify: clinic mail via sendgrid is not configured")
	}
	response, err := s.client.SendWithContext(ctx, s.compose(msg))
	if err != nil {
		return fmt.Errorf("notify: clinic mail to %s: %w", msg.To, err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("clinic mail rejected by sendgrid",
			"status", response.StatusCode, "recipient", msg.To, "appointment_id", appointmentRef(msg.AppointmentID), "response", response.Body)
		return fmt.Errorf("notify: clinic mail to %s rejected with status %d", msg.To, response.StatusCode)
	}
	s.logger.Info("clinic mail delivered", "provider", "sendgrid", "recipient", msg.To, "appointment_id", appointmentRef(msg.AppointmentID))
	return nil
}

// compose builds the SendGrid payload with the clinic sender, a category
// for the provider dashboards and the appointment reference.
func (s *SendGridSender) compose(msg EmailMessage) *mail.SGMailV3 {
	message := mail.NewSingleEmail(
		mail.NewEmail(s.fromName, s.fromEmail),
		msg.Subject,
		mail.NewEmail(msg.ToName, msg.To),
		msg.Body,
		renderHTML(msg.Body),
	)
	message.AddCategories(emailCategory)
	if msg.AppointmentID != nil {
		message.SetCustomArg("appointment_id", msg.AppointmentID.String())
	}
	return message
}

// StubEmailSender only logs. Local runs and deployments without mail
// credentials use it.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	s.logger.Info("clinic mail not sent, email disabled",
		"recipient", msg.To, "subject", msg.Subject, "appointment_id", appointmentRef(msg.AppointmentID))
	return nil
}

func appointmentRef(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// renderHTML escapes a plain-text body and keeps its line breaks.
func renderHTML(body string) string {
	return "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>"
}
