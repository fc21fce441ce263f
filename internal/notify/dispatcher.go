package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/events"
	"github.com/wolfman30/skinovation-clinic/internal/observability/metrics"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// OutboundEventType tags retryable outbound messages in the outbox.
const OutboundEventType = "notify.outbound.v1"

// Channel is an external delivery route.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ErrNoRecipient means the account has no address for the channel.
var ErrNoRecipient = errors.New("notify: recipient has no address for channel")

// Outbound is one external message.
type Outbound struct {
	Channel       Channel    `json:"channel"`
	To            string     `json:"to"`
	ToName        string     `json:"to_name,omitempty"`
	Subject       string     `json:"subject,omitempty"`
	Body          string     `json:"body"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// Enqueuer stores messages for a later retry. *events.OutboxStore satisfies it.
type Enqueuer interface {
	Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error)
}

// Dispatcher sends SMS and email on behalf of the booking workflow. A failed
// send never surfaces as an error to the caller: it is logged, queued for
// retry, and reported as false.
type Dispatcher struct {
	email   EmailSender
	sms     SMSSender
	outbox  Enqueuer
	timeout time.Duration
	metrics *metrics.NotifyMetrics
	logger  *logging.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithOutbox enables retry queueing for failed sends.
func WithOutbox(outbox Enqueuer) DispatcherOption {
	return func(d *Dispatcher) { d.outbox = outbox }
}

// WithTimeout bounds each provider call.
func WithTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithMetrics records delivery counters.
func WithMetrics(m *metrics.NotifyMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher builds a dispatcher. Nil senders disable their channel.
func NewDispatcher(email EmailSender, sms SMSSender, logger *logging.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	d := &Dispatcher{email: email, sms: sms, timeout: 5 * time.Second, logger: logger}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Deliver attempts msg once and reports whether it went out.
func (d *Dispatcher) Deliver(ctx context.Context, msg Outbound) bool {
	if d == nil {
		return false
	}
	err := d.Send(ctx, msg)
	if err == nil {
		d.metrics.ObserveDelivery(string(msg.Channel), "sent")
		return true
	}
	if errors.Is(err, ErrNoRecipient) {
		d.metrics.ObserveDelivery(string(msg.Channel), "skipped")
		return false
	}
	d.metrics.ObserveDelivery(string(msg.Channel), "failed")
	d.logger.Warn("notification delivery failed", "error", err, "channel", msg.Channel, "appointment_id", msg.AppointmentID)
	if d.outbox != nil {
		// The caller's context may already be near its deadline.
		enqueueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if _, qerr := d.outbox.Insert(enqueueCtx, OutboundEventType, msg); qerr != nil {
			d.logger.Error("failed to queue notification retry", "error", qerr, "channel", msg.Channel)
		}
	}
	return false
}

// Send performs one provider call and returns its error.
func (d *Dispatcher) Send(ctx context.Context, msg Outbound) error {
	if strings.TrimSpace(msg.To) == "" {
		return ErrNoRecipient
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch msg.Channel {
	case ChannelSMS:
		if d.sms == nil {
			return fmt.Errorf("notify: sms channel disabled")
		}
		return d.sms.SendSMS(ctx, msg.To, msg.Body)
	case ChannelEmail:
		if d.email == nil {
			return fmt.Errorf("notify: email channel disabled")
		}
		return d.email.Send(ctx, EmailMessage{To: msg.To, ToName: msg.ToName, Subject: msg.Subject, Body: msg.Body, AppointmentID: msg.AppointmentID})
	default:
		return fmt.Errorf("notify: unknown channel %q", msg.Channel)
	}
}

// RetryHandler replays queued outbound messages from the outbox.
type RetryHandler struct {
	dispatcher *Dispatcher
}

func NewRetryHandler(d *Dispatcher) *RetryHandler {
	if d == nil {
		panic("notify: dispatcher required")
	}
	return &RetryHandler{dispatcher: d}
}

// Handle implements events.DeliveryHandler.
func (h *RetryHandler) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != OutboundEventType {
		return fmt.Errorf("notify: unexpected outbox event %q", entry.Type)
	}
	var msg Outbound
	if err := json.Unmarshal(entry.Payload, &msg); err != nil {
		return fmt.Errorf("notify: decode outbound: %w", err)
	}
	err := h.dispatcher.Send(ctx, msg)
	status := "delivered"
	if err != nil {
		status = "failed"
	}
	h.dispatcher.metrics.ObserveRetry(string(msg.Channel), status)
	return err
}

var _ events.DeliveryHandler = (*RetryHandler)(nil)
