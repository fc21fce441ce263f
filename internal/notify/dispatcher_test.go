package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/events"
)

type recordingEmail struct {
	sent []EmailMessage
	err  error
}

func (r *recordingEmail) Send(ctx context.Context, msg EmailMessage) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

type recordingSMS struct {
	to  []string
	err error
}

func (r *recordingSMS) SendSMS(ctx context.Context, to, body string) error {
	if r.err != nil {
		return r.err
	}
	r.to = append(r.to, to)
	return nil
}

type recordingOutbox struct {
	eventTypes []string
	payloads   []any
}

func (r *recordingOutbox) Insert(ctx context.Context, eventType string, payload any) (uuid.UUID, error) {
	r.eventTypes = append(r.eventTypes, eventType)
	r.payloads = append(r.payloads, payload)
	return uuid.New(), nil
}

func TestDispatcherDeliverSuccess(t *testing.T) {
	email := &recordingEmail{}
	sms := &recordingSMS{}
	outbox := &recordingOutbox{}
	d := NewDispatcher(email, sms, nil, WithOutbox(outbox))

	apptID := uuid.New()
	if !d.Deliver(context.Background(), Outbound{Channel: ChannelEmail, To: "owner@clinic.test", Subject: "New Appointment", Body: "booked", AppointmentID: &apptID}) {
		t.Fatal("expected email delivery")
	}
	if !d.Deliver(context.Background(), Outbound{Channel: ChannelSMS, To: "+639170000001", Body: "confirmed"}) {
		t.Fatal("expected sms delivery")
	}
	if len(email.sent) != 1 || email.sent[0].Subject != "New Appointment" {
		t.Fatalf("unexpected emails %+v", email.sent)
	}
	if got := email.sent[0].AppointmentID; got == nil || *got != apptID {
		t.Fatalf("appointment id not carried to email, got %v", got)
	}
	if len(sms.to) != 1 || sms.to[0] != "+639170000001" {
		t.Fatalf("unexpected sms recipients %v", sms.to)
	}
	if len(outbox.eventTypes) != 0 {
		t.Fatalf("nothing should be queued, got %v", outbox.eventTypes)
	}
}

func TestDispatcherQueuesFailedSend(t *testing.T) {
	outbox := &recordingOutbox{}
	d := NewDispatcher(&recordingEmail{err: errors.New("provider down")}, nil, nil, WithOutbox(outbox))

	msg := Outbound{Channel: ChannelEmail, To: "owner@clinic.test", Subject: "Cancellation Request", Body: "please review"}
	if d.Deliver(context.Background(), msg) {
		t.Fatal("expected failed delivery")
	}
	if len(outbox.eventTypes) != 1 || outbox.eventTypes[0] != OutboundEventType {
		t.Fatalf("expected one queued retry, got %v", outbox.eventTypes)
	}
	if queued, ok := outbox.payloads[0].(Outbound); !ok || queued.To != msg.To {
		t.Fatalf("unexpected payload %#v", outbox.payloads[0])
	}
}

func TestDispatcherSkipsMissingRecipient(t *testing.T) {
	outbox := &recordingOutbox{}
	d := NewDispatcher(nil, &recordingSMS{}, nil, WithOutbox(outbox))

	if d.Deliver(context.Background(), Outbound{Channel: ChannelSMS, To: "  ", Body: "hi"}) {
		t.Fatal("expected no delivery without a recipient")
	}
	if len(outbox.eventTypes) != 0 {
		t.Fatal("missing recipients must not be retried")
	}
	if err := d.Send(context.Background(), Outbound{Channel: ChannelSMS}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestDispatcherDisabledChannel(t *testing.T) {
	d := NewDispatcher(nil, nil, nil)
	if err := d.Send(context.Background(), Outbound{Channel: ChannelEmail, To: "a@b.test"}); err == nil {
		t.Fatal("expected error for disabled email channel")
	}
	if err := d.Send(context.Background(), Outbound{Channel: "fax", To: "123"}); err == nil {
		t.Fatal("expected error for unknown channel")
	}
	var nilDispatcher *Dispatcher
	if nilDispatcher.Deliver(context.Background(), Outbound{}) {
		t.Fatal("nil dispatcher should never deliver")
	}
}

func TestRetryHandlerReplaysOutbound(t *testing.T) {
	sms := &recordingSMS{}
	h := NewRetryHandler(NewDispatcher(nil, sms, nil))

	payload, err := json.Marshal(Outbound{Channel: ChannelSMS, To: "+639170000002", Body: "reminder"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := h.Handle(context.Background(), events.OutboxEntry{ID: uuid.New(), Type: OutboundEventType, Payload: payload}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sms.to) != 1 || sms.to[0] != "+639170000002" {
		t.Fatalf("expected replayed sms, got %v", sms.to)
	}

	if err := h.Handle(context.Background(), events.OutboxEntry{Type: "other.v1", Payload: payload}); err == nil {
		t.Fatal("expected error for foreign event type")
	}
	if err := h.Handle(context.Background(), events.OutboxEntry{Type: OutboundEventType, Payload: []byte("{")}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNewRetryHandlerPanicsWithoutDispatcher(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	NewRetryHandler(nil)
}
