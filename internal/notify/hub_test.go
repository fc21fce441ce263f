package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/skinovation-clinic/internal/identity"
)

func dialHub(t *testing.T, hub *Hub, principal identity.Principal) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.HandleWebSocket(w, r.WithContext(identity.WithPrincipal(r.Context(), principal)))
	}))
	t.Cleanup(srv.Close)

	conn, err := websocket.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), "", "http://localhost/")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func receive(t *testing.T, conn *websocket.Conn) LiveMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg LiveMessage
	if err := websocket.JSON.Receive(conn, &msg); err != nil {
		t.Fatalf("receive: %v", err)
	}
	return msg
}

func TestHubPushesVisibleNotifications(t *testing.T) {
	hub := NewHub(nil)
	patient := identity.Principal{UserID: uuid.New(), Role: identity.RolePatient}
	conn := dialHub(t, hub, patient)

	if msg := receive(t, conn); msg.Type != "ready" {
		t.Fatalf("expected ready frame, got %q", msg.Type)
	}

	hub.Publish(ToOwners(TypeAppointment, "New Appointment", "booked", nil))
	hub.Publish(ToUser(uuid.New(), TypeConfirmation, "Other", "not yours", nil))
	hub.Publish(ToUser(patient.UserID, TypeConfirmation, "Appointment Confirmed", "yours", nil))

	msg := receive(t, conn)
	if msg.Type != "notification" || msg.Notification == nil || msg.Notification.Title != "Appointment Confirmed" {
		t.Fatalf("unexpected frame %+v", msg)
	}
}

func TestHubAnswersPing(t *testing.T) {
	hub := NewHub(nil)
	conn := dialHub(t, hub, identity.Principal{UserID: uuid.New(), Role: identity.RoleOwner})
	receive(t, conn)

	if err := websocket.JSON.Send(conn, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg := receive(t, conn); msg.Type != "pong" {
		t.Fatalf("expected pong, got %q", msg.Type)
	}
	if hub.Connections() != 1 {
		t.Fatalf("expected one open session, got %d", hub.Connections())
	}
}

func TestHubRejectsAnonymous(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHub(nil).HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/notifications/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAudienceForManagers(t *testing.T) {
	id := uuid.New()
	if !AudienceFor(identity.Principal{UserID: id, Role: identity.RoleAdmin}).Owners {
		t.Fatal("admins see owner broadcasts")
	}
	if AudienceFor(identity.Principal{UserID: id, Role: identity.RoleAttendant}).Owners {
		t.Fatal("attendants do not see owner broadcasts")
	}
}
