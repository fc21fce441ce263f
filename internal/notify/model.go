package notify

import (
	"time"

	"github.com/google/uuid"
)

// Type tags a notification for filtering and icons in the portal.
type Type string

const (
	TypeAppointment  Type = "appointment"
	TypeConfirmation Type = "confirmation"
	TypeCancellation Type = "cancellation"
	TypeReschedule   Type = "reschedule"
	TypeFeedback     Type = "feedback"
	TypeSystem       Type = "system"
)

// Notification is the durable in-app record. A nil UserID addresses every
// owner account.
type Notification struct {
	ID            uuid.UUID  `json:"id"`
	Type          Type       `json:"type"`
	Title         string     `json:"title"`
	Message       string     `json:"message"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
	Read          bool       `json:"is_read"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ForOwners reports whether the notification is an owner broadcast.
func (n Notification) ForOwners() bool {
	return n.UserID == nil
}

// ToUser builds a notification addressed to one account.
func ToUser(userID uuid.UUID, typ Type, title, message string, appointmentID *uuid.UUID) Notification {
	id := userID
	return Notification{Type: typ, Title: title, Message: message, UserID: &id, AppointmentID: appointmentID}
}

// ToOwners builds an owner broadcast.
func ToOwners(typ Type, title, message string, appointmentID *uuid.UUID) Notification {
	return Notification{Type: typ, Title: title, Message: message, AppointmentID: appointmentID}
}

// Audience selects which notifications a caller may see: their own, plus
// owner broadcasts when Owners is set.
type Audience struct {
	UserID uuid.UUID
	Owners bool
}

// Sees reports whether n is visible to the audience.
func (a Audience) Sees(n Notification) bool {
	if n.UserID == nil {
		return a.Owners
	}
	return *n.UserID == a.UserID
}
