package appointments

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/catalog"
)

// Status is the appointment lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Active statuses occupy a slot and may still change.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment is a booking of one catalog item with one attendant.
type Appointment struct {
	ID            uuid.UUID      `json:"id"`
	PatientID     uuid.UUID      `json:"patient_id"`
	AttendantID   uuid.UUID      `json:"attendant_id"`
	Item          catalog.Ref    `json:"item"`
	Date          time.Time      `json:"-"`
	Time          calendar.Clock `json:"time"`
	Status        Status         `json:"status"`
	TransactionID string         `json:"transaction_id"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// MarshalJSON renders Date as YYYY-MM-DD.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	return json.Marshal(struct {
		alias
		Date string `json:"date"`
	}{alias: alias(a), Date: a.DateString()})
}

// Slot returns the (date, time, attendant) triple the appointment occupies.
func (a Appointment) Slot() Slot {
	return Slot{Date: a.Date, Time: a.Time, AttendantID: a.AttendantID}
}

// DateString renders Date as YYYY-MM-DD.
func (a Appointment) DateString() string {
	return a.Date.Format(calendar.DateLayout)
}

// Slot is a capacity-limited (date, time, attendant) triple.
type Slot struct {
	Date        time.Time
	Time        calendar.Clock
	AttendantID uuid.UUID
}

// Key is a stable string identity for locking.
func (s Slot) Key() string {
	return fmt.Sprintf("%s|%s|%s", s.Date.Format(calendar.DateLayout), s.Time, s.AttendantID)
}

// RequestStatus tracks a patient request through staff review.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// AppointmentType distinguishes regular bookings from package sessions in
// cancellation requests.
type AppointmentType string

const (
	TypeRegular AppointmentType = "regular"
	TypePackage AppointmentType = "package"
)

// CancellationRequest is a patient's request to cancel.
type CancellationRequest struct {
	ID              uuid.UUID       `json:"id"`
	AppointmentID   uuid.UUID       `json:"appointment_id"`
	PatientID       uuid.UUID       `json:"patient_id"`
	AppointmentType AppointmentType `json:"appointment_type"`
	Reason          string          `json:"reason"`
	Status          RequestStatus   `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
	ResolvedBy      *uuid.UUID      `json:"resolved_by,omitempty"`
}

// RescheduleRequest is a patient's request to move to a new date and time.
type RescheduleRequest struct {
	ID            uuid.UUID      `json:"id"`
	AppointmentID uuid.UUID      `json:"appointment_id"`
	PatientID     uuid.UUID      `json:"patient_id"`
	NewDate       time.Time      `json:"-"`
	NewTime       calendar.Clock `json:"new_time"`
	Reason        string         `json:"reason"`
	Status        RequestStatus  `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy    *uuid.UUID     `json:"resolved_by,omitempty"`
}

// MarshalJSON renders NewDate as YYYY-MM-DD.
func (r RescheduleRequest) MarshalJSON() ([]byte, error) {
	type alias RescheduleRequest
	return json.Marshal(struct {
		alias
		NewDate string `json:"new_date"`
	}{alias: alias(r), NewDate: r.NewDate.Format(calendar.DateLayout)})
}

// Feedback is the patient's rating of a completed appointment.
type Feedback struct {
	ID              uuid.UUID `json:"id"`
	AppointmentID   uuid.UUID `json:"appointment_id"`
	PatientID       uuid.UUID `json:"patient_id"`
	AttendantID     uuid.UUID `json:"attendant_id"`
	Rating          int       `json:"rating"`
	AttendantRating *int      `json:"attendant_rating,omitempty"`
	Comment         string    `json:"comment,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ListFilter narrows appointment listings. Zero fields match everything.
type ListFilter struct {
	PatientID   *uuid.UUID
	AttendantID *uuid.UUID
	Status      Status
	Date        *time.Time
}

// Matches reports whether a satisfies the filter.
func (f ListFilter) Matches(a Appointment) bool {
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.AttendantID != nil && a.AttendantID != *f.AttendantID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Date != nil && a.DateString() != f.Date.Format(calendar.DateLayout) {
		return false
	}
	return true
}
