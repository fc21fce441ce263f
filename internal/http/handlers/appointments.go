package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/appointments"
	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// AppointmentsHandler exposes the booking workflow and status lifecycle.
type AppointmentsHandler struct {
	svc    *appointments.Service
	logger *logging.Logger
}

func NewAppointmentsHandler(svc *appointments.Service, logger *logging.Logger) *AppointmentsHandler {
	if svc == nil {
		panic("handlers: appointments service required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

// Book creates an appointment for the calling patient.
// POST /appointments
func (h *AppointmentsHandler) Book(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	var req appointments.BookRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req.PatientID = p.UserID

	res, err := h.svc.Book(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.logger, "book", err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// ListMine returns the caller's own appointments.
// GET /appointments/mine
func (h *AppointmentsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListForPatient(r.Context(), p)
	if err != nil {
		writeServiceError(w, h.logger, "list_mine", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(list)})
}

// List returns appointments for staff, filtered by status, date and attendant.
// GET /appointments?status=&date=&attendant_id=
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := appointments.ListFilter{Status: appointments.Status(q.Get("status"))}
	if raw := q.Get("date"); raw != "" {
		d, err := calendar.ParseDate(raw, time.UTC)
		if err != nil {
			jsonError(w, "invalid date", http.StatusBadRequest)
			return
		}
		filter.Date = &d
	}
	attendantID, err := optionalUUID(r, "attendant_id")
	if err != nil {
		jsonError(w, "invalid attendant_id", http.StatusBadRequest)
		return
	}
	filter.AttendantID = attendantID

	list, err := h.svc.List(r.Context(), p, filter)
	if err != nil {
		writeServiceError(w, h.logger, "list", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": nonNil(list)})
}

// Get returns one appointment visible to the caller.
// GET /appointments/{id}
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, h.logger, "get", err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Confirm moves a pending appointment to confirmed.
// POST /appointments/{id}/confirm
func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "confirm", h.svc.Confirm)
}

// Complete closes an appointment and prompts the patient for feedback.
// POST /appointments/{id}/complete
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "complete", h.svc.Complete)
}

// Cancel is the staff-side direct cancellation.
// POST /appointments/{id}/cancel
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, "cancel", h.svc.Cancel)
}

type transitionFunc func(ctx context.Context, actor identity.Principal, id uuid.UUID) (*appointments.Appointment, error)

func (h *AppointmentsHandler) transition(w http.ResponseWriter, r *http.Request, op string, fn transitionFunc) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	appt, err := fn(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

type reasonBody struct {
	Reason string `json:"reason"`
}

// RequestCancellation files a patient cancellation request for staff review.
// POST /appointments/{id}/cancellation-requests
func (h *AppointmentsHandler) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var body reasonBody
	if err := decodeJSON(r, &body); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req, err := h.svc.RequestCancellation(r.Context(), p, id, body.Reason)
	if err != nil {
		writeServiceError(w, h.logger, "request_cancellation", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request": req,
		"message": appointments.MsgCancellationSubmitted,
	})
}

// RequestReschedule files a patient reschedule request for staff review.
// POST /appointments/{id}/reschedule-requests
func (h *AppointmentsHandler) RequestReschedule(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in appointments.RescheduleInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	req, err := h.svc.RequestReschedule(r.Context(), p, id, in)
	if err != nil {
		writeServiceError(w, h.logger, "request_reschedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"request": req,
		"message": appointments.MsgRescheduleSubmitted,
	})
}

// SubmitFeedback records the patient's rating of a completed appointment.
// POST /appointments/{id}/feedback
func (h *AppointmentsHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	var in appointments.FeedbackInput
	if err := decodeJSON(r, &in); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	fb, err := h.svc.SubmitFeedback(r.Context(), p, id, in)
	if err != nil {
		writeServiceError(w, h.logger, "submit_feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"feedback": fb,
		"message":  appointments.MsgFeedbackThanks,
	})
}

// ListFeedback returns feedback; attendants only see their own.
// GET /feedback?attendant_id=
func (h *AppointmentsHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	attendantID, err := optionalUUID(r, "attendant_id")
	if err != nil {
		jsonError(w, "invalid attendant_id", http.StatusBadRequest)
		return
	}
	list, err := h.svc.ListFeedback(r.Context(), p, attendantID)
	if err != nil {
		writeServiceError(w, h.logger, "list_feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": nonNil(list)})
}

// ListCancellationRequests GET /cancellation-requests?status=
func (h *AppointmentsHandler) ListCancellationRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListCancellationRequests(r.Context(), p, appointments.RequestStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, h.logger, "list_cancellation_requests", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": nonNil(list)})
}

// ListRescheduleRequests GET /reschedule-requests?status=
func (h *AppointmentsHandler) ListRescheduleRequests(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	list, err := h.svc.ListRescheduleRequests(r.Context(), p, appointments.RequestStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeServiceError(w, h.logger, "list_reschedule_requests", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": nonNil(list)})
}

// ApproveCancellation POST /cancellation-requests/{id}/approve
func (h *AppointmentsHandler) ApproveCancellation(w http.ResponseWriter, r *http.Request) {
	resolveRequest(h, w, r, "approve_cancellation", h.svc.ApproveCancellation)
}

// RejectCancellation POST /cancellation-requests/{id}/reject
func (h *AppointmentsHandler) RejectCancellation(w http.ResponseWriter, r *http.Request) {
	resolveRequest(h, w, r, "reject_cancellation", h.svc.RejectCancellation)
}

// ApproveReschedule POST /reschedule-requests/{id}/approve
func (h *AppointmentsHandler) ApproveReschedule(w http.ResponseWriter, r *http.Request) {
	resolveRequest(h, w, r, "approve_reschedule", h.svc.ApproveReschedule)
}

// RejectReschedule POST /reschedule-requests/{id}/reject
func (h *AppointmentsHandler) RejectReschedule(w http.ResponseWriter, r *http.Request) {
	resolveRequest(h, w, r, "reject_reschedule", h.svc.RejectReschedule)
}

func resolveRequest[T any](h *AppointmentsHandler, w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, actor identity.Principal, id uuid.UUID) (*T, error)) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	out, err := fn(r.Context(), p, id)
	if err != nil {
		writeServiceError(w, h.logger, op, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// AvailableAttendants lists attendants that can take the slot.
// GET /attendants/available?date=&time=
func (h *AppointmentsHandler) AvailableAttendants(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.svc.AvailableAttendants(r.Context(), q.Get("date"), q.Get("time"))
	if err != nil {
		writeServiceError(w, h.logger, "available_attendants", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendants": nonNil(list)})
}

// nonNil keeps empty listings rendering as [] rather than null.
func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
