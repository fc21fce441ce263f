package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	"github.com/wolfman30/skinovation-clinic/internal/attendants"
	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// RosterHandler lets owners maintain the attendant roster and switch
// attendant sign-in on or off.
type RosterHandler struct {
	roster    attendants.Repository
	directory accounts.Directory
	audit     history.Recorder
	logger    *logging.Logger
}

func NewRosterHandler(roster attendants.Repository, directory accounts.Directory, audit history.Recorder, logger *logging.Logger) *RosterHandler {
	if roster == nil {
		panic("handlers: attendant roster required")
	}
	if directory == nil {
		panic("handlers: account directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RosterHandler{roster: roster, directory: directory, audit: audit, logger: logger}
}

type rosterRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// List GET /roster
func (h *RosterHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.roster.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list attendants", "error", err)
		jsonError(w, "failed to list attendants", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"attendants": nonNil(list)})
}

// Create POST /roster
func (h *RosterHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	var req rosterRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	a, err := h.roster.Create(r.Context(), req.FirstName, req.LastName)
	if errors.Is(err, attendants.ErrNameRequired) {
		jsonError(w, "Please fill in all required fields.", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to add attendant", "error", err)
		jsonError(w, "failed to add attendant", http.StatusInternalServerError)
		return
	}
	h.logger.Info("attendant added", "attendant_id", a.ID, "performed_by", actor.UserID)
	h.record(r.Context(), actor, history.TypeAttendant, a.FullName(), "added", a.ID)
	writeJSON(w, http.StatusCreated, a)
}

// Delete DELETE /roster/{id}
func (h *RosterHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	a, err := h.roster.Get(r.Context(), id)
	if errors.Is(err, attendants.ErrNotFound) {
		jsonError(w, "attendant not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to load attendant", "error", err, "attendant_id", id)
		jsonError(w, "failed to load attendant", http.StatusInternalServerError)
		return
	}
	switch err := h.roster.Delete(r.Context(), id); {
	case errors.Is(err, attendants.ErrNotFound):
		jsonError(w, "attendant not found", http.StatusNotFound)
		return
	case errors.Is(err, attendants.ErrInUse):
		jsonError(w, a.FullName()+" still has appointments and cannot be deleted.", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("failed to delete attendant", "error", err, "attendant_id", id)
		jsonError(w, "failed to delete attendant", http.StatusInternalServerError)
		return
	}
	h.logger.Info("attendant deleted", "attendant_id", id, "performed_by", actor.UserID)
	h.record(r.Context(), actor, history.TypeAttendant, a.FullName(), "deleted", id)
	w.WriteHeader(http.StatusNoContent)
}

// ToggleActive flips sign-in for an attendant account.
// POST /attendants/{userID}/toggle-active
func (h *RosterHandler) ToggleActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	user, ok := attendantAccount(w, r, h.directory, h.logger)
	if !ok {
		return
	}
	updated, err := h.directory.SetActive(r.Context(), user.ID, !user.Active)
	if err != nil {
		h.logger.Error("failed to toggle attendant account", "error", err, "user_id", user.ID)
		jsonError(w, "failed to update attendant account", http.StatusInternalServerError)
		return
	}
	action := "deactivated"
	if updated.Active {
		action = "activated"
	}
	h.logger.Info("attendant account "+action, "user_id", user.ID, "performed_by", actor.UserID)
	h.record(r.Context(), actor, history.TypeAccount, updated.FullName(), action, user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": updated.ID, "name": updated.FullName(), "active": updated.Active})
}

func (h *RosterHandler) record(ctx context.Context, actor identity.Principal, typ history.EntryType, name, action string, related uuid.UUID) {
	if h.audit == nil {
		return
	}
	by := actor.UserID
	entry := history.Entry{Type: typ, Name: name, Action: action, PerformedBy: &by, RelatedID: &related}
	if err := h.audit.Log(ctx, entry); err != nil {
		h.logger.Warn("failed to record roster history", "error", err, "action", action)
	}
}
