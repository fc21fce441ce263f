package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/wolfman30/skinovation-clinic/internal/accounts"
	"github.com/wolfman30/skinovation-clinic/internal/calendar"
	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/internal/identity"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// SchedulesHandler reads and edits attendant schedule profiles.
type SchedulesHandler struct {
	directory accounts.Directory
	audit     history.Recorder
	logger    *logging.Logger
}

func NewSchedulesHandler(directory accounts.Directory, audit history.Recorder, logger *logging.Logger) *SchedulesHandler {
	if directory == nil {
		panic("handlers: account directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &SchedulesHandler{directory: directory, audit: audit, logger: logger}
}

type scheduleResponse struct {
	UserID    string   `json:"user_id"`
	Name      string   `json:"name"`
	WorkDays  []string `json:"work_days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	// Configured is false when the attendant has no profile and therefore
	// accepts any slot.
	Configured bool `json:"configured"`
}

type scheduleRequest struct {
	WorkDays  []string `json:"work_days"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
}

// Get GET /attendants/{userID}/schedule
func (h *SchedulesHandler) Get(w http.ResponseWriter, r *http.Request) {
	if _, ok := principal(w, r); !ok {
		return
	}
	user, ok := h.attendantUser(w, r)
	if !ok {
		return
	}
	resp := scheduleResponse{UserID: user.ID.String(), Name: user.FullName(), WorkDays: []string{}}
	profile, err := h.directory.ScheduleProfile(r.Context(), user.ID)
	switch {
	case errors.Is(err, accounts.ErrProfileNotFound):
	case err != nil:
		h.logger.Error("failed to load schedule profile", "error", err, "user_id", user.ID)
		jsonError(w, "failed to load schedule", http.StatusInternalServerError)
		return
	default:
		resp.Configured = true
		resp.WorkDays = profile.DayNames()
		resp.StartTime = profile.Start.String()
		resp.EndTime = profile.End.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Put replaces an attendant's schedule profile.
// PUT /attendants/{userID}/schedule
func (h *SchedulesHandler) Put(w http.ResponseWriter, r *http.Request) {
	actor, ok := principal(w, r)
	if !ok {
		return
	}
	user, ok := h.attendantUser(w, r)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	profile, err := req.profile(user)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.directory.UpsertScheduleProfile(r.Context(), profile); err != nil {
		if errors.Is(err, accounts.ErrInvalidProfile) {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to save schedule profile", "error", err, "user_id", user.ID)
		jsonError(w, "failed to save schedule", http.StatusInternalServerError)
		return
	}

	h.logger.Info("attendant schedule updated", "user_id", user.ID, "performed_by", actor.UserID)
	if h.audit != nil {
		by := actor.UserID
		related := user.ID
		entry := history.Entry{
			Type:        history.TypeSchedule,
			Name:        user.FullName(),
			Action:      "updated",
			PerformedBy: &by,
			Details:     fmt.Sprintf("%s %s-%s", strings.Join(profile.DayNames(), ","), profile.Start, profile.End),
			RelatedID:   &related,
		}
		if err := h.audit.Log(r.Context(), entry); err != nil {
			h.logger.Warn("failed to record schedule history", "error", err, "user_id", user.ID)
		}
	}

	writeJSON(w, http.StatusOK, scheduleResponse{
		UserID:     user.ID.String(),
		Name:       user.FullName(),
		WorkDays:   profile.DayNames(),
		StartTime:  profile.Start.String(),
		EndTime:    profile.End.String(),
		Configured: true,
	})
}

func (req scheduleRequest) profile(user *accounts.User) (accounts.ScheduleProfile, error) {
	days, err := accounts.ParseDayNames(req.WorkDays)
	if err != nil {
		return accounts.ScheduleProfile{}, err
	}
	start, err := calendar.ParseClock(req.StartTime)
	if err != nil {
		return accounts.ScheduleProfile{}, fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := calendar.ParseClock(req.EndTime)
	if err != nil {
		return accounts.ScheduleProfile{}, fmt.Errorf("invalid end_time: %w", err)
	}
	p := accounts.ScheduleProfile{UserID: user.ID, WorkDays: days, Start: start, End: end}
	return p, p.Validate()
}

func (h *SchedulesHandler) attendantUser(w http.ResponseWriter, r *http.Request) (*accounts.User, bool) {
	return attendantAccount(w, r, h.directory, h.logger)
}

// attendantAccount resolves {userID} to an attendant account.
func attendantAccount(w http.ResponseWriter, r *http.Request, directory accounts.Directory, logger *logging.Logger) (*accounts.User, bool) {
	id, ok := uuidParam(w, r, "userID")
	if !ok {
		return nil, false
	}
	user, err := directory.Get(r.Context(), id)
	if errors.Is(err, accounts.ErrUserNotFound) || (err == nil && user.Role != identity.RoleAttendant) {
		jsonError(w, "attendant not found", http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		logger.Error("failed to load user", "error", err, "user_id", id)
		jsonError(w, "failed to load attendant", http.StatusInternalServerError)
		return nil, false
	}
	return user, true
}
