package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/wolfman30/skinovation-clinic/internal/notify"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

const defaultNotificationLimit = 50

// NotificationsHandler serves the in-app notification feed.
type NotificationsHandler struct {
	store  notify.Store
	logger *logging.Logger
}

func NewNotificationsHandler(store notify.Store, logger *logging.Logger) *NotificationsHandler {
	if store == nil {
		panic("handlers: notification store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &NotificationsHandler{store: store, logger: logger}
}

// List returns the caller's notifications with the unread count.
// GET /notifications?limit=
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	limit := defaultNotificationLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n < limit {
			limit = n
		}
	}

	audience := notify.AudienceFor(p)
	items, err := h.store.List(r.Context(), audience, limit)
	if err != nil {
		h.logger.Error("failed to list notifications", "error", err, "user_id", p.UserID)
		jsonError(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	unread, err := h.store.UnreadCount(r.Context(), audience)
	if err != nil {
		h.logger.Error("failed to count unread notifications", "error", err, "user_id", p.UserID)
		jsonError(w, "failed to list notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"notifications": nonNil(items),
		"unread_count":  unread,
	})
}

// MarkRead POST /notifications/{id}/read
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.MarkRead(r.Context(), notify.AudienceFor(p), id); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			jsonError(w, "notification not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to mark notification read", "error", err, "notification_id", id)
		jsonError(w, "failed to update notification", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// MarkAllRead POST /notifications/read-all
func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	n, err := h.store.MarkAllRead(r.Context(), notify.AudienceFor(p))
	if err != nil {
		h.logger.Error("failed to mark notifications read", "error", err, "user_id", p.UserID)
		jsonError(w, "failed to update notifications", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": n})
}
