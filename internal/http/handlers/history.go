package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/wolfman30/skinovation-clinic/internal/history"
	"github.com/wolfman30/skinovation-clinic/pkg/logging"
)

// HistoryLister is satisfied by history.Log and history.MemoryLog.
type HistoryLister interface {
	List(ctx context.Context, filter history.Filter) ([]history.Entry, error)
}

// HistoryHandler exposes the audit trail to owners.
type HistoryHandler struct {
	log    HistoryLister
	logger *logging.Logger
}

func NewHistoryHandler(log HistoryLister, logger *logging.Logger) *HistoryHandler {
	if log == nil {
		panic("handlers: history log required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HistoryHandler{log: log, logger: logger}
}

// List GET /owner/history?type=&limit=
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := history.Filter{Type: history.EntryType(r.URL.Query().Get("type")), Limit: 100}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			jsonError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	entries, err := h.log.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list history", "error", err)
		jsonError(w, "failed to list history", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": nonNil(entries)})
}
