package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ExecutionHandler serves the execution journal. Every endpoint answers 501
// when no journal is configured.
type ExecutionHandler struct {
	store  domain.ArbExecutionStore
	logger *slog.Logger
}

// NewExecutionHandler creates an ExecutionHandler. store may be nil.
func NewExecutionHandler(store domain.ArbExecutionStore, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{store: store, logger: logger}
}

func (h *ExecutionHandler) available(w http.ResponseWriter) bool {
	if h.store == nil {
		writeError(w, http.StatusNotImplemented, "execution journal not configured")
		return false
	}
	return true
}

// ListRecent returns the newest executions.
// GET /api/executions?limit=50
func (h *ExecutionHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	list, err := h.store.ListRecent(r.Context(), queryLimit(r, 50, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	if list == nil {
		list = []domain.ArbExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": list})
}

// ListPartial returns unhedged executions since ?since=YYYY-MM-DD
// (default: the last 24 hours).
// GET /api/executions/partial
func (h *ExecutionHandler) ListPartial(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	since, ok := querySince(w, r)
	if !ok {
		return
	}
	list, err := h.store.ListPartial(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list partial executions failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list partial executions")
		return
	}
	if list == nil {
		list = []domain.ArbExecution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": since.Format(time.RFC3339), "executions": list})
}

// Profit returns realized profit since ?since=YYYY-MM-DD.
// GET /api/executions/profit
func (h *ExecutionHandler) Profit(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	since, ok := querySince(w, r)
	if !ok {
		return
	}
	sum, err := h.store.SumProfit(r.Context(), since)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "sum profit failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute profit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"since":           since.Format(time.RFC3339),
		"realized_profit": sum,
	})
}

// GetExecution returns one execution.
// GET /api/executions/{id}
func (h *ExecutionHandler) GetExecution(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	exec, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "execution not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get execution failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to get execution")
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func querySince(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	v := r.URL.Query().Get("since")
	if v == "" {
		return time.Now().UTC().Add(-24 * time.Hour), true
	}
	t, err := time.ParseInLocation("2006-01-02", v, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "since must be YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}
