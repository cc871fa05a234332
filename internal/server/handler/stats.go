package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// StatsView is the runtime snapshot served by /api/stats.
type StatsView struct {
	Mode      string               `json:"mode"`
	DryRun    bool                 `json:"dry_run"`
	Stats     domain.RunStatistics `json:"stats"`
	Markets   int                  `json:"markets"`
	FeedState string               `json:"feed_state,omitempty"`
	StartedAt time.Time            `json:"started_at"`
	Uptime    string               `json:"uptime"`
}

// StatsSource produces the current snapshot.
type StatsSource interface {
	StatsView() StatsView
}

// StatsHandler serves run statistics.
type StatsHandler struct {
	source StatsSource
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(source StatsSource) *StatsHandler {
	return &StatsHandler{source: source}
}

// GetStats returns the counters, watched market count and feed state.
// GET /api/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.source.StatsView())
}
