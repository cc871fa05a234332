package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PairSource is the registry view the pairs endpoint needs.
type PairSource interface {
	Pairs() []domain.MarketPair
	RefreshedAt() time.Time
}

// PairHandler serves the watched market pairs.
type PairHandler struct {
	pairs PairSource
}

// NewPairHandler creates a PairHandler.
func NewPairHandler(pairs PairSource) *PairHandler {
	return &PairHandler{pairs: pairs}
}

type listPairsResponse struct {
	Pairs       []domain.MarketPair `json:"pairs"`
	Count       int                 `json:"count"`
	RefreshedAt *time.Time          `json:"refreshed_at,omitempty"`
}

// ListPairs returns the current registry snapshot.
// GET /api/pairs
func (h *PairHandler) ListPairs(w http.ResponseWriter, r *http.Request) {
	pairs := h.pairs.Pairs()
	if pairs == nil {
		pairs = []domain.MarketPair{}
	}
	resp := listPairsResponse{Pairs: pairs, Count: len(pairs)}
	if at := h.pairs.RefreshedAt(); !at.IsZero() {
		resp.RefreshedAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}
