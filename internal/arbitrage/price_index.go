package arbitrage

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PriceIndex tracks the latest best ask per token so the streaming loop can
// tell when both legs of a market sum below the ceiling.
type PriceIndex struct {
	mu   sync.RWMutex
	asks map[string]decimal.Decimal
}

// NewPriceIndex creates an empty index.
func NewPriceIndex() *PriceIndex {
	return &PriceIndex{asks: make(map[string]decimal.Decimal)}
}

// Update records the ask carried by u. An update without an ask leaves the
// previous value in place.
func (x *PriceIndex) Update(u domain.PriceUpdate) {
	if u.BestAsk == nil {
		return
	}
	x.mu.Lock()
	x.asks[u.TokenID] = *u.BestAsk
	x.mu.Unlock()
}

// Ask returns the last seen best ask of a token.
func (x *PriceIndex) Ask(tokenID string) (decimal.Decimal, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	a, ok := x.asks[tokenID]
	return a, ok
}

// Candidate reports whether both legs of pair have a known ask and their sum
// is strictly below maxCombined. The combined price is returned either way
// when both asks are known.
func (x *PriceIndex) Candidate(pair domain.MarketPair, maxCombined decimal.Decimal) (decimal.Decimal, bool) {
	x.mu.RLock()
	yes, okYes := x.asks[pair.YesTokenID]
	no, okNo := x.asks[pair.NoTokenID]
	x.mu.RUnlock()
	if !okYes || !okNo {
		return decimal.Zero, false
	}
	combined := yes.Add(no)
	return combined, combined.LessThan(maxCombined)
}

// Retain drops every token not in keep.
func (x *PriceIndex) Retain(keep []string) {
	set := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		set[id] = struct{}{}
	}
	x.mu.Lock()
	for id := range x.asks {
		if _, ok := set[id]; !ok {
			delete(x.asks, id)
		}
	}
	x.mu.Unlock()
}

// Len returns the number of tracked tokens.
func (x *PriceIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.asks)
}
