package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a point-in-time view of one token's book. Bids are
// sorted by price descending and asks ascending, so index 0 is the best level
// on each side.
type OrderBookSnapshot struct {
	TokenID   string
	MarketID  string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Hash      string
	Timestamp time.Time
}

// BestAsk returns the lowest ask level.
func (s OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// BestBid returns the highest bid level.
func (s OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

// PriceUpdate is a normalized top-of-book change from the streaming feed.
// Either side may be absent.
type PriceUpdate struct {
	TokenID   string
	MarketID  string
	BestBid   *decimal.Decimal
	BestAsk   *decimal.Decimal
	Timestamp time.Time
}
