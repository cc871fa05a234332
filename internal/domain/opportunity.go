package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity is a detected YES+NO mispricing. It is produced fresh
// by each evaluation and never mutated afterwards.
type ArbitrageOpportunity struct {
	MarketID       string          `json:"market_id"`
	Description    string          `json:"description"`
	YesTokenID     string          `json:"yes_token_id"`
	NoTokenID      string          `json:"no_token_id"`
	YesAskPrice    decimal.Decimal `json:"yes_ask_price"`
	NoAskPrice     decimal.Decimal `json:"no_ask_price"`
	CombinedPrice  decimal.Decimal `json:"combined_price"`
	ProfitPerShare decimal.Decimal `json:"profit_per_share"`
	MaxSize        decimal.Decimal `json:"max_size"`
	DetectedAt     time.Time       `json:"detected_at"`
}

// ExpectedProfit returns the profit locked in by buying size shares of both legs.
func (o ArbitrageOpportunity) ExpectedProfit(size decimal.Decimal) decimal.Decimal {
	return o.ProfitPerShare.Mul(size)
}
