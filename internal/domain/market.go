package domain

import "github.com/shopspring/decimal"

// Outcome labels one side of a binary market.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// Market is a venue market listing.
type Market struct {
	ConditionID      string
	QuestionID       string
	Question         string
	Slug             string
	Tokens           []Token
	MinimumOrderSize decimal.Decimal
	MinimumTickSize  decimal.Decimal
	NegRisk          bool
	Active           bool
	Closed           bool
	AcceptingOrders  bool
}

// Tradable reports whether the market is open for new orders.
func (m Market) Tradable() bool {
	return m.Active && !m.Closed && m.AcceptingOrders
}

// Token is one outcome token of a market.
type Token struct {
	TokenID string
	Outcome string
	Price   decimal.Decimal
	Winner  bool
}

// MarketPair maps a binary market to its two outcome tokens. Pairs are
// immutable; the registry replaces the whole set on refresh.
type MarketPair struct {
	MarketID    string `json:"market_id"`
	YesTokenID  string `json:"yes_token_id"`
	NoTokenID   string `json:"no_token_id"`
	Description string `json:"description"`
}

// OutcomeOf reports which side tokenID is on.
func (p MarketPair) OutcomeOf(tokenID string) (Outcome, bool) {
	switch tokenID {
	case p.YesTokenID:
		return OutcomeYes, true
	case p.NoTokenID:
		return OutcomeNo, true
	}
	return "", false
}
