package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExecOutcome classifies the combined result of a dual-leg trade.
type ExecOutcome string

const (
	// ExecFilled means both legs filled.
	ExecFilled ExecOutcome = "filled"
	// ExecFailed means neither leg filled; there is no exposure.
	ExecFailed ExecOutcome = "failed"
	// ExecPartialYes means only the YES leg filled, leaving YES unhedged.
	ExecPartialYes ExecOutcome = "partial_yes"
	// ExecPartialNo means only the NO leg filled, leaving NO unhedged.
	ExecPartialNo ExecOutcome = "partial_no"
)

// ClassifyOutcome derives the trade outcome from both leg results. The order
// in which the legs completed does not matter.
func ClassifyOutcome(yes, no ExecutionResult) ExecOutcome {
	switch {
	case yes.Success && no.Success:
		return ExecFilled
	case yes.Success:
		return ExecPartialYes
	case no.Success:
		return ExecPartialNo
	default:
		return ExecFailed
	}
}

// Partial reports whether exactly one leg filled.
func (o ExecOutcome) Partial() bool {
	return o == ExecPartialYes || o == ExecPartialNo
}

// Unhedged returns the side left exposed by a partial execution.
func (o ExecOutcome) Unhedged() (Outcome, bool) {
	switch o {
	case ExecPartialYes:
		return OutcomeYes, true
	case ExecPartialNo:
		return OutcomeNo, true
	}
	return "", false
}

// ArbExecution is the journal record of one dual-leg attempt. Both leg
// results are always kept, whatever the outcome.
type ArbExecution struct {
	ID             string          `json:"id"`
	MarketID       string          `json:"market_id"`
	Description    string          `json:"description"`
	YesTokenID     string          `json:"yes_token_id"`
	NoTokenID      string          `json:"no_token_id"`
	YesAskPrice    decimal.Decimal `json:"yes_ask_price"`
	NoAskPrice     decimal.Decimal `json:"no_ask_price"`
	ProfitPerShare decimal.Decimal `json:"profit_per_share"`
	Size           decimal.Decimal `json:"size"`
	Yes            ExecutionResult `json:"yes"`
	No             ExecutionResult `json:"no"`
	Outcome        ExecOutcome     `json:"outcome"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	StartedAt      time.Time       `json:"started_at"`
	CompletedAt    time.Time       `json:"completed_at"`
}
