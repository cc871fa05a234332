package domain

import "github.com/shopspring/decimal"

// RunStatistics are the process-lifetime counters kept by the orchestrator.
type RunStatistics struct {
	Scans              int64           `json:"scans"`
	OpportunitiesFound int64           `json:"opportunities_found"`
	TradesExecuted     int64           `json:"trades_executed"`
	TradesSuccessful   int64           `json:"trades_successful"`
	CumulativeProfit   decimal.Decimal `json:"cumulative_profit"`
}
