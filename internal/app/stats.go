package app

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// runStats guards the process-lifetime counters.
type runStats struct {
	mu sync.Mutex
	s  domain.RunStatistics
}

func newRunStats() *runStats {
	return &runStats{s: domain.RunStatistics{CumulativeProfit: decimal.Zero}}
}

func (r *runStats) addScan() {
	r.mu.Lock()
	r.s.Scans++
	r.mu.Unlock()
}

func (r *runStats) addOpportunity() {
	r.mu.Lock()
	r.s.OpportunitiesFound++
	r.mu.Unlock()
}

// addExecution records one submitted trade. profit is only added when both
// legs filled.
func (r *runStats) addExecution(filled bool, profit decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.TradesExecuted++
	if filled {
		r.s.TradesSuccessful++
		r.s.CumulativeProfit = r.s.CumulativeProfit.Add(profit)
	}
}

func (r *runStats) snapshot() domain.RunStatistics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}
