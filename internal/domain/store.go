package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ArbExecutionStore persists the dual-leg execution journal.
type ArbExecutionStore interface {
	Create(ctx context.Context, exec ArbExecution) error
	GetByID(ctx context.Context, id string) (ArbExecution, error)
	ListRecent(ctx context.Context, limit int) ([]ArbExecution, error)
	ListPartial(ctx context.Context, since time.Time) ([]ArbExecution, error)
	SumProfit(ctx context.Context, since time.Time) (decimal.Decimal, error)
}
