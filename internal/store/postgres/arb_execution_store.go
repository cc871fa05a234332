package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// ArbExecutionStore implements domain.ArbExecutionStore. Each dual-leg
// attempt is one row carrying both leg results, whatever the outcome.
type ArbExecutionStore struct {
	pool *pgxpool.Pool
}

// NewArbExecutionStore creates a new ArbExecutionStore.
func NewArbExecutionStore(pool *pgxpool.Pool) *ArbExecutionStore {
	return &ArbExecutionStore{pool: pool}
}

// Numeric columns are read back as text so decimals survive without float
// rounding.
const selectExecution = `
	SELECT id::text, market_id, description, yes_token_id, no_token_id,
	       yes_ask_price::text, no_ask_price::text, profit_per_share::text, size::text,
	       outcome, realized_profit::text,
	       yes_success, yes_order_id, yes_error, yes_tx_hashes,
	       no_success, no_order_id, no_error, no_tx_hashes,
	       started_at, completed_at
	FROM arb_executions`

// Create inserts one execution.
func (s *ArbExecutionStore) Create(ctx context.Context, exec domain.ArbExecution) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO arb_executions (
			id, market_id, description, yes_token_id, no_token_id,
			yes_ask_price, no_ask_price, profit_per_share, size,
			outcome, realized_profit,
			yes_success, yes_order_id, yes_error, yes_tx_hashes,
			no_success, no_order_id, no_error, no_tx_hashes,
			started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
			$10, $11::numeric, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`,
		exec.ID, exec.MarketID, exec.Description, exec.YesTokenID, exec.NoTokenID,
		exec.YesAskPrice.String(), exec.NoAskPrice.String(), exec.ProfitPerShare.String(), exec.Size.String(),
		string(exec.Outcome), exec.RealizedProfit.String(),
		exec.Yes.Success, exec.Yes.OrderID, exec.Yes.ErrorMessage, nonNil(exec.Yes.TxHashes),
		exec.No.Success, exec.No.OrderID, exec.No.ErrorMessage, nonNil(exec.No.TxHashes),
		exec.StartedAt, exec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert arb_execution %s: %w", exec.ID, err)
	}
	return nil
}

// GetByID returns one execution or domain.ErrNotFound.
func (s *ArbExecutionStore) GetByID(ctx context.Context, id string) (domain.ArbExecution, error) {
	exec, err := scanExecution(s.pool.QueryRow(ctx, selectExecution+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ArbExecution{}, domain.ErrNotFound
		}
		return domain.ArbExecution{}, fmt.Errorf("postgres: get arb_execution %s: %w", id, err)
	}
	return exec, nil
}

// ListRecent returns the most recent executions, newest first.
func (s *ArbExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, selectExecution+` ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arb_executions: %w", err)
	}
	return collectExecutions(rows)
}

// ListPartial returns partial executions started at or after since. These are
// the unhedged positions an operator has to close by hand.
func (s *ArbExecutionStore) ListPartial(ctx context.Context, since time.Time) ([]domain.ArbExecution, error) {
	rows, err := s.pool.Query(ctx, selectExecution+`
		WHERE outcome IN ($1, $2) AND started_at >= $3
		ORDER BY started_at`,
		string(domain.ExecPartialYes), string(domain.ExecPartialNo), since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list partial arb_executions: %w", err)
	}
	return collectExecutions(rows)
}

// SumProfit returns the realized profit of executions started since.
func (s *ArbExecutionStore) SumProfit(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var sum string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(realized_profit), 0)::text FROM arb_executions WHERE started_at >= $1`,
		since,
	).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: sum arb_executions profit: %w", err)
	}
	d, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("postgres: parse profit sum %q: %w", sum, err)
	}
	return d, nil
}

func collectExecutions(rows pgx.Rows) ([]domain.ArbExecution, error) {
	defer rows.Close()
	var list []domain.ArbExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arb_execution: %w", err)
		}
		list = append(list, exec)
	}
	return list, rows.Err()
}

func scanExecution(row pgx.Row) (domain.ArbExecution, error) {
	var exec domain.ArbExecution
	var yesAsk, noAsk, profit, size, realized, outcome string
	err := row.Scan(
		&exec.ID, &exec.MarketID, &exec.Description, &exec.YesTokenID, &exec.NoTokenID,
		&yesAsk, &noAsk, &profit, &size,
		&outcome, &realized,
		&exec.Yes.Success, &exec.Yes.OrderID, &exec.Yes.ErrorMessage, &exec.Yes.TxHashes,
		&exec.No.Success, &exec.No.OrderID, &exec.No.ErrorMessage, &exec.No.TxHashes,
		&exec.StartedAt, &exec.CompletedAt,
	)
	if err != nil {
		return domain.ArbExecution{}, err
	}
	exec.Outcome = domain.ExecOutcome(outcome)

	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&exec.YesAskPrice, yesAsk},
		{&exec.NoAskPrice, noAsk},
		{&exec.ProfitPerShare, profit},
		{&exec.Size, size},
		{&exec.RealizedProfit, realized},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return domain.ArbExecution{}, fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
	}
	return exec, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var _ domain.ArbExecutionStore = (*ArbExecutionStore)(nil)
