// Package executor submits both legs of an arbitrage concurrently and
// classifies the combined outcome.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// ErrDuplicate is returned when the market was executed within the dedup window.
var ErrDuplicate = errors.New("executor: duplicate execution")

// Notification event names.
const (
	EventPartialExecution = "partial_execution"
	EventTradeFilled      = "trade_filled"
)

// OrderSigner builds signed fill-or-kill buys sized in collateral.
type OrderSigner interface {
	MarketBuy(tokenID string, amount, price decimal.Decimal) (crypto.SignedOrder, error)
}

// OrderPoster submits signed orders to the venue.
type OrderPoster interface {
	PostOrder(ctx context.Context, order crypto.SignedOrder, orderType domain.OrderType) (domain.ExecutionResult, error)
}

// Alerter delivers operator notifications.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Config wires an Engine. Store, Locks and Alerter are optional.
type Config struct {
	Signer      OrderSigner
	Poster      OrderPoster
	Store       domain.ArbExecutionStore
	Locks       domain.LockManager
	Alerter     Alerter
	DedupWindow time.Duration
	LockTTL     time.Duration
	Logger      *slog.Logger
}

// Engine executes dual-leg arbitrage trades.
type Engine struct {
	signer  OrderSigner
	poster  OrderPoster
	store   domain.ArbExecutionStore
	locks   domain.LockManager
	alerter Alerter
	dedup   *Dedup
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Engine{
		signer:  cfg.Signer,
		poster:  cfg.Poster,
		store:   cfg.Store,
		locks:   cfg.Locks,
		alerter: cfg.Alerter,
		dedup:   NewDedup(cfg.DedupWindow),
		lockTTL: ttl,
		logger:  cfg.Logger.With(slog.String("component", "executor")),
	}
}

// Classify derives the combined outcome of two leg results.
func Classify(yes, no domain.ExecutionResult) domain.ExecOutcome {
	return domain.ClassifyOutcome(yes, no)
}

type leg struct {
	side   domain.Outcome
	token  string
	price  decimal.Decimal
	amount decimal.Decimal
	order  crypto.SignedOrder
	err    error
	result domain.ExecutionResult
}

// Execute buys size = min(requested, opp.MaxSize) shares of both outcomes.
// Both legs are signed concurrently and then posted concurrently; the call
// waits for both venue answers and never cancels a leg in flight. A non-nil
// error means nothing was submitted (duplicate or lock held).
func (e *Engine) Execute(ctx context.Context, opp domain.ArbitrageOpportunity, requested decimal.Decimal) (yes, no domain.ExecutionResult, err error) {
	e.dedup.Cleanup()
	if e.dedup.IsDuplicate(opp.MarketID) {
		return yes, no, ErrDuplicate
	}
	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "polyarb:exec:"+opp.MarketID, e.lockTTL)
		if err != nil {
			// Nothing was submitted, so the market stays eligible.
			e.dedup.Forget(opp.MarketID)
			return yes, no, fmt.Errorf("executor: lock %s: %w", opp.MarketID, err)
		}
		defer unlock()
	}

	size := decimal.Min(requested, opp.MaxSize)
	legs := [2]*leg{
		{side: domain.OutcomeYes, token: opp.YesTokenID, price: opp.YesAskPrice},
		{side: domain.OutcomeNo, token: opp.NoTokenID, price: opp.NoAskPrice},
	}
	for _, l := range legs {
		l.amount = size.Mul(l.price)
	}

	log := e.logger.With(
		slog.String("market_id", opp.MarketID),
		slog.String("size", size.String()),
	)
	log.Info("executing arbitrage",
		slog.String("profit_per_share", opp.ProfitPerShare.String()),
		slog.String("yes_usdc", legs[0].amount.String()),
		slog.String("yes_price", legs[0].price.String()),
		slog.String("no_usdc", legs[1].amount.String()),
		slog.String("no_price", legs[1].price.String()),
	)

	started := time.Now()
	e.signBoth(legs)
	if legs[0].err != nil || legs[1].err != nil {
		// Never post one leg alone when the other cannot be signed.
		signErr := errors.Join(legs[0].err, legs[1].err)
		for _, l := range legs {
			l.result = domain.FailedResult(fmt.Errorf("executor: %w", signErr))
		}
		log.Error("order signing failed, nothing submitted", slog.String("error", signErr.Error()))
	} else {
		e.postBoth(context.WithoutCancel(ctx), legs)
	}
	metrics.ExecutionLatency.Observe(time.Since(started).Seconds())

	yes, no = legs[0].result, legs[1].result
	outcome := Classify(yes, no)
	metrics.Executions.WithLabelValues(string(outcome)).Inc()

	exec := domain.ArbExecution{
		ID:             uuid.New().String(),
		MarketID:       opp.MarketID,
		Description:    opp.Description,
		YesTokenID:     opp.YesTokenID,
		NoTokenID:      opp.NoTokenID,
		YesAskPrice:    opp.YesAskPrice,
		NoAskPrice:     opp.NoAskPrice,
		ProfitPerShare: opp.ProfitPerShare,
		Size:           size,
		Yes:            yes,
		No:             no,
		Outcome:        outcome,
		RealizedProfit: decimal.Zero,
		StartedAt:      started.UTC(),
		CompletedAt:    time.Now().UTC(),
	}
	if outcome == domain.ExecFilled {
		exec.RealizedProfit = opp.ExpectedProfit(size)
	}

	e.report(ctx, log, exec)
	e.record(ctx, log, exec)
	return yes, no, nil
}

func (e *Engine) signBoth(legs [2]*leg) {
	var wg sync.WaitGroup
	for _, l := range legs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.order, l.err = e.signer.MarketBuy(l.token, l.amount, l.price)
			if l.err != nil {
				l.err = fmt.Errorf("%s leg: %w", l.side, l.err)
			}
		}()
	}
	wg.Wait()
}

func (e *Engine) postBoth(ctx context.Context, legs [2]*leg) {
	var wg sync.WaitGroup
	for _, l := range legs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.poster.PostOrder(ctx, l.order, domain.OrderTypeFOK)
			if err != nil && res.ErrorMessage == "" {
				res = domain.FailedResult(err)
			}
			l.result = res
		}()
	}
	wg.Wait()
}

func (e *Engine) report(ctx context.Context, log *slog.Logger, exec domain.ArbExecution) {
	legAttrs := []any{
		slog.String("yes_token_id", exec.YesTokenID),
		slog.String("no_token_id", exec.NoTokenID),
		slog.String("yes_price", exec.YesAskPrice.String()),
		slog.String("no_price", exec.NoAskPrice.String()),
		slog.Bool("yes_ok", exec.Yes.Success),
		slog.Bool("no_ok", exec.No.Success),
		slog.String("yes_order_id", exec.Yes.OrderID),
		slog.String("no_order_id", exec.No.OrderID),
		slog.String("yes_error", exec.Yes.ErrorMessage),
		slog.String("no_error", exec.No.ErrorMessage),
	}

	switch exec.Outcome {
	case domain.ExecFilled:
		log.Info("arbitrage executed", append(legAttrs,
			slog.String("realized_profit", exec.RealizedProfit.String()))...)
		e.alert(ctx, EventTradeFilled, "Arbitrage filled",
			fmt.Sprintf("Market %s (%s): bought %s YES @ %s and NO @ %s, locked profit %s",
				exec.MarketID, exec.Description, exec.Size, exec.YesAskPrice, exec.NoAskPrice, exec.RealizedProfit))

	case domain.ExecFailed:
		log.Warn("arbitrage failed, no exposure", legAttrs...)

	default:
		side, _ := exec.Outcome.Unhedged()
		msg := fmt.Sprintf("ALERT: Partial arbitrage execution on market %s. %s position is unhedged!", exec.MarketID, side)
		log.Error(msg, append(legAttrs,
			slog.String("unhedged", string(side)),
			slog.String("error", domain.ErrPartialExecution.Error()))...)
		e.alert(ctx, EventPartialExecution, "Partial arbitrage execution",
			fmt.Sprintf("%s\nYES %s @ %s ok=%t order=%s\nNO %s @ %s ok=%t order=%s",
				msg,
				exec.YesTokenID, exec.YesAskPrice, exec.Yes.Success, exec.Yes.OrderID,
				exec.NoTokenID, exec.NoAskPrice, exec.No.Success, exec.No.OrderID))
	}
}

func (e *Engine) alert(ctx context.Context, event, title, message string) {
	if e.alerter == nil {
		return
	}
	if err := e.alerter.Notify(context.WithoutCancel(ctx), event, title, message); err != nil {
		e.logger.Warn("alert delivery failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) record(ctx context.Context, log *slog.Logger, exec domain.ArbExecution) {
	if e.store == nil {
		return
	}
	if err := e.store.Create(context.WithoutCancel(ctx), exec); err != nil {
		log.Warn("execution journal write failed",
			slog.String("execution_id", exec.ID),
			slog.String("error", err.Error()),
		)
	}
}
