package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/feed"
	"github.com/alanyoungcy/polyarb/internal/metrics"
	"github.com/alanyoungcy/polyarb/internal/server/handler"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
)

// ErrNoMarkets is returned by Run when the first refresh yields no pairs.
var ErrNoMarkets = errors.New("app: no eligible markets")

// Registry is the market-pair view the orchestrator drives.
type Registry interface {
	Refresh(ctx context.Context) (int, error)
	WarmStart(ctx context.Context) (int, error)
	Pairs() []domain.MarketPair
	PairForToken(tokenID string) (domain.MarketPair, bool)
	WatchedTokenIDs() []string
	Len() int
}

// Scanner evaluates order books for opportunities.
type Scanner interface {
	ScanAll(ctx context.Context, pairs []domain.MarketPair) ([]domain.ArbitrageOpportunity, error)
	ScanMarket(ctx context.Context, pair domain.MarketPair) (domain.ArbitrageOpportunity, bool, error)
	Thresholds() arbitrage.Thresholds
}

// Executor submits both legs of an opportunity.
type Executor interface {
	Execute(ctx context.Context, opp domain.ArbitrageOpportunity, requested decimal.Decimal) (yes, no domain.ExecutionResult, err error)
}

// Feed is the streaming price source.
type Feed interface {
	Run(ctx context.Context, tokenIDs []string) error
	Updates() <-chan domain.PriceUpdate
	Resubscribe(tokenIDs []string)
	State() feed.State
}

// StatsUploader archives statistics snapshots.
type StatsUploader interface {
	Upload(ctx context.Context, stats domain.RunStatistics, markets int, feedState string) (string, error)
}

// Options are the orchestrator's tunables.
type Options struct {
	DryRun       bool
	OrderSize    decimal.Decimal
	MinOrderSize decimal.Decimal

	// Polling mode.
	PollInterval time.Duration
	RefreshEvery int
	StatsEvery   int

	// Streaming mode.
	RefreshInterval time.Duration
	StatsInterval   time.Duration
	// ConfirmCooldown bounds how often one market triggers a confirming
	// order-book fetch.
	ConfirmCooldown time.Duration
}

// OrchestratorConfig wires an Orchestrator. Executor, Feed, Prices and
// Uploader are optional. A nil Feed selects polling mode.
type OrchestratorConfig struct {
	Registry Registry
	Scanner  Scanner
	Executor Executor
	Feed     Feed
	Prices   domain.PriceCache
	Uploader StatsUploader
	Sinks    []Sink
	Options  Options
	Logger   *slog.Logger
}

// Sink is one destination for published events. Channel maps an event topic
// to the bus's channel name.
type Sink struct {
	Bus     domain.SignalBus
	Channel func(topic string) string
}

// Orchestrator owns the run statistics and drives one of the two modes.
type Orchestrator struct {
	registry Registry
	scanner  Scanner
	executor Executor
	feed     Feed
	prices   domain.PriceCache
	uploader StatsUploader
	sinks    []Sink
	opts     Options
	logger   *slog.Logger

	stats       *runStats
	index       *arbitrage.PriceIndex
	lastConfirm map[string]time.Time
	startedAt   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	opts := cfg.Options
	if opts.MinOrderSize.IsZero() {
		opts.MinOrderSize = decimal.NewFromInt(1)
	}
	return &Orchestrator{
		registry:    cfg.Registry,
		scanner:     cfg.Scanner,
		executor:    cfg.Executor,
		feed:        cfg.Feed,
		prices:      cfg.Prices,
		uploader:    cfg.Uploader,
		sinks:       cfg.Sinks,
		opts:        opts,
		logger:      logger.With(slog.String("component", "orchestrator")),
		stats:       newRunStats(),
		index:       arbitrage.NewPriceIndex(),
		lastConfirm: make(map[string]time.Time),
		startedAt:   time.Now(),
		now:         time.Now,
		sleep:       sleepCtx,
	}
}

// Run loads the registry and drives the configured mode until ctx is done.
// It returns ErrNoMarkets when there is nothing to watch.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.bootstrap(ctx); err != nil {
		return err
	}
	defer o.finalStats(ctx)

	if o.feed != nil {
		return o.runStreaming(ctx)
	}
	return o.runPolling(ctx)
}

func (o *Orchestrator) bootstrap(ctx context.Context) error {
	if n, err := o.registry.WarmStart(ctx); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Warn("pair cache unavailable", slog.String("error", err.Error()))
		}
	} else if n > 0 {
		o.logger.Info("registry warm-started from cache", slog.Int("pairs", n))
	}

	n, err := o.registry.Refresh(ctx)
	if err != nil {
		n = o.registry.Len()
		o.logger.Error("initial market refresh failed",
			slog.String("error", err.Error()),
			slog.Int("cached_pairs", n),
		)
	}
	if n == 0 {
		return ErrNoMarkets
	}
	metrics.WatchedMarkets.Set(float64(n))
	o.logger.Info("watching markets",
		slog.Int("pairs", n),
		slog.String("mode", o.mode()),
		slog.Bool("dry_run", o.opts.DryRun),
	)
	return nil
}

func (o *Orchestrator) mode() string {
	if o.feed != nil {
		return "streaming"
	}
	return "polling"
}

// handleOpportunity logs, publishes and, outside dry run, executes opp.
func (o *Orchestrator) handleOpportunity(ctx context.Context, opp domain.ArbitrageOpportunity) {
	o.stats.addOpportunity()
	metrics.Opportunities.Inc()

	log := o.logger.With(slog.String("market_id", opp.MarketID))
	log.Info("arbitrage opportunity",
		slog.String("description", opp.Description),
		slog.String("yes_ask", opp.YesAskPrice.String()),
		slog.String("no_ask", opp.NoAskPrice.String()),
		slog.String("combined", opp.CombinedPrice.String()),
		slog.String("profit_per_share", opp.ProfitPerShare.String()),
		slog.String("max_size", opp.MaxSize.String()),
		slog.Bool("dry_run", o.opts.DryRun),
	)
	o.publish(ctx, ws.ChannelOpportunities, opp)

	if o.opts.DryRun || o.executor == nil {
		return
	}

	size := decimal.Min(o.opts.OrderSize, opp.MaxSize)
	if size.LessThan(o.opts.MinOrderSize) {
		log.Info("opportunity below minimum order size",
			slog.String("size", size.String()),
			slog.String("min_order_size", o.opts.MinOrderSize.String()),
		)
		return
	}

	yes, no, err := o.executor.Execute(ctx, opp, size)
	if err != nil {
		if errors.Is(err, executor.ErrDuplicate) || errors.Is(err, domain.ErrLockHeld) {
			log.Debug("execution skipped", slog.String("reason", err.Error()))
			return
		}
		log.Error("execution not submitted", slog.String("error", err.Error()))
		return
	}

	outcome := domain.ClassifyOutcome(yes, no)
	o.stats.addExecution(outcome == domain.ExecFilled, opp.ExpectedProfit(size))
	o.publish(ctx, ws.ChannelExecutions, executionEvent{
		MarketID:       opp.MarketID,
		Description:    opp.Description,
		Size:           size,
		Outcome:        outcome,
		ExpectedProfit: opp.ExpectedProfit(size),
		Yes:            yes,
		No:             no,
	})
}

// executionEvent is the payload published after each submitted trade.
type executionEvent struct {
	MarketID       string                 `json:"market_id"`
	Description    string                 `json:"description"`
	Size           decimal.Decimal        `json:"size"`
	Outcome        domain.ExecOutcome     `json:"outcome"`
	ExpectedProfit decimal.Decimal        `json:"expected_profit"`
	Yes            domain.ExecutionResult `json:"yes"`
	No             domain.ExecutionResult `json:"no"`
}

// publish fans payload out to every sink. Delivery is best effort.
func (o *Orchestrator) publish(ctx context.Context, topic string, payload any) {
	if len(o.sinks) == 0 {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		o.logger.Warn("event encode failed", slog.String("topic", topic), slog.String("error", err.Error()))
		return
	}
	for _, s := range o.sinks {
		channel := topic
		if s.Channel != nil {
			channel = s.Channel(topic)
		}
		if err := s.Bus.Publish(ctx, channel, data); err != nil {
			o.logger.Debug("event publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}
}

// StatsView returns the snapshot served by the status API.
func (o *Orchestrator) StatsView() handler.StatsView {
	v := handler.StatsView{
		Mode:      o.mode(),
		DryRun:    o.opts.DryRun,
		Stats:     o.stats.snapshot(),
		Markets:   o.registry.Len(),
		StartedAt: o.startedAt.UTC(),
		Uptime:    o.now().Sub(o.startedAt).Truncate(time.Second).String(),
	}
	if o.feed != nil {
		v.FeedState = o.feed.State().String()
	}
	return v
}

// Stats returns a copy of the run counters.
func (o *Orchestrator) Stats() domain.RunStatistics {
	return o.stats.snapshot()
}

func (o *Orchestrator) reportStats(ctx context.Context) {
	view := o.StatsView()
	o.logger.Info("run statistics",
		slog.Int64("scans", view.Stats.Scans),
		slog.Int64("opportunities_found", view.Stats.OpportunitiesFound),
		slog.Int64("trades_executed", view.Stats.TradesExecuted),
		slog.Int64("trades_successful", view.Stats.TradesSuccessful),
		slog.String("cumulative_profit", view.Stats.CumulativeProfit.String()),
		slog.Int("markets", view.Markets),
		slog.String("feed_state", view.FeedState),
	)
	o.publish(ctx, ws.ChannelStats, view)

	if o.uploader == nil {
		return
	}
	key, err := o.uploader.Upload(ctx, view.Stats, view.Markets, view.FeedState)
	if err != nil {
		o.logger.Warn("stats upload failed", slog.String("error", err.Error()))
		return
	}
	o.logger.Debug("stats uploaded", slog.String("key", key))
}

// finalStats reports once more on shutdown, after ctx has been cancelled.
func (o *Orchestrator) finalStats(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	o.reportStats(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
