// Package app wires the arbitrage bot together and runs it: the market
// registry, the detector and execution engine, the optional backends and the
// status server, driven by the polling or streaming orchestrator.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/cache/redis"
	"github.com/alanyoungcy/polyarb/internal/config"
	"github.com/alanyoungcy/polyarb/internal/server"
	"github.com/alanyoungcy/polyarb/internal/server/ws"
)

// streamingConfirmCooldown is the minimum gap between two confirming
// order-book fetches for the same market.
const streamingConfirmCooldown = time.Second

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires every dependency and blocks until ctx is cancelled. It returns
// ErrNoMarkets when the first registry refresh finds nothing to watch.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting polyarb",
		slog.Bool("dry_run", a.cfg.Arbitrage.DryRun),
		slog.Bool("streaming", a.cfg.Arbitrage.UseStreaming),
		slog.String("max_combined_price", a.cfg.Arbitrage.MaxCombinedPrice.String()),
		slog.String("min_profit_threshold", a.cfg.Arbitrage.MinProfitThreshold.String()),
		slog.String("order_size", a.cfg.Arbitrage.OrderSize.String()),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	var orch *Orchestrator
	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = ws.NewHub(func() any { return orch.StatsView() }, a.logger)
	}
	orch = NewOrchestrator(a.orchestratorConfig(deps, hub))

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	if hub != nil {
		srv := server.NewServer(server.Config{Port: a.cfg.Server.Port}, server.Deps{
			Stats:      orch,
			Pairs:      deps.Registry,
			Executions: deps.Executions,
			Checks:     deps.Checks,
			Hub:        hub,
		}, a.logger)
		g.Go(func() error { return hub.Run(runCtx) })
		g.Go(func() error { return srv.Run(runCtx) })
	}
	g.Go(func() error {
		// The orchestrator's exit ends the run, including the server.
		defer stop()
		return orch.Run(runCtx)
	})

	return g.Wait()
}

func (a *App) orchestratorConfig(deps *Dependencies, hub *ws.Hub) OrchestratorConfig {
	cfg := a.cfg
	oc := OrchestratorConfig{
		Registry: deps.Registry,
		Scanner:  deps.Detector,
		Prices:   deps.PriceCache,
		Options: Options{
			DryRun:          cfg.Arbitrage.DryRun,
			OrderSize:       cfg.Arbitrage.OrderSize,
			MinOrderSize:    cfg.Arbitrage.MinOrderSize,
			PollInterval:    cfg.Arbitrage.PollInterval.Duration,
			RefreshEvery:    cfg.Arbitrage.RefreshEvery,
			StatsEvery:      cfg.Arbitrage.StatsEvery,
			RefreshInterval: cfg.Feed.RefreshInterval.Duration,
			StatsInterval:   cfg.Feed.StatsInterval.Duration,
			ConfirmCooldown: streamingConfirmCooldown,
		},
		Logger: a.logger,
	}
	// Interface fields are only set for backends that exist.
	if deps.Engine != nil {
		oc.Executor = deps.Engine
	}
	if deps.Feed != nil {
		oc.Feed = deps.Feed
	}
	if deps.Stats != nil {
		oc.Uploader = deps.Stats
	}
	if deps.SignalBus != nil {
		oc.Sinks = append(oc.Sinks, Sink{Bus: deps.SignalBus, Channel: redis.Channel})
	}
	if hub != nil {
		oc.Sinks = append(oc.Sinks, Sink{Bus: hub})
	}
	return oc
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
