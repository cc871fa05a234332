package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// runStreaming feeds price updates into the price index and confirms
// candidate markets with a fresh order-book fetch. The ingestor, the
// registry refresher, the stats ticker and the update consumer run side by
// side until ctx is done.
func (o *Orchestrator) runStreaming(ctx context.Context) error {
	tokens := o.registry.WatchedTokenIDs()
	o.logger.Info("streaming loop started", slog.Int("tokens", len(tokens)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := o.feed.Run(gctx, tokens); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	g.Go(func() error {
		o.every(gctx, o.opts.RefreshInterval, o.refreshAndResubscribe)
		return nil
	})
	g.Go(func() error {
		o.every(gctx, o.opts.StatsInterval, o.reportStats)
		return nil
	})
	g.Go(func() error {
		o.consume(gctx)
		return nil
	})
	return g.Wait()
}

// every calls fn on each tick until ctx is done. A non-positive interval
// disables the task.
func (o *Orchestrator) every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

func (o *Orchestrator) refreshAndResubscribe(ctx context.Context) {
	if !o.refresh(ctx) {
		return
	}
	tokens := o.registry.WatchedTokenIDs()
	o.index.Retain(tokens)
	o.feed.Resubscribe(tokens)
}

func (o *Orchestrator) consume(ctx context.Context) {
	updates := o.feed.Updates()
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			o.onUpdate(ctx, u)
		}
	}
}

// onUpdate records u and, when both legs of its market are quoted below the
// combined price ceiling, confirms the market against the live books.
func (o *Orchestrator) onUpdate(ctx context.Context, u domain.PriceUpdate) {
	o.index.Update(u)
	if o.prices != nil {
		if err := o.prices.SetTop(ctx, u); err != nil {
			o.logger.Debug("price cache write failed",
				slog.String("token_id", u.TokenID),
				slog.String("error", err.Error()),
			)
		}
	}

	pair, ok := o.registry.PairForToken(u.TokenID)
	if !ok {
		return
	}
	combined, ok := o.index.Candidate(pair, o.scanner.Thresholds().MaxCombinedPrice)
	if !ok || !o.confirmDue(pair.MarketID) {
		return
	}

	o.logger.Debug("streaming candidate",
		slog.String("market_id", pair.MarketID),
		slog.String("combined_ask", combined.String()),
	)
	opp, found, err := o.scanner.ScanMarket(ctx, pair)
	metrics.Scans.Inc()
	o.stats.addScan()
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("confirming scan failed",
				slog.String("market_id", pair.MarketID),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if found {
		o.handleOpportunity(ctx, opp)
	}
}

// confirmDue reports whether marketID may be confirmed now and, if so,
// starts its cooldown. Only the consumer goroutine calls it.
func (o *Orchestrator) confirmDue(marketID string) bool {
	now := o.now()
	if last, ok := o.lastConfirm[marketID]; ok && now.Sub(last) < o.opts.ConfirmCooldown {
		return false
	}
	o.lastConfirm[marketID] = now
	return true
}
