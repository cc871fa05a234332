package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polyarb/internal/metrics"
)

// runPolling scans every watched market once per interval. The registry is
// refreshed every RefreshEvery scans and statistics are reported every
// StatsEvery scans.
func (o *Orchestrator) runPolling(ctx context.Context) error {
	o.logger.Info("polling loop started", slog.Duration("interval", o.opts.PollInterval))

	for scan := 1; ; scan++ {
		started := o.now()

		if o.opts.RefreshEvery > 0 && scan%o.opts.RefreshEvery == 0 {
			o.refresh(ctx)
		}
		o.scanOnce(ctx)
		if o.opts.StatsEvery > 0 && scan%o.opts.StatsEvery == 0 {
			o.reportStats(ctx)
		}

		remaining := o.opts.PollInterval - o.now().Sub(started)
		if err := o.sleep(ctx, remaining); err != nil {
			o.logger.Info("polling loop stopped", slog.Int("scans", scan))
			return nil
		}
	}
}

func (o *Orchestrator) scanOnce(ctx context.Context) {
	pairs := o.registry.Pairs()
	started := time.Now()
	opps, err := o.scanner.ScanAll(ctx, pairs)
	metrics.ScanDuration.Observe(time.Since(started).Seconds())
	metrics.Scans.Inc()
	o.stats.addScan()

	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("scan failed", slog.String("error", err.Error()))
		}
		return
	}
	for _, opp := range opps {
		o.handleOpportunity(ctx, opp)
	}
}

// refresh reloads the registry. A failure keeps the previous pairs.
func (o *Orchestrator) refresh(ctx context.Context) bool {
	n, err := o.registry.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Warn("registry refresh failed, keeping previous pairs",
				slog.String("error", err.Error()),
				slog.Int("pairs", o.registry.Len()),
			)
		}
		return false
	}
	metrics.WatchedMarkets.Set(float64(n))
	return true
}
