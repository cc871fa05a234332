// Package metrics exposes the bot's Prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Scans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyarb_scans_total",
		Help: "Full scans over the watched markets.",
	})

	ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyarb_scan_duration_seconds",
		Help:    "Wall time of one full scan including book fetches.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	Opportunities = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyarb_opportunities_total",
		Help: "Arbitrage opportunities detected.",
	})

	Executions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "polyarb_executions_total",
		Help: "Dual-leg executions by outcome.",
	}, []string{"outcome"})

	ExecutionLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "polyarb_execution_latency_seconds",
		Help:    "Time from signing both legs to both venue responses.",
		Buckets: prometheus.LinearBuckets(0.05, 0.05, 20),
	})

	WatchedMarkets = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polyarb_watched_markets",
		Help: "Market pairs in the current registry snapshot.",
	})

	FeedState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "polyarb_feed_state",
		Help: "Feed connection state (0 disconnected, 1 connecting, 2 subscribed, 3 streaming).",
	})

	FeedReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyarb_feed_reconnects_total",
		Help: "Feed reconnection attempts.",
	})

	FeedUpdates = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "polyarb_feed_updates_total",
		Help: "Price updates emitted by the feed.",
	})
)

var initOnce sync.Once

// InitMetrics registers every collector with the default registry. Safe to
// call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			Scans,
			ScanDuration,
			Opportunities,
			Executions,
			ExecutionLatency,
			WatchedMarkets,
			FeedState,
			FeedReconnects,
			FeedUpdates,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
