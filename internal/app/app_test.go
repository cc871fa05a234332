package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/arbitrage"
	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/executor"
	"github.com/alanyoungcy/polyarb/internal/feed"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var testPair = domain.MarketPair{
	MarketID:    "0xmarket",
	YesTokenID:  "yes-1",
	NoTokenID:   "no-1",
	Description: "Will BTC close above 100k?",
}

func testOpportunity() domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		MarketID:       testPair.MarketID,
		Description:    testPair.Description,
		YesTokenID:     testPair.YesTokenID,
		NoTokenID:      testPair.NoTokenID,
		YesAskPrice:    d("0.48"),
		NoAskPrice:     d("0.49"),
		CombinedPrice:  d("0.97"),
		ProfitPerShare: d("0.03"),
		MaxSize:        d("25"),
		DetectedAt:     time.Now(),
	}
}

type fakeRegistry struct {
	mu         sync.Mutex
	pairs      []domain.MarketPair
	refreshes  int
	refreshErr error
}

func (r *fakeRegistry) Refresh(context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshes++
	if r.refreshErr != nil {
		return 0, r.refreshErr
	}
	return len(r.pairs), nil
}

func (r *fakeRegistry) WarmStart(context.Context) (int, error) { return 0, nil }

func (r *fakeRegistry) Pairs() []domain.MarketPair {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.MarketPair(nil), r.pairs...)
}

func (r *fakeRegistry) PairForToken(tokenID string) (domain.MarketPair, bool) {
	for _, p := range r.Pairs() {
		if _, ok := p.OutcomeOf(tokenID); ok {
			return p, true
		}
	}
	return domain.MarketPair{}, false
}

func (r *fakeRegistry) WatchedTokenIDs() []string {
	var ids []string
	for _, p := range r.Pairs() {
		ids = append(ids, p.YesTokenID, p.NoTokenID)
	}
	return ids
}

func (r *fakeRegistry) Len() int { return len(r.Pairs()) }

func (r *fakeRegistry) refreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refreshes
}

type fakeScanner struct {
	mu          sync.Mutex
	opps        []domain.ArbitrageOpportunity
	marketScans int
}

func (s *fakeScanner) ScanAll(context.Context, []domain.MarketPair) ([]domain.ArbitrageOpportunity, error) {
	return s.opps, nil
}

func (s *fakeScanner) ScanMarket(context.Context, domain.MarketPair) (domain.ArbitrageOpportunity, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marketScans++
	if len(s.opps) == 0 {
		return domain.ArbitrageOpportunity{}, false, nil
	}
	return s.opps[0], true, nil
}

func (s *fakeScanner) Thresholds() arbitrage.Thresholds {
	return arbitrage.Thresholds{MaxCombinedPrice: d("0.99"), MinProfitThreshold: d("0.005")}
}

type fakeExecutor struct {
	yes, no domain.ExecutionResult
	err     error
	calls   int
	sizes   []decimal.Decimal
}

func (e *fakeExecutor) Execute(_ context.Context, _ domain.ArbitrageOpportunity, requested decimal.Decimal) (domain.ExecutionResult, domain.ExecutionResult, error) {
	e.calls++
	e.sizes = append(e.sizes, requested)
	return e.yes, e.no, e.err
}

type fakeFeed struct {
	updates chan domain.PriceUpdate
	resubs  [][]string
}

func (f *fakeFeed) Run(ctx context.Context, _ []string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeFeed) Updates() <-chan domain.PriceUpdate { return f.updates }
func (f *fakeFeed) Resubscribe(ids []string)           { f.resubs = append(f.resubs, ids) }
func (f *fakeFeed) State() feed.State                  { return feed.Streaming }

type published struct {
	channel string
	payload []byte
}

type fakeBus struct {
	mu   sync.Mutex
	msgs []published
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, published{channel: channel, payload: payload})
	return nil
}

func (b *fakeBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.msgs))
	for i, m := range b.msgs {
		out[i] = m.channel
	}
	return out
}

func newTestOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Registry == nil {
		cfg.Registry = &fakeRegistry{pairs: []domain.MarketPair{testPair}}
	}
	if cfg.Scanner == nil {
		cfg.Scanner = &fakeScanner{}
	}
	if cfg.Options.OrderSize.IsZero() {
		cfg.Options.OrderSize = d("10")
	}
	cfg.Logger = discardLogger()
	return NewOrchestrator(cfg)
}

func filled() domain.ExecutionResult {
	return domain.ExecutionResult{Success: true, OrderID: "0xorder"}
}

func TestHandleOpportunity_DryRunNeverExecutes(t *testing.T) {
	exec := &fakeExecutor{yes: filled(), no: filled()}
	o := newTestOrchestrator(OrchestratorConfig{
		Executor: exec,
		Options:  Options{DryRun: true},
	})

	o.handleOpportunity(context.Background(), testOpportunity())

	stats := o.Stats()
	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, int64(1), stats.OpportunitiesFound)
	assert.Equal(t, int64(0), stats.TradesExecuted)
	assert.True(t, stats.CumulativeProfit.IsZero())
}

func TestHandleOpportunity_FilledAddsProfit(t *testing.T) {
	exec := &fakeExecutor{yes: filled(), no: filled()}
	o := newTestOrchestrator(OrchestratorConfig{Executor: exec})

	o.handleOpportunity(context.Background(), testOpportunity())

	require.Equal(t, 1, exec.calls)
	assert.True(t, exec.sizes[0].Equal(d("10")))

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.TradesExecuted)
	assert.Equal(t, int64(1), stats.TradesSuccessful)
	assert.True(t, stats.CumulativeProfit.Equal(d("0.3")), "got %s", stats.CumulativeProfit)
}

func TestHandleOpportunity_SizeCappedByLiquidity(t *testing.T) {
	exec := &fakeExecutor{yes: filled(), no: filled()}
	o := newTestOrchestrator(OrchestratorConfig{Executor: exec})

	opp := testOpportunity()
	opp.MaxSize = d("4")
	o.handleOpportunity(context.Background(), opp)

	require.Equal(t, 1, exec.calls)
	assert.True(t, exec.sizes[0].Equal(d("4")))
	assert.True(t, o.Stats().CumulativeProfit.Equal(d("0.12")))
}

func TestHandleOpportunity_PartialIsNotSuccessful(t *testing.T) {
	exec := &fakeExecutor{yes: filled(), no: domain.ExecutionResult{ErrorMessage: "not filled"}}
	o := newTestOrchestrator(OrchestratorConfig{Executor: exec})

	o.handleOpportunity(context.Background(), testOpportunity())

	stats := o.Stats()
	assert.Equal(t, int64(1), stats.TradesExecuted)
	assert.Equal(t, int64(0), stats.TradesSuccessful)
	assert.True(t, stats.CumulativeProfit.IsZero())
}

func TestHandleOpportunity_BelowMinimumSizeSkipped(t *testing.T) {
	exec := &fakeExecutor{yes: filled(), no: filled()}
	o := newTestOrchestrator(OrchestratorConfig{Executor: exec})

	opp := testOpportunity()
	opp.MaxSize = d("0.5")
	o.handleOpportunity(context.Background(), opp)

	assert.Equal(t, 0, exec.calls)
	assert.Equal(t, int64(1), o.Stats().OpportunitiesFound)
	assert.Equal(t, int64(0), o.Stats().TradesExecuted)
}

func TestHandleOpportunity_SkippedExecutionsNotCounted(t *testing.T) {
	for name, err := range map[string]error{
		"duplicate": executor.ErrDuplicate,
		"lock held": errors.Join(errors.New("executor: lock"), domain.ErrLockHeld),
		"other":     errors.New("redis down"),
	} {
		t.Run(name, func(t *testing.T) {
			exec := &fakeExecutor{err: err}
			o := newTestOrchestrator(OrchestratorConfig{Executor: exec})

			o.handleOpportunity(context.Background(), testOpportunity())

			assert.Equal(t, 1, exec.calls)
			assert.Equal(t, int64(0), o.Stats().TradesExecuted)
		})
	}
}

func TestHandleOpportunity_PublishesToSinks(t *testing.T) {
	bus := &fakeBus{}
	hub := &fakeBus{}
	exec := &fakeExecutor{yes: filled(), no: filled()}
	o := newTestOrchestrator(OrchestratorConfig{
		Executor: exec,
		Sinks: []Sink{
			{Bus: bus, Channel: func(topic string) string { return "polyarb:" + topic }},
			{Bus: hub},
		},
	})

	o.handleOpportunity(context.Background(), testOpportunity())

	assert.Equal(t, []string{"polyarb:opportunities", "polyarb:executions"}, bus.channels())
	assert.Equal(t, []string{"opportunities", "executions"}, hub.channels())
	assert.Contains(t, string(hub.msgs[1].payload), `"outcome":"filled"`)
}

func TestRun_NoMarkets(t *testing.T) {
	o := newTestOrchestrator(OrchestratorConfig{Registry: &fakeRegistry{}})

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoMarkets)
}

func TestRun_RefreshFailureWithoutPairs(t *testing.T) {
	o := newTestOrchestrator(OrchestratorConfig{
		Registry: &fakeRegistry{refreshErr: errors.New("venue down")},
	})

	err := o.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoMarkets)
}

func TestRunPolling_RefreshesAndStops(t *testing.T) {
	reg := &fakeRegistry{pairs: []domain.MarketPair{testPair}}
	scanner := &fakeScanner{opps: []domain.ArbitrageOpportunity{testOpportunity()}}
	o := newTestOrchestrator(OrchestratorConfig{
		Registry: reg,
		Scanner:  scanner,
		Options: Options{
			DryRun:       true,
			PollInterval: time.Second,
			RefreshEvery: 2,
			StatsEvery:   2,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var sleeps []time.Duration
	o.sleep = func(ctx context.Context, dur time.Duration) error {
		sleeps = append(sleeps, dur)
		if len(sleeps) == 3 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, o.Run(ctx))

	stats := o.Stats()
	assert.Equal(t, int64(3), stats.Scans)
	assert.Equal(t, int64(3), stats.OpportunitiesFound)
	assert.Equal(t, int64(0), stats.TradesExecuted)
	// bootstrap plus scan 2
	assert.Equal(t, 2, reg.refreshCount())
	for _, s := range sleeps {
		assert.LessOrEqual(t, s, time.Second)
	}
}

func askUpdate(token, ask string) domain.PriceUpdate {
	a := d(ask)
	return domain.PriceUpdate{TokenID: token, BestAsk: &a, Timestamp: time.Now()}
}

func TestOnUpdate_ConfirmsCandidateOncePerCooldown(t *testing.T) {
	scanner := &fakeScanner{opps: []domain.ArbitrageOpportunity{testOpportunity()}}
	o := newTestOrchestrator(OrchestratorConfig{
		Scanner: scanner,
		Feed:    &fakeFeed{},
		Options: Options{DryRun: true, ConfirmCooldown: time.Second},
	})
	now := time.Unix(1_700_000_000, 0)
	o.now = func() time.Time { return now }
	ctx := context.Background()

	o.onUpdate(ctx, askUpdate("yes-1", "0.48"))
	assert.Equal(t, 0, scanner.marketScans, "one leg only")

	o.onUpdate(ctx, askUpdate("no-1", "0.49"))
	assert.Equal(t, 1, scanner.marketScans)

	o.onUpdate(ctx, askUpdate("no-1", "0.48"))
	assert.Equal(t, 1, scanner.marketScans, "within cooldown")

	now = now.Add(2 * time.Second)
	o.onUpdate(ctx, askUpdate("no-1", "0.48"))
	assert.Equal(t, 2, scanner.marketScans)
	assert.Equal(t, int64(2), o.Stats().OpportunitiesFound)
}

func TestOnUpdate_IgnoresExpensiveAndUnknown(t *testing.T) {
	scanner := &fakeScanner{}
	o := newTestOrchestrator(OrchestratorConfig{
		Scanner: scanner,
		Feed:    &fakeFeed{},
		Options: Options{DryRun: true},
	})
	ctx := context.Background()

	o.onUpdate(ctx, askUpdate("yes-1", "0.50"))
	o.onUpdate(ctx, askUpdate("no-1", "0.50"))
	o.onUpdate(ctx, askUpdate("other", "0.01"))

	assert.Equal(t, 0, scanner.marketScans)
}

func TestRunStreaming_ConsumesUntilCancelled(t *testing.T) {
	scanner := &fakeScanner{opps: []domain.ArbitrageOpportunity{testOpportunity()}}
	f := &fakeFeed{updates: make(chan domain.PriceUpdate, 2)}
	o := newTestOrchestrator(OrchestratorConfig{
		Scanner: scanner,
		Feed:    f,
		Options: Options{DryRun: true},
	})

	f.updates <- askUpdate("yes-1", "0.40")
	f.updates <- askUpdate("no-1", "0.40")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		return o.Stats().OpportunitiesFound == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("orchestrator did not stop")
	}
}

func TestStatsView(t *testing.T) {
	o := newTestOrchestrator(OrchestratorConfig{Feed: &fakeFeed{}, Options: Options{DryRun: true}})

	v := o.StatsView()
	assert.Equal(t, "streaming", v.Mode)
	assert.Equal(t, "streaming", v.FeedState)
	assert.True(t, v.DryRun)
	assert.Equal(t, 1, v.Markets)

	polling := newTestOrchestrator(OrchestratorConfig{})
	assert.Equal(t, "polling", polling.StatsView().Mode)
	assert.Empty(t, polling.StatsView().FeedState)
}

func TestMarketChannelURL(t *testing.T) {
	assert.Equal(t, "wss://ws.example/ws/market", MarketChannelURL("wss://ws.example"))
	assert.Equal(t, "wss://ws.example/ws/market", MarketChannelURL("wss://ws.example/"))
	assert.Equal(t, "wss://ws.example/ws/market", MarketChannelURL("wss://ws.example/ws/market"))
}
