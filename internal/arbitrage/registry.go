package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// MarketLister lists tradable venue markets.
type MarketLister interface {
	ListMarkets(ctx context.Context, maxPages int) ([]domain.Market, error)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Lister      MarketLister
	Cache       domain.PairCache // optional
	MaxMarkets  int
	MarketPages int
	TopicFilter bool
	Keywords    []string
	Logger      *slog.Logger
}

type pairSnapshot struct {
	pairs       []domain.MarketPair
	byMarket    map[string]domain.MarketPair
	byToken     map[string]domain.MarketPair
	refreshedAt time.Time
}

func newPairSnapshot(pairs []domain.MarketPair, at time.Time) *pairSnapshot {
	s := &pairSnapshot{
		pairs:       pairs,
		byMarket:    make(map[string]domain.MarketPair, len(pairs)),
		byToken:     make(map[string]domain.MarketPair, 2*len(pairs)),
		refreshedAt: at,
	}
	for _, p := range pairs {
		s.byMarket[p.MarketID] = p
		s.byToken[p.YesTokenID] = p
		s.byToken[p.NoTokenID] = p
	}
	return s
}

// Registry caches the watched market pairs. Readers always see one complete
// snapshot; Refresh replaces it wholesale.
type Registry struct {
	cfg    RegistryConfig
	logger *slog.Logger

	refreshMu sync.Mutex
	snap      atomic.Pointer[pairSnapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	r := &Registry{
		cfg:    cfg,
		logger: cfg.Logger.With(slog.String("component", "registry")),
	}
	r.snap.Store(newPairSnapshot(nil, time.Time{}))
	return r
}

// Refresh lists markets, applies the topic filter and the market cap, and
// swaps in the extracted pairs. On error the previous snapshot stays.
func (r *Registry) Refresh(ctx context.Context) (int, error) {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	markets, err := r.cfg.Lister.ListMarkets(ctx, r.cfg.MarketPages)
	if err != nil {
		return 0, fmt.Errorf("arbitrage: refresh registry: %w", err)
	}
	listed := len(markets)

	if r.cfg.TopicFilter {
		filtered := markets[:0:0]
		for _, m := range markets {
			if MatchesTopic(m.Question, r.cfg.Keywords) {
				filtered = append(filtered, m)
			}
		}
		markets = filtered
	}
	if r.cfg.MaxMarkets > 0 && len(markets) > r.cfg.MaxMarkets {
		markets = markets[:r.cfg.MaxMarkets]
	}

	pairs := make([]domain.MarketPair, 0, len(markets))
	for _, m := range markets {
		if p, ok := ExtractPair(m); ok {
			pairs = append(pairs, p)
		}
	}

	r.snap.Store(newPairSnapshot(pairs, time.Now()))
	r.logger.Info("registry refreshed",
		slog.Int("listed", listed),
		slog.Int("candidates", len(markets)),
		slog.Int("pairs", len(pairs)),
	)

	if r.cfg.Cache != nil {
		if err := r.cfg.Cache.SavePairs(ctx, pairs); err != nil {
			r.logger.Warn("pair cache save failed", slog.String("error", err.Error()))
		}
	}
	return len(pairs), nil
}

// WarmStart loads the last cached snapshot, if any, so reads are served
// before the first venue refresh. It never overwrites a refreshed snapshot.
func (r *Registry) WarmStart(ctx context.Context) (int, error) {
	if r.cfg.Cache == nil {
		return 0, nil
	}
	pairs, err := r.cfg.Cache.LoadPairs(ctx)
	if err != nil {
		return 0, fmt.Errorf("arbitrage: warm start: %w", err)
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()
	if !r.snap.Load().refreshedAt.IsZero() {
		return 0, nil
	}
	r.snap.Store(newPairSnapshot(pairs, time.Time{}))
	return len(pairs), nil
}

// Pair returns the pair for a market.
func (r *Registry) Pair(marketID string) (domain.MarketPair, bool) {
	p, ok := r.snap.Load().byMarket[marketID]
	return p, ok
}

// PairForToken returns the pair that contains tokenID on either side.
func (r *Registry) PairForToken(tokenID string) (domain.MarketPair, bool) {
	p, ok := r.snap.Load().byToken[tokenID]
	return p, ok
}

// Pairs returns a copy of every cached pair.
func (r *Registry) Pairs() []domain.MarketPair {
	return append([]domain.MarketPair(nil), r.snap.Load().pairs...)
}

// Len returns the number of cached pairs.
func (r *Registry) Len() int {
	return len(r.snap.Load().pairs)
}

// WatchedTokenIDs returns both token IDs of every cached pair, sorted.
func (r *Registry) WatchedTokenIDs() []string {
	s := r.snap.Load()
	ids := make([]string, 0, len(s.byToken))
	for id := range s.byToken {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RefreshedAt returns when the current snapshot was fetched from the venue.
// It is zero for an empty or warm-started registry.
func (r *Registry) RefreshedAt() time.Time {
	return r.snap.Load().refreshedAt
}
