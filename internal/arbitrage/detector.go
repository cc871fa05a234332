package arbitrage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

var one = decimal.NewFromInt(1)

// BookFetcher retrieves order books for a batch of tokens. Tokens whose
// fetch failed are simply absent from the result.
type BookFetcher interface {
	GetOrderBooks(ctx context.Context, tokenIDs []string) ([]domain.OrderBookSnapshot, error)
}

// Thresholds gate which mispricings are reported.
type Thresholds struct {
	MaxCombinedPrice   decimal.Decimal
	MinProfitThreshold decimal.Decimal
}

// Detector evaluates market pairs against their current books.
type Detector struct {
	fetcher    BookFetcher
	thresholds Thresholds
	logger     *slog.Logger
	now        func() time.Time
}

// NewDetector creates a detector.
func NewDetector(fetcher BookFetcher, thresholds Thresholds, logger *slog.Logger) *Detector {
	return &Detector{
		fetcher:    fetcher,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "detector")),
		now:        time.Now,
	}
}

// Thresholds returns the configured gates.
func (d *Detector) Thresholds() Thresholds {
	return d.thresholds
}

// Evaluate checks one pair. It reports an opportunity iff both books have
// asks, the combined best ask is strictly below MaxCombinedPrice and the
// profit per share is at least MinProfitThreshold.
func (d *Detector) Evaluate(pair domain.MarketPair, yesBook, noBook domain.OrderBookSnapshot) (domain.ArbitrageOpportunity, bool) {
	yesAsk, ok := yesBook.BestAsk()
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}
	noAsk, ok := noBook.BestAsk()
	if !ok {
		return domain.ArbitrageOpportunity{}, false
	}

	combined := yesAsk.Price.Add(noAsk.Price)
	profit := one.Sub(combined)
	if !combined.LessThan(d.thresholds.MaxCombinedPrice) || profit.LessThan(d.thresholds.MinProfitThreshold) {
		return domain.ArbitrageOpportunity{}, false
	}

	return domain.ArbitrageOpportunity{
		MarketID:       pair.MarketID,
		Description:    pair.Description,
		YesTokenID:     pair.YesTokenID,
		NoTokenID:      pair.NoTokenID,
		YesAskPrice:    yesAsk.Price,
		NoAskPrice:     noAsk.Price,
		CombinedPrice:  combined,
		ProfitPerShare: profit,
		MaxSize:        decimal.Min(yesAsk.Size, noAsk.Size),
		DetectedAt:     d.now(),
	}, true
}

// ScanAll fetches books for every token of every pair in one batch and
// evaluates each pair. Pairs with a missing book are skipped.
func (d *Detector) ScanAll(ctx context.Context, pairs []domain.MarketPair) ([]domain.ArbitrageOpportunity, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	tokenIDs := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		tokenIDs = append(tokenIDs, p.YesTokenID, p.NoTokenID)
	}

	books, err := d.fetcher.GetOrderBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("arbitrage: scan: %w", err)
	}
	byToken := make(map[string]domain.OrderBookSnapshot, len(books))
	for _, b := range books {
		byToken[b.TokenID] = b
	}

	var opps []domain.ArbitrageOpportunity
	skipped := 0
	for _, p := range pairs {
		yes, okYes := byToken[p.YesTokenID]
		no, okNo := byToken[p.NoTokenID]
		if !okYes || !okNo {
			skipped++
			continue
		}
		if opp, ok := d.Evaluate(p, yes, no); ok {
			opps = append(opps, opp)
		}
	}

	d.logger.Debug("scan complete",
		slog.Int("pairs", len(pairs)),
		slog.Int("books", len(books)),
		slog.Int("skipped", skipped),
		slog.Int("opportunities", len(opps)),
	)
	return opps, nil
}

// ScanMarket fetches both books of one pair and evaluates it.
func (d *Detector) ScanMarket(ctx context.Context, pair domain.MarketPair) (domain.ArbitrageOpportunity, bool, error) {
	opps, err := d.ScanAll(ctx, []domain.MarketPair{pair})
	if err != nil || len(opps) == 0 {
		return domain.ArbitrageOpportunity{}, false, err
	}
	return opps[0], true, nil
}
