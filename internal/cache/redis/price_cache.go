package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PriceCache stores the latest top of book per token as a hash at
// "polyarb:top:{tokenID}" with fields "bid", "ask", "market" and "ts"
// (Unix nanoseconds). A side absent from the update is left untouched.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. Entries expire after ttl when it is
// positive.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.rdb, ttl: ttl}
}

// SetTop records a top-of-book update.
func (pc *PriceCache) SetTop(ctx context.Context, u domain.PriceUpdate) error {
	k := key("top", u.TokenID)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, k, topFields(u))
	if pc.ttl > 0 {
		pipe.Expire(ctx, k, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set top %s: %w", u.TokenID, err)
	}
	return nil
}

// GetTop returns the cached top of book, or domain.ErrNotFound.
func (pc *PriceCache) GetTop(ctx context.Context, tokenID string) (domain.PriceUpdate, error) {
	vals, err := pc.rdb.HGetAll(ctx, key("top", tokenID)).Result()
	if err != nil {
		return domain.PriceUpdate{}, fmt.Errorf("redis: get top %s: %w", tokenID, err)
	}
	if len(vals) == 0 {
		return domain.PriceUpdate{}, domain.ErrNotFound
	}
	return parseTop(tokenID, vals)
}

func topFields(u domain.PriceUpdate) map[string]any {
	ts := u.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	fields := map[string]any{
		"market": u.MarketID,
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}
	if u.BestBid != nil {
		fields["bid"] = u.BestBid.String()
	}
	if u.BestAsk != nil {
		fields["ask"] = u.BestAsk.String()
	}
	return fields
}

func parseTop(tokenID string, vals map[string]string) (domain.PriceUpdate, error) {
	u := domain.PriceUpdate{TokenID: tokenID, MarketID: vals["market"]}
	for field, dst := range map[string]**decimal.Decimal{"bid": &u.BestBid, "ask": &u.BestAsk} {
		s, ok := vals[field]
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return domain.PriceUpdate{}, fmt.Errorf("redis: parse %s %s: %w", field, tokenID, err)
		}
		*dst = &d
	}
	if s, ok := vals["ts"]; ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return domain.PriceUpdate{}, fmt.Errorf("redis: parse ts %s: %w", tokenID, err)
		}
		u.Timestamp = time.Unix(0, n).UTC()
	}
	return u, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
