package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// PairCache stores the registry snapshot as one JSON document so a restarted
// process can serve pair lookups before its first venue refresh.
//
// Key schema:
//
//	polyarb:pairs - JSON array of MarketPair, expiring after ttl
type PairCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPairCache creates a PairCache. A ttl of zero keeps the snapshot forever.
func NewPairCache(c *Client, ttl time.Duration) *PairCache {
	return &PairCache{rdb: c.rdb, ttl: ttl}
}

// SavePairs overwrites the cached snapshot.
func (pc *PairCache) SavePairs(ctx context.Context, pairs []domain.MarketPair) error {
	data, err := encodePairs(pairs)
	if err != nil {
		return err
	}
	if err := pc.rdb.Set(ctx, key("pairs"), data, pc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: save pairs: %w", err)
	}
	return nil
}

// LoadPairs returns the cached snapshot, or domain.ErrNotFound when none is
// stored.
func (pc *PairCache) LoadPairs(ctx context.Context) ([]domain.MarketPair, error) {
	data, err := pc.rdb.Get(ctx, key("pairs")).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: load pairs: %w", err)
	}
	return decodePairs(data)
}

func encodePairs(pairs []domain.MarketPair) ([]byte, error) {
	if pairs == nil {
		pairs = []domain.MarketPair{}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return nil, fmt.Errorf("redis: marshal pairs: %w", err)
	}
	return data, nil
}

// decodePairs drops entries missing either token so a corrupt cache never
// produces a half pair.
func decodePairs(data []byte) ([]domain.MarketPair, error) {
	var pairs []domain.MarketPair
	if err := json.Unmarshal(data, &pairs); err != nil {
		return nil, fmt.Errorf("redis: unmarshal pairs: %w", err)
	}
	out := pairs[:0]
	for _, p := range pairs {
		if p.MarketID == "" || p.YesTokenID == "" || p.NoTokenID == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

var _ domain.PairCache = (*PairCache)(nil)
