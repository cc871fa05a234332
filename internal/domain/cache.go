package domain

import (
	"context"
	"time"
)

// PairCache persists the last registry snapshot so a restart can serve reads
// before the first venue refresh completes.
type PairCache interface {
	SavePairs(ctx context.Context, pairs []MarketPair) error
	LoadPairs(ctx context.Context) ([]MarketPair, error)
}

// PriceCache stores the latest top of book per token.
type PriceCache interface {
	SetTop(ctx context.Context, update PriceUpdate) error
	GetTop(ctx context.Context, tokenID string) (PriceUpdate, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// SignalBus publishes events to other processes.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}
