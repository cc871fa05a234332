package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Channel returns the Pub/Sub channel for a bot event topic, e.g.
// "opportunities" becomes "polyarb:opportunities".
func Channel(topic string) string {
	return keyPrefix + topic
}

// SignalBus publishes bot events over Redis Pub/Sub. Delivery is best
// effort; nothing is replayed to late subscribers.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by c.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.rdb}
}

// Publish sends payload to channel.
func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
