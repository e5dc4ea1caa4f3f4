package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/depthlab/bookpulse/internal/domain"
)

// snapshotTTL bounds how long a cached book stays usable. Depth data goes
// stale within seconds; the TTL guards against serving a dead feed's last
// snapshot forever.
const snapshotTTL = 30 * time.Second

// OrderbookCache implements domain.OrderbookCache storing the latest snapshot
// per instrument as a JSON value with a short TTL.
//
// Key schema:
//
//	book:{instrument} - JSON-encoded domain.OrderBookSnapshot
type OrderbookCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{
		rdb: c.Underlying(),
		ttl: snapshotTTL,
	}
}

func bookKey(instrument domain.Instrument) string {
	return "book:" + instrument.String()
}

// SetSnapshot replaces the cached snapshot for the instrument.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.Instrument, err)
	}
	if err := oc.rdb.Set(ctx, bookKey(snap.Instrument), data, oc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.Instrument, err)
	}
	return nil
}

// GetSnapshot returns the cached snapshot for the instrument, or
// domain.ErrNotFound when none exists or the TTL has expired.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, instrument domain.Instrument) (domain.OrderBookSnapshot, error) {
	data, err := oc.rdb.Get(ctx, bookKey(instrument)).Bytes()
	if err == redis.Nil {
		return domain.OrderBookSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", instrument, err)
	}

	var snap domain.OrderBookSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.OrderBookSnapshot{}, fmt.Errorf("redis: decode snapshot %s: %w", instrument, err)
	}
	return snap, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
