package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/depthlab/bookpulse/internal/domain"
)

// peerSignalTTL is how long a producer's published opinion stays visible to
// siblings. Producers republish every cycle, so an entry older than this
// belongs to a dead producer and must not sway normalization.
const peerSignalTTL = 5 * time.Minute

// PeerSignalRegistry implements domain.PeerSignalRegistry over a Redis hash
// per instrument, one field per producer.
//
// Key schema:
//
//	peers:{instrument} - hash mapping producer name -> JSON domain.PeerSignal
type PeerSignalRegistry struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPeerSignalRegistry creates a PeerSignalRegistry backed by the given
// Client.
func NewPeerSignalRegistry(c *Client) *PeerSignalRegistry {
	return &PeerSignalRegistry{
		rdb: c.Underlying(),
		ttl: peerSignalTTL,
	}
}

func peersKey(instrument domain.Instrument) string {
	return "peers:" + instrument.String()
}

// Publish stores this producer's latest opinion for the instrument.
func (pr *PeerSignalRegistry) Publish(ctx context.Context, instrument domain.Instrument, sig domain.PeerSignal) error {
	if sig.UpdatedAt.IsZero() {
		sig.UpdatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("redis: marshal peer signal %s/%s: %w", instrument, sig.Producer, err)
	}

	key := peersKey(instrument)
	pipe := pr.rdb.TxPipeline()
	pipe.HSet(ctx, key, sig.Producer, data)
	// The whole hash shares one TTL; any publish refreshes it.
	pipe.Expire(ctx, key, pr.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish peer signal %s/%s: %w", instrument, sig.Producer, err)
	}
	return nil
}

// Peers returns the sibling producers' latest opinions for the instrument,
// excluding the named producer and any entry older than the registry TTL.
func (pr *PeerSignalRegistry) Peers(ctx context.Context, instrument domain.Instrument, exclude string) ([]domain.PeerSignal, error) {
	vals, err := pr.rdb.HGetAll(ctx, peersKey(instrument)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: get peer signals %s: %w", instrument, err)
	}

	cutoff := time.Now().UTC().Add(-pr.ttl)
	peers := make([]domain.PeerSignal, 0, len(vals))
	for producer, raw := range vals {
		if producer == exclude {
			continue
		}
		var sig domain.PeerSignal
		if err := json.Unmarshal([]byte(raw), &sig); err != nil {
			continue
		}
		if sig.UpdatedAt.Before(cutoff) {
			continue
		}
		peers = append(peers, sig)
	}
	return peers, nil
}

// Compile-time interface check.
var _ domain.PeerSignalRegistry = (*PeerSignalRegistry)(nil)
