// Package feed streams live order book depth into the snapshot cache so the
// analysis loop and the HTTP API always see a fresh book.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/depthlab/bookpulse/internal/domain"
	"github.com/depthlab/bookpulse/internal/platform/binance"
)

const (
	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// SnapshotHandler is called for each depth snapshot after it is cached.
type SnapshotHandler func(ctx context.Context, snap domain.OrderBookSnapshot)

// DepthFeed subscribes to the exchange depth stream for the configured
// instruments, writes every snapshot into the orderbook cache, and invokes
// the optional handler. It reconnects with exponential backoff on disconnect.
type DepthFeed struct {
	wsURL       string
	instruments []domain.Instrument
	cache       domain.OrderbookCache
	onSnapshot  SnapshotHandler
	logger      *slog.Logger
	closeOnce   sync.Once
	done        chan struct{}
}

// NewDepthFeed creates a feed for the given instruments. cache and onSnapshot
// may each be nil.
func NewDepthFeed(wsURL string, instruments []domain.Instrument, cache domain.OrderbookCache, onSnapshot SnapshotHandler, logger *slog.Logger) *DepthFeed {
	return &DepthFeed{
		wsURL:       wsURL,
		instruments: instruments,
		cache:       cache,
		onSnapshot:  onSnapshot,
		logger:      logger.With(slog.String("component", "depth_feed")),
		done:        make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called,
// reconnecting with backoff on disconnect.
func (f *DepthFeed) Run(ctx context.Context) error {
	if len(f.instruments) == 0 {
		f.logger.Info("no instruments to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("depth stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *DepthFeed) runConnection(ctx context.Context) error {
	client := binance.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnDepth(func(snap domain.OrderBookSnapshot) {
		f.handleSnapshot(ctx, snap)
	})

	if err := client.Connect(ctx, f.instruments); err != nil {
		return err
	}
	f.logger.Info("depth stream subscribed", slog.Int("instruments", len(f.instruments)))

	select {
	case <-ctx.Done():
		return nil
	case <-f.done:
		return nil
	case <-client.Done():
		return domain.ErrWSDisconnect
	}
}

func (f *DepthFeed) handleSnapshot(ctx context.Context, snap domain.OrderBookSnapshot) {
	if f.cache != nil {
		if err := f.cache.SetSnapshot(ctx, snap); err != nil {
			f.logger.Debug("snapshot cache write failed",
				slog.String("instrument", snap.Instrument.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if f.onSnapshot != nil {
		f.onSnapshot(ctx, snap)
	}
}

// Close stops the feed.
func (f *DepthFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
