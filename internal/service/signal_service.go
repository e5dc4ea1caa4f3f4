// Package service contains the long-running loops: periodic signal
// production per instrument and retention archiving.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/depthlab/bookpulse/internal/domain"
	"github.com/depthlab/bookpulse/internal/notify"
)

// SignalProducer runs one full fetch-and-analyze cycle for an instrument.
type SignalProducer interface {
	Produce(ctx context.Context, input any) domain.SignalResult
}

// SignalServiceConfig holds the production loop parameters.
type SignalServiceConfig struct {
	Instruments []domain.Instrument
	Interval    time.Duration
	LockTTL     time.Duration

	// PublishChannel is the pub/sub channel for produced signals. Each signal
	// is also published to "<channel>:<instrument>".
	PublishChannel string
	// PublishStream is the durable stream consumed by the consensus step.
	PublishStream string

	// NotifyMinConfidence suppresses notifications for weaker signals.
	NotifyMinConfidence int
}

// SignalService drives periodic signal production: one loop per instrument,
// guarded by a distributed lock so only one replica analyzes an instrument
// at a time. Produced signals are persisted, published to peers and to the
// signal bus, and optionally forwarded to notification channels.
type SignalService struct {
	cfg      SignalServiceConfig
	producer SignalProducer
	store    domain.SignalStore
	peers    domain.PeerSignalRegistry
	bus      domain.SignalBus
	locks    domain.LockManager
	audit    domain.AuditStore
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewSignalService creates a SignalService. peers, bus, locks, audit and
// notifier may each be nil; the corresponding step is skipped.
func NewSignalService(
	cfg SignalServiceConfig,
	producer SignalProducer,
	store domain.SignalStore,
	peers domain.PeerSignalRegistry,
	bus domain.SignalBus,
	locks domain.LockManager,
	audit domain.AuditStore,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *SignalService {
	return &SignalService{
		cfg:      cfg,
		producer: producer,
		store:    store,
		peers:    peers,
		bus:      bus,
		locks:    locks,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "signal_service")),
	}
}

// Run starts one production loop per instrument and blocks until the context
// is cancelled or a loop fails.
func (s *SignalService) Run(ctx context.Context) error {
	if len(s.cfg.Instruments) == 0 {
		return fmt.Errorf("signal_service: no instruments configured")
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, instrument := range s.cfg.Instruments {
		g.Go(func() error {
			return s.runInstrument(ctx, instrument)
		})
	}
	return g.Wait()
}

// RunOnce produces a signal for every configured instrument exactly once and
// returns the results. Used by the one-shot mode.
func (s *SignalService) RunOnce(ctx context.Context) []domain.SignalResult {
	out := make([]domain.SignalResult, 0, len(s.cfg.Instruments))
	for _, instrument := range s.cfg.Instruments {
		out = append(out, s.produceAndPublish(ctx, instrument))
	}
	return out
}

// runInstrument produces a signal for one instrument on every tick.
func (s *SignalService) runInstrument(ctx context.Context, instrument domain.Instrument) error {
	logger := s.logger.With(slog.String("instrument", instrument.String()))
	logger.Info("production loop started", slog.Duration("interval", s.cfg.Interval))

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.produceAndPublish(ctx, instrument)
		}
	}
}

// produceAndPublish runs one production cycle for an instrument under the
// distributed lock and fans the result out to every configured sink.
func (s *SignalService) produceAndPublish(ctx context.Context, instrument domain.Instrument) domain.SignalResult {
	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, "produce:"+instrument.String(), s.cfg.LockTTL)
		if err != nil {
			// Another replica holds the lock; skip this cycle.
			s.logger.Debug("instrument locked by another replica",
				slog.String("instrument", instrument.String()),
			)
			return domain.SignalResult{Instrument: instrument, Signal: domain.SignalNeutral}
		}
		defer unlock()
	}

	res := s.producer.Produce(ctx, instrument)

	if err := s.store.Insert(ctx, res); err != nil {
		s.logger.Error("signal insert failed",
			slog.String("instrument", instrument.String()),
			slog.String("error", err.Error()),
		)
	}

	if res.IsError() {
		s.handleError(ctx, res)
		return res
	}

	s.publishPeer(ctx, res)
	s.publishBus(ctx, res)
	s.notifySignal(ctx, res)
	return res
}

// publishPeer shares the opinion with sibling producers for cross-producer
// confidence normalization.
func (s *SignalService) publishPeer(ctx context.Context, res domain.SignalResult) {
	if s.peers == nil {
		return
	}
	ps := domain.PeerSignal{
		Producer:   res.Producer,
		Signal:     res.Signal,
		Confidence: res.Confidence,
		UpdatedAt:  res.Timestamp,
	}
	if err := s.peers.Publish(ctx, res.Instrument, ps); err != nil {
		s.logger.Warn("peer publish failed",
			slog.String("instrument", res.Instrument.String()),
			slog.String("error", err.Error()),
		)
	}
}

// publishBus pushes the result to the ephemeral channel and the durable
// stream consumed by the downstream consensus step.
func (s *SignalService) publishBus(ctx context.Context, res domain.SignalResult) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(res)
	if err != nil {
		s.logger.Error("signal marshal failed", slog.String("error", err.Error()))
		return
	}

	for _, channel := range []string{
		s.cfg.PublishChannel,
		s.cfg.PublishChannel + ":" + res.Instrument.String(),
	} {
		if err := s.bus.Publish(ctx, channel, payload); err != nil {
			s.logger.Warn("bus publish failed",
				slog.String("channel", channel),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.cfg.PublishStream != "" {
		if err := s.bus.StreamAppend(ctx, s.cfg.PublishStream, payload); err != nil {
			s.logger.Warn("stream append failed",
				slog.String("stream", s.cfg.PublishStream),
				slog.String("error", err.Error()),
			)
		}
	}
}

// notifySignal forwards directional, high-confidence signals to the
// configured notification channels.
func (s *SignalService) notifySignal(ctx context.Context, res domain.SignalResult) {
	if s.notifier == nil || res.Signal == domain.SignalNeutral {
		return
	}
	if res.Confidence < s.cfg.NotifyMinConfidence {
		return
	}
	if err := s.notifier.NotifySignal(ctx, res); err != nil {
		s.logger.Warn("signal notification failed",
			slog.String("instrument", res.Instrument.String()),
			slog.String("error", err.Error()),
		)
	}
}

// handleError records a failed production cycle in the audit log and
// notification channels.
func (s *SignalService) handleError(ctx context.Context, res domain.SignalResult) {
	s.logger.Warn("production cycle failed",
		slog.String("instrument", res.Instrument.String()),
		slog.String("error_code", string(res.ErrorCode)),
		slog.String("explanation", res.Explanation),
	)

	if s.audit != nil {
		if err := s.audit.Log(ctx, "signal.error", map[string]any{
			"instrument": res.Instrument.String(),
			"error_code": string(res.ErrorCode),
			"detail":     res.Explanation,
		}); err != nil {
			s.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyError(ctx, res.Instrument, res.ErrorCode, res.Explanation); err != nil {
			s.logger.Warn("error notification failed", slog.String("error", err.Error()))
		}
	}
}
