package signal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/depthlab/bookpulse/internal/analysis"
	"github.com/depthlab/bookpulse/internal/domain"
)

// ProducerConfig configures the end-to-end analysis run.
type ProducerConfig struct {
	// Name identifies this producer in the output contract and the peer
	// registry.
	Name string
	// DepthLevels is how many price levels to request per side.
	DepthLevels int
	// FetchTimeout bounds the depth fetch.
	FetchTimeout time.Duration
}

// DefaultProducerConfig returns the default orchestration parameters.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Name:         "bookpulse",
		DepthLevels:  100,
		FetchTimeout: 10 * time.Second,
	}
}

// Deps are the external collaborators of the producer. Depth is required;
// everything else is optional and degrades gracefully when nil.
type Deps struct {
	Depth      domain.DepthProvider
	RefPrice   domain.ReferencePriceSource
	Volatility domain.VolatilitySource
	Peers      domain.PeerSignalRegistry
}

// Producer runs the full pipeline for one instrument: fetch, analyze, sanity
// check, decide, normalize. It holds no per-call state and is safe for
// concurrent use across instruments.
type Producer struct {
	cfg        ProducerConfig
	deps       Deps
	analyzer   *analysis.Analyzer
	sanity     *analysis.SanityChecker
	engine     *Engine
	normalizer *Normalizer
	logger     *slog.Logger
}

// NewProducer wires the pipeline stages together.
func NewProducer(cfg ProducerConfig, deps Deps, analyzer *analysis.Analyzer, sanity *analysis.SanityChecker, engine *Engine, normalizer *Normalizer, logger *slog.Logger) *Producer {
	return &Producer{
		cfg:        cfg,
		deps:       deps,
		analyzer:   analyzer,
		sanity:     sanity,
		engine:     engine,
		normalizer: normalizer,
		logger:     logger.With(slog.String("component", "producer")),
	}
}

// Name returns the producer identifier used in results and the peer registry.
func (p *Producer) Name() string { return p.cfg.Name }

// Produce runs one analysis cycle. input may be a plain symbol or a structure
// carrying one; it is normalized once at this boundary. Failures never
// propagate as errors: they are folded into a NEUTRAL result with confidence
// 0 and an explicit error code, keeping the output contract uniform.
func (p *Producer) Produce(ctx context.Context, input any) domain.SignalResult {
	instrument, err := domain.NormalizeInstrument(input)
	if err != nil {
		return p.errorResult("", err, "invalid instrument identifier")
	}

	if p.deps.Depth == nil {
		return p.errorResult(instrument, domain.ErrDataFetcherMissing, "no depth provider configured")
	}

	fctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	snap, err := p.deps.Depth.FetchDepth(fctx, instrument, p.cfg.DepthLevels)
	cancel()
	if err != nil {
		return p.errorResult(instrument, err, "depth fetch failed")
	}
	return p.Evaluate(ctx, &snap)
}

// Evaluate runs the pipeline over an already fetched snapshot. Exposed so the
// HTTP API and the streaming feed can analyze books they obtained themselves.
func (p *Producer) Evaluate(ctx context.Context, snap *domain.OrderBookSnapshot) domain.SignalResult {
	instrument := snap.Instrument

	if err := snap.Validate(); err != nil {
		return p.errorResult(instrument, err, "invalid order book")
	}

	currentPrice := snap.MidPrice()
	if currentPrice <= 0 && p.deps.RefPrice != nil {
		if px, err := p.deps.RefPrice.MidOrLastPrice(ctx, instrument); err == nil {
			currentPrice = px
		}
	}

	volatility := 0.0
	if p.deps.Volatility != nil {
		if v, err := p.deps.Volatility.ShortHorizonVolatility(ctx, instrument); err == nil {
			volatility = v
		} else if !errors.Is(err, domain.ErrNotFound) {
			p.logger.Debug("volatility lookup failed",
				slog.String("instrument", instrument.String()),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := p.analyzer.Analyze(snap, currentPrice, volatility)
	if err != nil {
		return p.errorResult(instrument, err, "analysis failed")
	}

	sanity := p.sanity.Check(m)
	decision := p.engine.Decide(ctx, instrument, m, sanity, volatility)

	confidence := decision.Confidence
	if p.deps.Peers != nil && p.normalizer != nil {
		if peers, perr := p.deps.Peers.Peers(ctx, instrument, p.cfg.Name); perr == nil {
			confidence = p.normalizer.Apply(decision.Signal, confidence, peers)
		} else {
			p.logger.Debug("peer registry unavailable, skipping normalization",
				slog.String("error", perr.Error()),
			)
		}
	}

	res := domain.SignalResult{
		ID:              uuid.NewString(),
		Producer:        p.cfg.Name,
		Instrument:      instrument,
		Timestamp:       time.Now().UTC(),
		CurrentPrice:    currentPrice,
		Signal:          decision.Signal,
		Confidence:      confidence,
		Explanation:     decision.Explanation,
		EntryPrice:      decision.Entry,
		StopLossPrice:   decision.StopLoss,
		TakeProfitPrice: decision.TakeProfit,
		Metrics:         m,
	}

	p.logger.Info("signal produced",
		slog.String("instrument", instrument.String()),
		slog.String("signal", string(res.Signal)),
		slog.Int("confidence", res.Confidence),
		slog.String("rule", decision.Rule),
	)
	return res
}

// errorResult builds the uniform failure record: NEUTRAL, confidence 0, and
// the classified error code.
func (p *Producer) errorResult(instrument domain.Instrument, err error, context string) domain.SignalResult {
	code := domain.ErrorCodeFor(err)
	p.logger.Warn("analysis cycle failed",
		slog.String("instrument", instrument.String()),
		slog.String("code", string(code)),
		slog.String("error", err.Error()),
	)
	return domain.SignalResult{
		ID:          uuid.NewString(),
		Producer:    p.cfg.Name,
		Instrument:  instrument,
		Timestamp:   time.Now().UTC(),
		Signal:      domain.SignalNeutral,
		Confidence:  0,
		Explanation: context + ": " + err.Error(),
		ErrorCode:   code,
	}
}
