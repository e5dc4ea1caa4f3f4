package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/analysis"
	"github.com/depthlab/bookpulse/internal/domain"
)

type stubDepth struct {
	snap domain.OrderBookSnapshot
	err  error
}

func (s *stubDepth) FetchDepth(_ context.Context, _ domain.Instrument, _ int) (domain.OrderBookSnapshot, error) {
	return s.snap, s.err
}

type stubPeers struct {
	peers []domain.PeerSignal
	err   error
}

func (s *stubPeers) Peers(_ context.Context, _ domain.Instrument, _ string) ([]domain.PeerSignal, error) {
	return s.peers, s.err
}

func (s *stubPeers) Publish(_ context.Context, _ domain.Instrument, _ domain.PeerSignal) error {
	return nil
}

func newTestProducer(deps Deps) *Producer {
	logger := discardLogger()
	return NewProducer(
		DefaultProducerConfig(),
		deps,
		analysis.NewAnalyzer(analysis.DefaultConfig(), logger),
		analysis.NewSanityChecker(analysis.DefaultSanityConfig(), logger),
		NewEngine(DefaultPolicyConfig(), nil, logger),
		NewNormalizer(DefaultNormalizerConfig(), logger),
		logger,
	)
}

func balancedSnapshot(instrument domain.Instrument) domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{Instrument: instrument, Timestamp: time.Now()}
	for i := 0; i < 40; i++ {
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: 100 - 0.05*float64(i+1), Size: 10})
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: 100 + 0.05*float64(i+1), Size: 10})
	}
	// A pair of heavy shelves on each side so zone structure exists.
	snap.Bids[5].Size = 90
	snap.Bids[25].Size = 80
	snap.Asks[5].Size = 90
	snap.Asks[25].Size = 80
	return snap
}

func TestProduceHappyPath(t *testing.T) {
	p := newTestProducer(Deps{Depth: &stubDepth{snap: balancedSnapshot("BTCUSDT")}})

	res := p.Produce(context.Background(), "btcusdt")

	assert.False(t, res.IsError())
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, domain.Instrument("BTCUSDT"), res.Instrument)
	assert.Equal(t, "bookpulse", res.Producer)
	assert.InDelta(t, 100.0, res.CurrentPrice, 0.1)
	require.NotNil(t, res.Metrics)
	assert.GreaterOrEqual(t, res.Confidence, 0)
	assert.LessOrEqual(t, res.Confidence, 100)
}

func TestProduceMissingDepthProvider(t *testing.T) {
	p := newTestProducer(Deps{})

	res := p.Produce(context.Background(), "BTCUSDT")

	assert.Equal(t, domain.ErrCodeDataFetcherMissing, res.ErrorCode)
	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Zero(t, res.Confidence)
}

func TestProduceInvalidInstrument(t *testing.T) {
	p := newTestProducer(Deps{Depth: &stubDepth{snap: balancedSnapshot("X")}})

	res := p.Produce(context.Background(), "   ")

	assert.Equal(t, domain.ErrCodeInvalidInput, res.ErrorCode)
	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Zero(t, res.Confidence)
}

func TestProduceFetchFailure(t *testing.T) {
	p := newTestProducer(Deps{Depth: &stubDepth{err: domain.ErrRateLimited}})

	res := p.Produce(context.Background(), "BTCUSDT")

	assert.Equal(t, domain.ErrCodeInsufficientData, res.ErrorCode)
	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Zero(t, res.Confidence)
}

func TestEvaluateEmptyAsks(t *testing.T) {
	p := newTestProducer(Deps{})

	snap := balancedSnapshot("BTCUSDT")
	snap.Asks = nil

	res := p.Evaluate(context.Background(), &snap)

	assert.Equal(t, domain.ErrCodeInvalidOrderBook, res.ErrorCode)
	assert.Equal(t, domain.SignalNeutral, res.Signal)
	assert.Zero(t, res.Confidence)
	assert.Nil(t, res.Metrics)
}

func TestEvaluateAppliesNormalizer(t *testing.T) {
	peers := &stubPeers{peers: []domain.PeerSignal{
		{Producer: "a", Signal: domain.SignalBuy, Confidence: 70},
		{Producer: "b", Signal: domain.SignalBuy, Confidence: 70},
	}}
	p := newTestProducer(Deps{Peers: peers})

	// A heavy ask side drives the ratio far below the pressure band, so the
	// override yields a high-confidence SELL for the normalizer to damp.
	snap := balancedSnapshot("BTCUSDT")
	for i := range snap.Asks {
		snap.Asks[i].Size *= 10
	}

	res := p.Evaluate(context.Background(), &snap)

	require.Equal(t, domain.SignalSell, res.Signal)
	assert.LessOrEqual(t, res.Confidence, 80,
		"peer disagreement must damp the aggressive sell")
}

func TestEvaluatePeerRegistryFailureIsIgnored(t *testing.T) {
	p := newTestProducer(Deps{Peers: &stubPeers{err: domain.ErrNotFound}})

	snap := balancedSnapshot("BTCUSDT")
	res := p.Evaluate(context.Background(), &snap)
	assert.False(t, res.IsError())
}

func TestEvaluateDeterministicModuloIdentity(t *testing.T) {
	p := newTestProducer(Deps{})

	snap := balancedSnapshot("BTCUSDT")
	r1 := p.Evaluate(context.Background(), &snap)
	r2 := p.Evaluate(context.Background(), &snap)

	// ID and timestamp are per-invocation; everything derived must match.
	assert.Equal(t, r1.Signal, r2.Signal)
	assert.Equal(t, r1.Confidence, r2.Confidence)
	assert.Equal(t, r1.Explanation, r2.Explanation)
	assert.Equal(t, r1.EntryPrice, r2.EntryPrice)
	assert.Equal(t, r1.StopLossPrice, r2.StopLossPrice)
	assert.Equal(t, r1.Metrics, r2.Metrics)
}
