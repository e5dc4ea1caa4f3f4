package signal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/analysis"
	"github.com/depthlab/bookpulse/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(refiner domain.Refiner) *Engine {
	return NewEngine(DefaultPolicyConfig(), refiner, discardLogger())
}

func metricsWithRatio(ratio float64) *domain.Metrics {
	return &domain.Metrics{
		BestBid:       99.9,
		BestAsk:       100.1,
		MidPrice:      100,
		Spread:        0.2,
		SpreadPercent: 0.2,
		BidDepth:      ratio * 50_000,
		AskDepth:      50_000,
		BidAskRatio:   ratio,
		LiquidityScore: 50,
		SupportZones: []domain.LiquidityZone{
			{Kind: domain.ZoneSupport, Price: 99, Volume: 100, Strength: 2},
			{Kind: domain.ZoneSupport, Price: 97, Volume: 80, Strength: 1.8},
		},
		ResistanceZones: []domain.LiquidityZone{
			{Kind: domain.ZoneResistance, Price: 101, Volume: 100, Strength: 2},
			{Kind: domain.ZoneResistance, Price: 103, Volume: 80, Strength: 1.8},
		},
	}
}

func saneResult() domain.SanityResult { return domain.SanityResult{OK: true} }

func TestDecideBalancedBookIsNeutral(t *testing.T) {
	e := newTestEngine(nil)

	m := metricsWithRatio(1.0)
	d := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 0)

	assert.Equal(t, domain.SignalNeutral, d.Signal)
	assert.GreaterOrEqual(t, d.Confidence, 50)
	assert.LessOrEqual(t, d.Confidence, 65)
	assert.Zero(t, d.Entry)
	assert.Zero(t, d.StopLoss)
}

func TestDecideStrongBuyAtHighConfidence(t *testing.T) {
	e := newTestEngine(nil)

	// Bid depth 90k against ask depth 50k: ratio 1.8 with a thin ask side.
	m := metricsWithRatio(1.8)
	m.BidDepth, m.AskDepth = 90_000, 50_000

	d := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 0)

	assert.Equal(t, domain.SignalBuy, d.Signal)
	assert.Equal(t, DefaultPolicyConfig().HighConfidence, d.Confidence)
	assert.Greater(t, d.Entry, 0.0)
	assert.Greater(t, d.StopLoss, 0.0)
}

func TestDecideExtremeSellPressure(t *testing.T) {
	e := newTestEngine(nil)

	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(0.60), saneResult(), 0)

	assert.Equal(t, domain.SignalSell, d.Signal)
	assert.GreaterOrEqual(t, d.Confidence, 80)
	assert.Equal(t, "extreme_ratio_override", d.Rule)
}

func TestDecideZeroBidDepthIsExtremeSell(t *testing.T) {
	e := newTestEngine(nil)

	// Live asks against zero bid volume: a genuine ratio of 0, the most
	// extreme sell pressure there is.
	m := metricsWithRatio(0)

	d := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 0)

	assert.Equal(t, domain.SignalSell, d.Signal)
	assert.Equal(t, "extreme_ratio_override", d.Rule)
	assert.Equal(t, DefaultPolicyConfig().OverrideMaxConfidence, d.Confidence)
}

func TestDecideEmptyAskSideStaysNeutral(t *testing.T) {
	e := newTestEngine(nil)

	// Ratio 0 with no ask depth is the division sentinel, not sell pressure.
	m := metricsWithRatio(0)
	m.AskDepth = 0

	d := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 0)

	assert.Equal(t, domain.SignalNeutral, d.Signal)
}

func TestDecideSellsThroughZeroSizeBidLadder(t *testing.T) {
	// A structurally valid book whose bid levels all carry zero size must
	// come out as SELL, not escape every directional rule.
	a := analysis.NewAnalyzer(analysis.DefaultConfig(), discardLogger())
	sc := analysis.NewSanityChecker(analysis.DefaultSanityConfig(), discardLogger())
	e := newTestEngine(nil)

	snap := &domain.OrderBookSnapshot{
		Instrument: "BTCUSDT",
		Bids:       []domain.PriceLevel{{Price: 100, Size: 0}, {Price: 99, Size: 0}},
		Asks:       []domain.PriceLevel{{Price: 101, Size: 5}, {Price: 102, Size: 5}, {Price: 103, Size: 5}},
		Timestamp:  time.Now(),
	}
	require.NoError(t, snap.Validate())

	m, err := a.Analyze(snap, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, m.BidAskRatio)

	d := e.Decide(context.Background(), snap.Instrument, m, sc.Check(m), 0)
	assert.Equal(t, domain.SignalSell, d.Signal)
	assert.Equal(t, "extreme_ratio_override", d.Rule)
}

func TestDecideOverrideBypassesSanity(t *testing.T) {
	e := newTestEngine(nil)

	failed := domain.SanityResult{OK: false, Reason: "zones too tightly packed"}
	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(2.0), failed, 0)

	assert.Equal(t, domain.SignalBuy, d.Signal)
	assert.GreaterOrEqual(t, d.Confidence, 80)
}

func TestDecideMonotonicOverride(t *testing.T) {
	e := newTestEngine(nil)
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 200; trial++ {
		var ratio float64
		if trial%2 == 0 {
			ratio = 1.2501 + rng.Float64()*10
		} else {
			ratio = 0.001 + rng.Float64()*0.7489
		}

		m := metricsWithRatio(ratio)
		// Randomize structure to show the override ignores it.
		m.SupportZones = m.SupportZones[:rng.Intn(3)]
		m.ResistanceZones = m.ResistanceZones[:rng.Intn(3)]
		for g := 0; g < rng.Intn(5); g++ {
			m.Gaps = append(m.Gaps, domain.LiquidityGap{Price: 90 + rng.Float64()*20})
		}

		d := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 0)
		if ratio > 1.25 {
			assert.Equal(t, domain.SignalBuy, d.Signal, "ratio %.4f", ratio)
		} else {
			assert.Equal(t, domain.SignalSell, d.Signal, "ratio %.4f", ratio)
		}
		assert.GreaterOrEqual(t, d.Confidence, 80)
		assert.LessOrEqual(t, d.Confidence, 95)
	}
}

func TestDecideFailedSanityIsNeutralFifty(t *testing.T) {
	e := newTestEngine(nil)

	failed := domain.SanityResult{OK: false, Reason: "unrealistic volume spike"}
	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(1.1), failed, 0)

	assert.Equal(t, domain.SignalNeutral, d.Signal)
	assert.Equal(t, 50, d.Confidence)
	assert.Contains(t, d.Explanation, "unrealistic volume spike")
}

func TestDecideModerateThresholds(t *testing.T) {
	e := newTestEngine(nil)

	t.Run("tightened buy threshold under high volatility", func(t *testing.T) {
		// At low volatility 1.20 misses the 1.3 moderate threshold and only
		// the permissive fallback band catches it.
		d := e.ruleBased(metricsWithRatio(1.20), 0)
		assert.Equal(t, domain.SignalBuy, d.Signal)
		assert.Equal(t, "fallback_ratio_band_1pct", d.Rule)

		// High volatility tightens the threshold to 1.15.
		d = e.ruleBased(metricsWithRatio(1.20), 2.0)
		assert.Equal(t, domain.SignalBuy, d.Signal)
		assert.Equal(t, "moderate_ratio", d.Rule)
	})

	t.Run("tightened sell threshold under high volatility", func(t *testing.T) {
		d := e.ruleBased(metricsWithRatio(0.84), 2.0)
		assert.Equal(t, domain.SignalSell, d.Signal)
		assert.Equal(t, "moderate_ratio", d.Rule)
	})
}

func TestDecideInstitutionalBias(t *testing.T) {
	e := newTestEngine(nil)

	m := metricsWithRatio(1.0)
	m.LargeBids = []domain.LargeOrder{
		{Side: domain.SideBid, Price: 99, Volume: 5000, Ratio: 4, Technique: domain.DetectVolumeSpike},
	}

	d := e.ruleBased(m, 0)
	assert.Equal(t, domain.SignalBuy, d.Signal)
	assert.Equal(t, DefaultPolicyConfig().MediumConfidence, d.Confidence-3,
		"medium confidence plus the weak zone boost")
}

func TestDecideWideSpreadForcesNeutral(t *testing.T) {
	e := newTestEngine(nil)

	// Ratio 1.02 would normally trip the 1% fallback band; a wide spread
	// must keep the result NEUTRAL instead.
	m := metricsWithRatio(1.02)
	m.SpreadPercent = 1.2

	d := e.ruleBased(m, 0)
	assert.Equal(t, domain.SignalNeutral, d.Signal)
	assert.Equal(t, "wide_spread", d.Rule)
}

func TestDecideWideSpreadCapsConfidence(t *testing.T) {
	e := newTestEngine(nil)

	m := metricsWithRatio(1.0)
	m.LargeBids = []domain.LargeOrder{{Side: domain.SideBid, Price: 99, Volume: 5000}}
	m.SpreadPercent = 1.2
	m.SupportZones[0].Strength = 5
	m.SupportZones[1].Strength = 5

	d := e.ruleBased(m, 0)
	assert.Equal(t, domain.SignalBuy, d.Signal)
	assert.LessOrEqual(t, d.Confidence, DefaultPolicyConfig().WideSpreadConfidenceCap)
}

func TestDecideBoundedConfidence(t *testing.T) {
	e := newTestEngine(nil)
	rng := rand.New(rand.NewSource(99))

	for trial := 0; trial < 500; trial++ {
		m := metricsWithRatio(0.01 + rng.Float64()*5)
		m.LiquidityScore = rng.Float64() * 100
		m.SpreadPercent = rng.Float64() * 2
		sanity := domain.SanityResult{OK: rng.Intn(2) == 0, Reason: "x"}

		d := e.Decide(context.Background(), "BTCUSDT", m, sanity, rng.Float64()*3)
		assert.GreaterOrEqual(t, d.Confidence, 0)
		assert.LessOrEqual(t, d.Confidence, 100)
	}
}

func TestDecideIdempotent(t *testing.T) {
	e := newTestEngine(nil)

	m := metricsWithRatio(1.35)
	d1 := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 1.0)
	d2 := e.Decide(context.Background(), "BTCUSDT", m, saneResult(), 1.0)

	assert.Equal(t, d1, d2)
}

type stubRefiner struct {
	ref domain.Refinement
	err error
}

func (s *stubRefiner) Refine(_ context.Context, _ domain.Instrument, _ *domain.Metrics, _ domain.SanityResult) (domain.Refinement, error) {
	return s.ref, s.err
}

func TestDecideRefinerPrecedence(t *testing.T) {
	ref := &stubRefiner{ref: domain.Refinement{
		Signal:     domain.SignalSell,
		Confidence: 99, // must be clamped to 95
		Reasoning:  "distribution detected",
		Entry:      101,
		StopLoss:   104,
		TakeProfit: 95,
	}}
	e := newTestEngine(ref)

	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(1.0), saneResult(), 0)

	assert.Equal(t, domain.SignalSell, d.Signal)
	assert.Equal(t, 95, d.Confidence)
	assert.Equal(t, "refined", d.Rule)
	assert.InDelta(t, 101.0, d.Entry, 1e-9)
	assert.InDelta(t, 95.0, d.TakeProfit, 1e-9)
}

func TestDecideRefinerFailureFallsBack(t *testing.T) {
	e := newTestEngine(&stubRefiner{err: errors.New("timeout")})

	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(1.0), saneResult(), 0)

	assert.Equal(t, domain.SignalNeutral, d.Signal)
	assert.NotEqual(t, "refined", d.Rule)
}

func TestDecideRefinerGarbageSignalFallsBack(t *testing.T) {
	e := newTestEngine(&stubRefiner{ref: domain.Refinement{Signal: "MAYBE", Confidence: 70}})

	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(1.0), saneResult(), 0)
	assert.NotEqual(t, "refined", d.Rule)
}

func TestDecideRefinerNotCalledOnOverride(t *testing.T) {
	// The override bypasses the refiner entirely; a refiner returning the
	// opposite direction must not win.
	ref := &stubRefiner{ref: domain.Refinement{Signal: domain.SignalSell, Confidence: 90}}
	e := newTestEngine(ref)

	d := e.Decide(context.Background(), "BTCUSDT", metricsWithRatio(2.0), saneResult(), 0)
	require.Equal(t, domain.SignalBuy, d.Signal)
}
