package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func TestBuildFallbackRulesOrder(t *testing.T) {
	rules := buildFallbackRules(DefaultPolicyConfig())

	require.Len(t, rules, 4)
	assert.Equal(t, "ratio_band_1pct", rules[0].name)
	assert.Equal(t, "zone_asymmetry", rules[1].name)
	assert.Equal(t, "ratio_band_10pct", rules[2].name)
	assert.Equal(t, "ratio_band_30pct", rules[3].name)
}

func TestFallbackConfidencesAreLow(t *testing.T) {
	for _, r := range buildFallbackRules(DefaultPolicyConfig()) {
		assert.GreaterOrEqual(t, r.confidence, 51, r.name)
		assert.LessOrEqual(t, r.confidence, 65, r.name)
	}
}

func TestRatioBandRule(t *testing.T) {
	rule := ratioBandRule(FallbackBand{Name: "b", RatioDelta: 0.10, Confidence: 60})

	cases := []struct {
		ratio float64
		want  domain.Signal
		fires bool
	}{
		{1.15, domain.SignalBuy, true},
		{1.10, domain.SignalBuy, true},
		{1.05, domain.SignalNeutral, false},
		{1.00, domain.SignalNeutral, false},
		{0.95, domain.SignalNeutral, false},
		{0.90, domain.SignalSell, true},
		{0.80, domain.SignalSell, true},
		{0, domain.SignalNeutral, false},
	}
	for _, tc := range cases {
		sig, ok := rule.check(&domain.Metrics{BidAskRatio: tc.ratio})
		assert.Equal(t, tc.fires, ok, "ratio %.2f", tc.ratio)
		assert.Equal(t, tc.want, sig, "ratio %.2f", tc.ratio)
	}
}

func TestZoneAsymmetryRule(t *testing.T) {
	rules := buildFallbackRules(DefaultPolicyConfig())
	asym := rules[1]

	t.Run("more support leans buy", func(t *testing.T) {
		m := &domain.Metrics{
			SupportZones:    make([]domain.LiquidityZone, 3),
			ResistanceZones: make([]domain.LiquidityZone, 1),
		}
		sig, ok := asym.check(m)
		assert.True(t, ok)
		assert.Equal(t, domain.SignalBuy, sig)
	})

	t.Run("more resistance leans sell", func(t *testing.T) {
		m := &domain.Metrics{
			ResistanceZones: make([]domain.LiquidityZone, 2),
		}
		sig, ok := asym.check(m)
		assert.True(t, ok)
		assert.Equal(t, domain.SignalSell, sig)
	})

	t.Run("balanced structure does not fire", func(t *testing.T) {
		m := &domain.Metrics{
			SupportZones:    make([]domain.LiquidityZone, 2),
			ResistanceZones: make([]domain.LiquidityZone, 2),
		}
		_, ok := asym.check(m)
		assert.False(t, ok)
	})
}
