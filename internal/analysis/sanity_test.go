package analysis

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/depthlab/bookpulse/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zonesAt(kind domain.ZoneKind, prices ...float64) []domain.LiquidityZone {
	zones := make([]domain.LiquidityZone, len(prices))
	for i, p := range prices {
		zones[i] = domain.LiquidityZone{Kind: kind, Price: p, Volume: 100, Strength: 2}
	}
	return zones
}

func plausibleMetrics(ratio float64) *domain.Metrics {
	return &domain.Metrics{
		BidAskRatio:     ratio,
		SupportZones:    zonesAt(domain.ZoneSupport, 99, 97),
		ResistanceZones: zonesAt(domain.ZoneResistance, 101, 103),
	}
}

func TestSanityPassesPlausibleStructure(t *testing.T) {
	sc := NewSanityChecker(DefaultSanityConfig(), discardLogger())

	res := sc.Check(plausibleMetrics(1.0))
	assert.True(t, res.OK)
	assert.False(t, res.PressureOverride)
	assert.Empty(t, res.Reason)
}

func TestSanityMinimumZoneCount(t *testing.T) {
	sc := NewSanityChecker(DefaultSanityConfig(), discardLogger())

	t.Run("no zones fails", func(t *testing.T) {
		res := sc.Check(&domain.Metrics{BidAskRatio: 1.0})
		assert.False(t, res.OK)
		assert.Contains(t, res.Reason, "insufficient zone structure")
	})

	t.Run("one side only fails", func(t *testing.T) {
		m := &domain.Metrics{
			BidAskRatio:  1.0,
			SupportZones: zonesAt(domain.ZoneSupport, 99),
		}
		res := sc.Check(m)
		assert.False(t, res.OK)
	})

	t.Run("one zone per side is a soft pass", func(t *testing.T) {
		m := &domain.Metrics{
			BidAskRatio:     1.0,
			SupportZones:    zonesAt(domain.ZoneSupport, 99),
			ResistanceZones: zonesAt(domain.ZoneResistance, 101),
		}
		res := sc.Check(m)
		assert.True(t, res.OK)
	})
}

func TestSanityRatioBound(t *testing.T) {
	sc := NewSanityChecker(DefaultSanityConfig(), discardLogger())

	res := sc.Check(plausibleMetrics(0.001))
	// 0.001 is below MinRatio but also inside the strong pressure band, so
	// the bound is bypassed.
	assert.True(t, res.OK)
	assert.True(t, res.PressureOverride)
}

func TestSanityPressureBypassesStructuralChecks(t *testing.T) {
	sc := NewSanityChecker(DefaultSanityConfig(), discardLogger())

	// Zones packed within 0.01%, far under the 0.1% dispersion minimum.
	packed := &domain.Metrics{
		SupportZones:    zonesAt(domain.ZoneSupport, 100.000, 100.005),
		ResistanceZones: zonesAt(domain.ZoneResistance, 101, 103),
	}

	packed.BidAskRatio = 0.5
	res := sc.Check(packed)
	assert.True(t, res.OK, "extreme ratio must bypass the dispersion check")
	assert.True(t, res.PressureOverride)

	packed.BidAskRatio = 1.0
	res = sc.Check(packed)
	assert.False(t, res.OK, "same structure must fail at a balanced ratio")
	assert.Contains(t, res.Reason, "too tightly packed")
}

func TestSanityVolumePlausibility(t *testing.T) {
	sc := NewSanityChecker(DefaultSanityConfig(), discardLogger())

	m := plausibleMetrics(1.0)
	m.ResistanceZones[0].Strength = 20

	res := sc.Check(m)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "unrealistic volume spike")
}

func TestSanityGapZoneRatio(t *testing.T) {
	sc := NewSanityChecker(DefaultSanityConfig(), discardLogger())

	m := plausibleMetrics(1.0)
	for i := 0; i < 13; i++ { // 13 gaps against 4 zones exceeds the 3x cap
		m.Gaps = append(m.Gaps, domain.LiquidityGap{Price: 90 + float64(i)})
	}

	res := sc.Check(m)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "data quality issue")
}
