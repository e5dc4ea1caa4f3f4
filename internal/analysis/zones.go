package analysis

import (
	"sort"

	"github.com/depthlab/bookpulse/internal/domain"
)

// ZoneConfig configures the support/resistance/gap classifier. The
// multipliers are empirically chosen and deliberately kept overridable.
type ZoneConfig struct {
	// ClusterMultiplier: a bin qualifies as a zone when its volume exceeds
	// this multiple of the side's average bin volume.
	ClusterMultiplier float64
	// GapMultiplier: a bin qualifies as a gap when its volume falls below
	// this multiple of the side's average bin volume.
	GapMultiplier float64
}

// DefaultZoneConfig returns the default classifier thresholds.
func DefaultZoneConfig() ZoneConfig {
	return ZoneConfig{
		ClusterMultiplier: 1.5,
		GapMultiplier:     0.25,
	}
}

// ZoneSet is the classified structure of one analysis pass.
type ZoneSet struct {
	// Support zones sorted by price descending (nearest to market first).
	Support []domain.LiquidityZone
	// Resistance zones sorted by price ascending.
	Resistance []domain.LiquidityZone
	// Gaps from both sides, in bin order.
	Gaps []domain.LiquidityGap
}

// ClassifyZones derives support zones from the bid bins, resistance zones
// from the ask bins, and liquidity gaps from both, using thresholds relative
// to each side's average bin volume.
func ClassifyZones(cfg ZoneConfig, bidBins, askBins []PriceBin) ZoneSet {
	var zs ZoneSet

	bidAvg := averageBinVolume(bidBins)
	askAvg := averageBinVolume(askBins)

	for _, b := range bidBins {
		if bidAvg > 0 && b.Volume > cfg.ClusterMultiplier*bidAvg {
			zs.Support = append(zs.Support, domain.LiquidityZone{
				Kind:     domain.ZoneSupport,
				Price:    b.VWAP,
				Volume:   b.Volume,
				Strength: b.Volume / bidAvg,
			})
		}
		if b.Volume < cfg.GapMultiplier*bidAvg {
			zs.Gaps = append(zs.Gaps, domain.LiquidityGap{Price: b.VWAP})
		}
	}

	for _, b := range askBins {
		if askAvg > 0 && b.Volume > cfg.ClusterMultiplier*askAvg {
			zs.Resistance = append(zs.Resistance, domain.LiquidityZone{
				Kind:     domain.ZoneResistance,
				Price:    b.VWAP,
				Volume:   b.Volume,
				Strength: b.Volume / askAvg,
			})
		}
		if b.Volume < cfg.GapMultiplier*askAvg {
			zs.Gaps = append(zs.Gaps, domain.LiquidityGap{Price: b.VWAP})
		}
	}

	sort.Slice(zs.Support, func(i, j int) bool { return zs.Support[i].Price > zs.Support[j].Price })
	sort.Slice(zs.Resistance, func(i, j int) bool { return zs.Resistance[i].Price < zs.Resistance[j].Price })

	return zs
}

func averageBinVolume(bins []PriceBin) float64 {
	if len(bins) == 0 {
		return 0
	}
	return TotalVolume(bins) / float64(len(bins))
}
