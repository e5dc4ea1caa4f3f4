// Package analysis derives structural liquidity features from an order book
// snapshot: price-bucket clusters, support/resistance zones, liquidity gaps,
// anomalously large orders, and the aggregate Metrics block consumed by the
// signal policy.
package analysis

import (
	"math"
	"sort"

	"github.com/depthlab/bookpulse/internal/domain"
)

// ClusterConfig configures price-bucket clustering.
type ClusterConfig struct {
	// BaseBinSizePercent is the bin width as a percentage of the current
	// price before volatility scaling.
	BaseBinSizePercent float64
	// MinVolatilityScale / MaxVolatilityScale clamp the volatility factor
	// applied to BaseBinSizePercent.
	MinVolatilityScale float64
	MaxVolatilityScale float64
}

// DefaultClusterConfig returns the default clustering parameters.
func DefaultClusterConfig() ClusterConfig {
	return ClusterConfig{
		BaseBinSizePercent: 0.2,
		MinVolatilityScale: 0.5,
		MaxVolatilityScale: 3.0,
	}
}

// PriceBin is one fixed-width price bucket. Bins are created fresh per
// analysis call and never persisted.
type PriceBin struct {
	Key    int64
	Volume float64
	// VWAP is the volume-weighted average price of the member levels.
	VWAP   float64
	Levels []domain.PriceLevel
}

// BinWidth computes the bucket width for the given current price and
// optional short-horizon volatility (percent per hour; pass 0 when unknown).
func BinWidth(cfg ClusterConfig, currentPrice, volatility float64) float64 {
	pct := cfg.BaseBinSizePercent
	if volatility > 0 {
		scale := volatility
		if scale < cfg.MinVolatilityScale {
			scale = cfg.MinVolatilityScale
		}
		if scale > cfg.MaxVolatilityScale {
			scale = cfg.MaxVolatilityScale
		}
		pct *= scale
	}
	return currentPrice * pct / 100
}

// ClusterSide groups one side of the ladder into fixed-width bins. The total
// volume across all returned bins equals the total input volume (lossless
// aggregation). Bins are returned ordered by key ascending.
func ClusterSide(levels []domain.PriceLevel, binWidth float64) []PriceBin {
	if binWidth <= 0 || len(levels) == 0 {
		return nil
	}

	byKey := make(map[int64]*PriceBin, len(levels))
	order := make([]int64, 0, len(levels))
	for _, l := range levels {
		key := int64(math.Floor(l.Price / binWidth))
		bin, ok := byKey[key]
		if !ok {
			bin = &PriceBin{Key: key}
			byKey[key] = bin
			order = append(order, key)
		}
		bin.Volume += l.Size
		bin.Levels = append(bin.Levels, l)
	}

	bins := make([]PriceBin, 0, len(byKey))
	for _, key := range order {
		bin := byKey[key]
		if bin.Volume > 0 {
			var weighted float64
			for _, l := range bin.Levels {
				weighted += l.Price * l.Size
			}
			bin.VWAP = weighted / bin.Volume
		} else if len(bin.Levels) > 0 {
			// All-zero-size bins keep a plain average so the gap scan still
			// has a representative price.
			var sum float64
			for _, l := range bin.Levels {
				sum += l.Price
			}
			bin.VWAP = sum / float64(len(bin.Levels))
		}
		bins = append(bins, *bin)
	}

	// Insertion order follows the ladder; normalize to ascending key so
	// downstream consumers see a deterministic layout.
	sort.Slice(bins, func(i, j int) bool { return bins[i].Key < bins[j].Key })
	return bins
}

// TotalVolume sums the accumulated volume across bins.
func TotalVolume(bins []PriceBin) float64 {
	var total float64
	for _, b := range bins {
		total += b.Volume
	}
	return total
}
