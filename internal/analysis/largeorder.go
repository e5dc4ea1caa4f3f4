package analysis

import (
	"math"
	"sort"

	"github.com/depthlab/bookpulse/internal/domain"
)

// LargeOrderConfig configures the two anomalous-order detection techniques.
type LargeOrderConfig struct {
	// SpikeMultiplier: an interior level is a local spike when its volume
	// exceeds this multiple of the mean of its two immediate neighbors.
	SpikeMultiplier float64
	// ZScoreThreshold flags statistical outliers against the trimmed
	// book-wide distribution.
	ZScoreThreshold float64
	// TrimFraction is the share of levels discarded on each tail (by
	// volume) before computing the reference mean and deviation.
	TrimFraction float64
	// MinLevelsForStats is the minimum ladder length required for the
	// statistical technique to run at all.
	MinLevelsForStats int
	// MaxPerSide bounds how many flagged orders are retained per side.
	MaxPerSide int
}

// DefaultLargeOrderConfig returns the default detector parameters.
func DefaultLargeOrderConfig() LargeOrderConfig {
	return LargeOrderConfig{
		SpikeMultiplier:   1.5,
		ZScoreThreshold:   1.5,
		TrimFraction:      0.10,
		MinLevelsForStats: 20,
		MaxPerSide:        10,
	}
}

// DetectLargeOrders runs both detection techniques over one side of the
// ladder and returns the union, deduplicated by price, sorted by volume
// descending, and truncated to MaxPerSide.
func DetectLargeOrders(cfg LargeOrderConfig, side domain.Side, levels []domain.PriceLevel) []domain.LargeOrder {
	flagged := make(map[float64]domain.LargeOrder)

	// Technique 1: local volume spikes against immediate neighbors. The two
	// extreme ends have no full neighborhood and are skipped.
	for i := 1; i < len(levels)-1; i++ {
		localMean := (levels[i-1].Size + levels[i+1].Size) / 2
		if localMean <= 0 {
			continue
		}
		if levels[i].Size > cfg.SpikeMultiplier*localMean {
			flagged[levels[i].Price] = domain.LargeOrder{
				Side:      side,
				Price:     levels[i].Price,
				Volume:    levels[i].Size,
				Ratio:     levels[i].Size / localMean,
				Technique: domain.DetectVolumeSpike,
			}
		}
	}

	// Technique 2: z-score against the trimmed distribution. Levels already
	// flagged as spikes keep their first tag.
	if len(levels) >= cfg.MinLevelsForStats {
		mean, stddev := trimmedStats(levels, cfg.TrimFraction)
		if stddev > 0 {
			for _, l := range levels {
				if _, seen := flagged[l.Price]; seen {
					continue
				}
				z := (l.Size - mean) / stddev
				if z > cfg.ZScoreThreshold {
					flagged[l.Price] = domain.LargeOrder{
						Side:      side,
						Price:     l.Price,
						Volume:    l.Size,
						Ratio:     l.Size / mean,
						Technique: domain.DetectStatisticalOutlier,
						ZScore:    z,
					}
				}
			}
		}
	}

	out := make([]domain.LargeOrder, 0, len(flagged))
	for _, o := range flagged {
		out = append(out, o)
	}
	// Tie-break on price so equal volumes keep a stable order across runs.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		return out[i].Price < out[j].Price
	})
	if len(out) > cfg.MaxPerSide {
		out = out[:cfg.MaxPerSide]
	}
	return out
}

// trimmedStats discards the extreme trimFraction of levels on each tail (by
// volume) and returns the mean and population standard deviation of the
// remainder.
func trimmedStats(levels []domain.PriceLevel, trimFraction float64) (mean, stddev float64) {
	volumes := make([]float64, len(levels))
	for i, l := range levels {
		volumes[i] = l.Size
	}
	sort.Float64s(volumes)

	trim := int(float64(len(volumes)) * trimFraction)
	trimmed := volumes[trim : len(volumes)-trim]
	if len(trimmed) == 0 {
		return 0, 0
	}

	var sum float64
	for _, v := range trimmed {
		sum += v
	}
	mean = sum / float64(len(trimmed))

	var sq float64
	for _, v := range trimmed {
		d := v - mean
		sq += d * d
	}
	stddev = math.Sqrt(sq / float64(len(trimmed)))
	return mean, stddev
}
