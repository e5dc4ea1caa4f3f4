package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func flatLadder(start float64, n int, size float64) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, n)
	for i := range levels {
		levels[i] = domain.PriceLevel{Price: start + float64(i), Size: size}
	}
	return levels
}

func TestDetectLargeOrdersLocalSpike(t *testing.T) {
	levels := flatLadder(100, 10, 50)
	levels[4].Size = 200 // 4x the neighbor mean of 50

	orders := DetectLargeOrders(DefaultLargeOrderConfig(), domain.SideBid, levels)

	require.Len(t, orders, 1)
	assert.Equal(t, domain.DetectVolumeSpike, orders[0].Technique)
	assert.Equal(t, domain.SideBid, orders[0].Side)
	assert.InDelta(t, 104.0, orders[0].Price, 1e-9)
	assert.InDelta(t, 4.0, orders[0].Ratio, 1e-9)
}

func TestDetectLargeOrdersEndsAreSkipped(t *testing.T) {
	levels := flatLadder(100, 10, 50)
	levels[0].Size = 10_000
	levels[9].Size = 10_000

	cfg := DefaultLargeOrderConfig()
	cfg.MinLevelsForStats = 100 // keep the statistical pass out of this test

	orders := DetectLargeOrders(cfg, domain.SideAsk, levels)
	assert.Empty(t, orders, "extreme ends have no full neighborhood")
}

func TestDetectLargeOrdersStatisticalOutlier(t *testing.T) {
	// 30 levels so the statistical pass runs. The outliers guard each other
	// as inflated neighbors, defeating the local-spike technique, and the
	// cluster is wider than the trimmed tail so it survives trimming.
	levels := flatLadder(100, 30, 50)
	levels[14].Size = 400
	levels[15].Size = 500
	levels[16].Size = 500
	levels[17].Size = 400

	orders := DetectLargeOrders(DefaultLargeOrderConfig(), domain.SideBid, levels)
	require.NotEmpty(t, orders)

	var found *domain.LargeOrder
	for i := range orders {
		if orders[i].Price == 115 {
			found = &orders[i]
		}
	}
	require.NotNil(t, found, "guarded outlier must be caught statistically")
	assert.Equal(t, domain.DetectStatisticalOutlier, found.Technique)
	assert.Greater(t, found.ZScore, 1.5)
}

func TestDetectLargeOrdersSkipsStatsOnShortLadder(t *testing.T) {
	levels := flatLadder(100, 10, 50)
	levels[5].Size = 55 // mild bump, below the local-spike threshold

	orders := DetectLargeOrders(DefaultLargeOrderConfig(), domain.SideBid, levels)
	assert.Empty(t, orders)
}

func TestDetectLargeOrdersTruncationAndOrder(t *testing.T) {
	levels := flatLadder(100, 40, 10)
	// 14 isolated spikes with distinct volumes.
	for i := 0; i < 14; i++ {
		levels[1+i*2].Size = 1000 + float64(i)*100
	}

	orders := DetectLargeOrders(DefaultLargeOrderConfig(), domain.SideAsk, levels)

	require.Len(t, orders, 10)
	for i := 1; i < len(orders); i++ {
		assert.GreaterOrEqual(t, orders[i-1].Volume, orders[i].Volume,
			"orders must be sorted by volume descending")
	}
}

func TestDetectLargeOrdersDedupByPrice(t *testing.T) {
	levels := flatLadder(100, 30, 50)
	levels[10].Size = 600 // flagged by both techniques, spike tag wins

	orders := DetectLargeOrders(DefaultLargeOrderConfig(), domain.SideBid, levels)

	count := 0
	for _, o := range orders {
		if o.Price == 110 {
			count++
			assert.Equal(t, domain.DetectVolumeSpike, o.Technique)
		}
	}
	assert.Equal(t, 1, count)
}

func TestTrimmedStats(t *testing.T) {
	// 20 levels: trimming 10% removes the 2 extreme tails (the 0 and the
	// 1000), leaving eighteen 50s.
	levels := flatLadder(100, 18, 50)
	levels = append(levels,
		domain.PriceLevel{Price: 118, Size: 0},
		domain.PriceLevel{Price: 119, Size: 1000},
	)

	mean, stddev := trimmedStats(levels, 0.10)
	assert.InDelta(t, 50.0, mean, 1e-9)
	assert.InDelta(t, 0.0, stddev, 1e-9)
}
