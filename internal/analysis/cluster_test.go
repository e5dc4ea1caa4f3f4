package analysis

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func TestBinWidth(t *testing.T) {
	cfg := DefaultClusterConfig()

	t.Run("no volatility uses base percent", func(t *testing.T) {
		assert.InDelta(t, 100*0.2/100, BinWidth(cfg, 100, 0), 1e-12)
	})

	t.Run("volatility scales width", func(t *testing.T) {
		assert.InDelta(t, 100*0.2*2.0/100, BinWidth(cfg, 100, 2.0), 1e-12)
	})

	t.Run("volatility clamped to bounds", func(t *testing.T) {
		low := BinWidth(cfg, 100, 0.1)
		assert.InDelta(t, 100*0.2*0.5/100, low, 1e-12)

		high := BinWidth(cfg, 100, 50)
		assert.InDelta(t, 100*0.2*3.0/100, high, 1e-12)
	})
}

func TestClusterSideConservesVolume(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 50; trial++ {
		n := 5 + rng.Intn(200)
		levels := make([]domain.PriceLevel, n)
		var total float64
		for i := range levels {
			levels[i] = domain.PriceLevel{
				Price: 50 + rng.Float64()*100,
				Size:  rng.Float64() * 1000,
			}
			total += levels[i].Size
		}

		bins := ClusterSide(levels, BinWidth(DefaultClusterConfig(), 100, rng.Float64()*4))
		assert.InDelta(t, total, TotalVolume(bins), total*1e-9)
	}
}

func TestClusterSideGrouping(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 100.05, Size: 10},
		{Price: 100.15, Size: 20},
		{Price: 100.45, Size: 5},
	}

	bins := ClusterSide(levels, 0.2)
	require.Len(t, bins, 2)

	// First two levels share floor(price/0.2) = 500.
	assert.Equal(t, int64(500), bins[0].Key)
	assert.InDelta(t, 30.0, bins[0].Volume, 1e-12)
	wantVWAP := (100.05*10 + 100.15*20) / 30
	assert.InDelta(t, wantVWAP, bins[0].VWAP, 1e-12)

	assert.Equal(t, int64(502), bins[1].Key)
	assert.InDelta(t, 5.0, bins[1].Volume, 1e-12)
}

func TestClusterSideSortedByKey(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 105, Size: 1},
		{Price: 95, Size: 1},
		{Price: 101, Size: 1},
	}
	bins := ClusterSide(levels, 1.0)
	for i := 1; i < len(bins); i++ {
		assert.Less(t, bins[i-1].Key, bins[i].Key)
	}
}

func TestClusterSideDegenerate(t *testing.T) {
	assert.Nil(t, ClusterSide(nil, 1.0))
	assert.Nil(t, ClusterSide([]domain.PriceLevel{{Price: 1, Size: 1}}, 0))
}

func TestClusterSideZeroSizeLevels(t *testing.T) {
	levels := []domain.PriceLevel{
		{Price: 100.0, Size: 0},
		{Price: 100.1, Size: 0},
	}
	bins := ClusterSide(levels, 0.5)
	require.Len(t, bins, 1)
	assert.Zero(t, bins[0].Volume)
	assert.False(t, math.IsNaN(bins[0].VWAP))
	assert.InDelta(t, 100.05, bins[0].VWAP, 1e-9)
}
