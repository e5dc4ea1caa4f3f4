package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthlab/bookpulse/internal/domain"
)

func binsOf(volumes map[float64]float64) []PriceBin {
	bins := make([]PriceBin, 0, len(volumes))
	for price, vol := range volumes {
		bins = append(bins, PriceBin{VWAP: price, Volume: vol})
	}
	return bins
}

func TestClassifyZones(t *testing.T) {
	cfg := DefaultZoneConfig()

	// Average bid bin volume is 100; 200 crosses the 1.5x zone threshold and
	// 20 falls under the 0.25x gap threshold.
	bidBins := binsOf(map[float64]float64{
		99.0: 200,
		98.0: 80,
		97.0: 100,
		96.0: 20,
	})
	askBins := binsOf(map[float64]float64{
		101.0: 300,
		102.0: 90,
		103.0: 10,
	})

	zs := ClassifyZones(cfg, bidBins, askBins)

	require.Len(t, zs.Support, 1)
	assert.Equal(t, domain.ZoneSupport, zs.Support[0].Kind)
	assert.InDelta(t, 99.0, zs.Support[0].Price, 1e-9)
	assert.InDelta(t, 2.0, zs.Support[0].Strength, 1e-9)

	require.Len(t, zs.Resistance, 1)
	assert.Equal(t, domain.ZoneResistance, zs.Resistance[0].Kind)
	assert.InDelta(t, 101.0, zs.Resistance[0].Price, 1e-9)

	require.Len(t, zs.Gaps, 2)
}

func TestClassifyZonesOrdering(t *testing.T) {
	// Uniformly high bins on top of a low baseline produce several zones.
	bidBins := binsOf(map[float64]float64{
		99.0: 500, 98.0: 400, 97.0: 10, 96.0: 10, 95.0: 10,
	})
	askBins := binsOf(map[float64]float64{
		101.0: 500, 102.0: 400, 103.0: 10, 104.0: 10, 105.0: 10,
	})

	zs := ClassifyZones(DefaultZoneConfig(), bidBins, askBins)

	require.GreaterOrEqual(t, len(zs.Support), 2)
	for i := 1; i < len(zs.Support); i++ {
		assert.Greater(t, zs.Support[i-1].Price, zs.Support[i].Price,
			"support zones must be sorted nearest-to-market first")
	}

	require.GreaterOrEqual(t, len(zs.Resistance), 2)
	for i := 1; i < len(zs.Resistance); i++ {
		assert.Less(t, zs.Resistance[i-1].Price, zs.Resistance[i].Price,
			"resistance zones must be sorted ascending")
	}
}

func TestClassifyZonesEmptySides(t *testing.T) {
	zs := ClassifyZones(DefaultZoneConfig(), nil, nil)
	assert.Empty(t, zs.Support)
	assert.Empty(t, zs.Resistance)
	assert.Empty(t, zs.Gaps)
}

func TestClassifyZonesUniformBookHasNoZones(t *testing.T) {
	bins := binsOf(map[float64]float64{
		99.0: 100, 98.0: 100, 97.0: 100,
	})
	zs := ClassifyZones(DefaultZoneConfig(), bins, bins)
	assert.Empty(t, zs.Support)
	assert.Empty(t, zs.Resistance)
	assert.Empty(t, zs.Gaps)
}
