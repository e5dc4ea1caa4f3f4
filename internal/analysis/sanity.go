package analysis

import (
	"fmt"
	"log/slog"

	"github.com/depthlab/bookpulse/internal/domain"
)

// SanityConfig configures the structural plausibility checks. The ceilings
// and bounds are empirically chosen and deliberately kept overridable.
type SanityConfig struct {
	// MinZoneCount is the minimum combined support+resistance zone count.
	MinZoneCount int
	// MinRatio / MaxRatio bound the bid/ask depth ratio outside the strong
	// pressure band.
	MinRatio float64
	MaxRatio float64
	// PressureLow / PressureHigh delimit the strong pressure band: any
	// ratio outside [PressureLow, PressureHigh] is a legitimate signal and
	// bypasses the structural checks.
	PressureLow  float64
	PressureHigh float64
	// MinZoneDispersionPercent is the minimum percentage range between the
	// lowest and highest zone price on a side that has two or more zones.
	MinZoneDispersionPercent float64
	// MaxZoneStrength caps how far a zone's volume may exceed the side
	// average before the structure is considered implausible.
	MaxZoneStrength float64
	// MaxGapZoneRatio caps the gap count relative to the total zone count.
	MaxGapZoneRatio float64
}

// DefaultSanityConfig returns the default plausibility thresholds.
func DefaultSanityConfig() SanityConfig {
	return SanityConfig{
		MinZoneCount:             2,
		MinRatio:                 0.01,
		MaxRatio:                 100,
		PressureLow:              0.75,
		PressureHigh:             1.25,
		MinZoneDispersionPercent: 0.1,
		MaxZoneStrength:          15,
		MaxGapZoneRatio:          3,
	}
}

// SanityChecker validates that derived book structure is internally
// plausible. A failing verdict downgrades trust downstream; it never aborts
// the pipeline.
type SanityChecker struct {
	cfg    SanityConfig
	logger *slog.Logger
}

// NewSanityChecker creates a SanityChecker with the given thresholds.
func NewSanityChecker(cfg SanityConfig, logger *slog.Logger) *SanityChecker {
	return &SanityChecker{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "sanity")),
	}
}

// Check runs the ordered plausibility checks over the Metrics block.
func (sc *SanityChecker) Check(m *domain.Metrics) domain.SanityResult {
	cfg := sc.cfg

	// 1. Minimum structural richness. One zone on each side is an
	// acceptable soft pass even below the configured minimum.
	if m.ZoneCount() < cfg.MinZoneCount {
		if len(m.SupportZones) == 0 || len(m.ResistanceZones) == 0 {
			return sc.fail(m, fmt.Sprintf("insufficient zone structure: %d zones (minimum %d)", m.ZoneCount(), cfg.MinZoneCount))
		}
	}

	ratio := m.BidAskRatio
	strongPressure := ratio > cfg.PressureHigh || ratio < cfg.PressureLow

	// 2. Ratio bound. An extreme imbalance inside the strong pressure band
	// is a legitimate signal, not a data anomaly, so the bound is bypassed.
	if !strongPressure && (ratio < cfg.MinRatio || ratio > cfg.MaxRatio) {
		return sc.fail(m, fmt.Sprintf("bid/ask ratio %.4f outside [%.2f, %.2f]", ratio, cfg.MinRatio, cfg.MaxRatio))
	}

	// Strong pressure short-circuits the remaining structural checks.
	if strongPressure {
		sc.logger.Debug("sanity pressure override",
			slog.Float64("bid_ask_ratio", ratio),
		)
		return domain.SanityResult{OK: true, PressureOverride: true}
	}

	// 3. Zone price dispersion per side.
	if reason := checkDispersion(m.SupportZones, cfg.MinZoneDispersionPercent); reason != "" {
		return sc.fail(m, "support "+reason)
	}
	if reason := checkDispersion(m.ResistanceZones, cfg.MinZoneDispersionPercent); reason != "" {
		return sc.fail(m, "resistance "+reason)
	}

	// 4. Volume plausibility.
	for _, z := range append(append([]domain.LiquidityZone{}, m.SupportZones...), m.ResistanceZones...) {
		if z.Strength > cfg.MaxZoneStrength {
			return sc.fail(m, fmt.Sprintf("unrealistic volume spike: zone strength %.1fx exceeds %.0fx ceiling", z.Strength, cfg.MaxZoneStrength))
		}
	}

	// 5. Gap-to-zone ratio.
	if m.ZoneCount() > 0 && float64(len(m.Gaps)) > cfg.MaxGapZoneRatio*float64(m.ZoneCount()) {
		return sc.fail(m, fmt.Sprintf("data quality issue: %d gaps against %d zones", len(m.Gaps), m.ZoneCount()))
	}

	return domain.SanityResult{OK: true}
}

func (sc *SanityChecker) fail(m *domain.Metrics, reason string) domain.SanityResult {
	sc.logger.Debug("sanity check failed",
		slog.String("reason", reason),
		slog.Float64("bid_ask_ratio", m.BidAskRatio),
		slog.Int("zones", m.ZoneCount()),
		slog.Int("gaps", len(m.Gaps)),
	)
	return domain.SanityResult{OK: false, Reason: reason}
}

// checkDispersion verifies that a side with two or more zones spans at least
// minPercent between its lowest and highest zone price.
func checkDispersion(zones []domain.LiquidityZone, minPercent float64) string {
	if len(zones) < 2 {
		return ""
	}
	lo, hi := zones[0].Price, zones[0].Price
	for _, z := range zones[1:] {
		if z.Price < lo {
			lo = z.Price
		}
		if z.Price > hi {
			hi = z.Price
		}
	}
	if lo <= 0 {
		return ""
	}
	if (hi-lo)/lo*100 < minPercent {
		return "zones too tightly packed"
	}
	return ""
}
