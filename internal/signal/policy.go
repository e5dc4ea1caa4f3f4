// Package signal implements the tiered decision policy that turns derived
// order-book structure into a directional trading signal, plus the producer
// orchestration and the cross-producer confidence normalizer.
package signal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/depthlab/bookpulse/internal/analysis"
	"github.com/depthlab/bookpulse/internal/domain"
)

// PolicyConfig holds every tunable of the decision policy. The thresholds are
// empirically chosen constants carried over as named, overridable values.
type PolicyConfig struct {
	// Extreme-ratio override band. Ratios outside [PressureLow,
	// PressureHigh] bypass sanity and every later rule.
	PressureLow  float64
	PressureHigh float64
	// Override confidence scales from OverrideMinConfidence to
	// OverrideMaxConfidence across OverrideBuySpan (ratio units above
	// PressureHigh) or OverrideSellSpan (below PressureLow).
	OverrideMinConfidence int
	OverrideMaxConfidence int
	OverrideBuySpan       float64
	OverrideSellSpan      float64

	// Directional ratio thresholds, with tightened variants applied when
	// short-horizon volatility exceeds HighVolatilityThreshold (%/hour).
	StrongBuyRatio           float64
	StrongSellRatio          float64
	ModerateBuyRatio         float64
	ModerateSellRatio        float64
	HighVolStrongBuyRatio    float64
	HighVolStrongSellRatio   float64
	HighVolModerateBuyRatio  float64
	HighVolModerateSellRatio float64
	HighVolatilityThreshold  float64

	// MediumDepth is the quote-currency depth below which the opposite side
	// counts as thin for the strong-threshold rule.
	MediumDepth float64

	HighConfidence    int
	MediumConfidence  int
	NeutralConfidence int

	// Institutional-order bias.
	InstitutionalMajorityPercent float64
	InstitutionalBoost           int

	// Zone-strength confidence adjustment.
	ZoneStrengthBoostThreshold float64
	ZoneStrongBoost            int
	ZoneWeakBoost              int

	// Spread and liquidity-score adjustments.
	WideSpreadPercent       float64
	WideSpreadConfidenceCap int
	LowLiquidityScore       float64
	HighLiquidityScore      float64
	LowLiquidityPenalty     int
	HighLiquidityBonus      int

	// Refiner output clamp.
	RefinerMinConfidence int
	RefinerMaxConfidence int
	RefinerTimeout       time.Duration

	// Cascading fallback, evaluated top-down with early exit when the
	// signal is still NEUTRAL after every rule above.
	FallbackBands           []FallbackBand
	ZoneAsymmetryConfidence int

	Levels analysis.LevelConfig
}

// FallbackBand is one ratio band of the emergency fallback cascade.
type FallbackBand struct {
	Name       string
	RatioDelta float64
	Confidence int
}

// DefaultPolicyConfig returns the default policy thresholds.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		PressureLow:           0.75,
		PressureHigh:          1.25,
		OverrideMinConfidence: 80,
		OverrideMaxConfidence: 95,
		OverrideBuySpan:       1.0,
		OverrideSellSpan:      0.75,

		StrongBuyRatio:           1.8,
		StrongSellRatio:          0.55,
		ModerateBuyRatio:         1.3,
		ModerateSellRatio:        0.77,
		HighVolStrongBuyRatio:    1.6,
		HighVolStrongSellRatio:   0.65,
		HighVolModerateBuyRatio:  1.15,
		HighVolModerateSellRatio: 0.85,
		HighVolatilityThreshold:  1.5,

		MediumDepth: 100_000,

		HighConfidence:    88,
		MediumConfidence:  65,
		NeutralConfidence: 50,

		InstitutionalMajorityPercent: 5,
		InstitutionalBoost:           5,

		ZoneStrengthBoostThreshold: 2.5,
		ZoneStrongBoost:            10,
		ZoneWeakBoost:              3,

		WideSpreadPercent:       0.5,
		WideSpreadConfidenceCap: 60,
		LowLiquidityScore:       30,
		HighLiquidityScore:      70,
		LowLiquidityPenalty:     10,
		HighLiquidityBonus:      5,

		RefinerMinConfidence: 50,
		RefinerMaxConfidence: 95,
		RefinerTimeout:       20 * time.Second,

		FallbackBands: []FallbackBand{
			{Name: "ratio_band_1pct", RatioDelta: 0.01, Confidence: 55},
			{Name: "ratio_band_10pct", RatioDelta: 0.10, Confidence: 60},
			{Name: "ratio_band_30pct", RatioDelta: 0.30, Confidence: 65},
		},
		ZoneAsymmetryConfidence: 52,

		Levels: analysis.LevelConfig{
			EntryOffsetPercent:  0.1,
			StopFallbackPercent: 1.0,
		},
	}
}

// Decision is the outcome of one policy evaluation.
type Decision struct {
	Signal      domain.Signal
	Confidence  int
	Explanation string
	Entry       float64
	StopLoss    float64
	// TakeProfit is only ever supplied by the refiner; the rule-based path
	// suggests entry and stop levels but no target.
	TakeProfit float64
	// Rule names the policy tier that settled the direction, for
	// diagnostics and audit.
	Rule string
}

// Engine is the state-free decision function. An optional Refiner may be
// attached; every refiner failure falls through silently to the rule-based
// path, so the deterministic path is always available.
type Engine struct {
	cfg      PolicyConfig
	refiner  domain.Refiner
	fallback []fallbackRule
	logger   *slog.Logger
}

// NewEngine creates a policy Engine. refiner may be nil.
func NewEngine(cfg PolicyConfig, refiner domain.Refiner, logger *slog.Logger) *Engine {
	e := &Engine{
		cfg:     cfg,
		refiner: refiner,
		logger:  logger.With(slog.String("component", "policy")),
	}
	e.fallback = buildFallbackRules(cfg)
	return e
}

// Decide evaluates the tiered policy over the Metrics block. volatility is
// the short-horizon figure in percent per hour (0 when unknown). The first
// matching tier wins; later tiers only adjust confidence.
func (e *Engine) Decide(ctx context.Context, instrument domain.Instrument, m *domain.Metrics, sanity domain.SanityResult, volatility float64) Decision {
	ratio := m.BidAskRatio

	// 1. Extreme-ratio override: bypasses sanity and every later rule.
	if ratio > e.cfg.PressureHigh {
		conf := e.overrideConfidence((ratio - e.cfg.PressureHigh) / e.cfg.OverrideBuySpan)
		return e.finish(instrument, m, Decision{
			Signal:      domain.SignalBuy,
			Confidence:  conf,
			Explanation: fmt.Sprintf("extreme buy pressure: bid/ask ratio %.2f above %.2f", ratio, e.cfg.PressureHigh),
			Rule:        "extreme_ratio_override",
		})
	}
	// A zero ratio carries two meanings: the division sentinel when the ask
	// side is empty, and the genuine value when live asks face zero bid
	// volume. Only the latter is extreme sell pressure.
	if ratio < e.cfg.PressureLow && (ratio > 0 || m.AskDepth > 0) {
		conf := e.overrideConfidence((e.cfg.PressureLow - ratio) / e.cfg.OverrideSellSpan)
		return e.finish(instrument, m, Decision{
			Signal:      domain.SignalSell,
			Confidence:  conf,
			Explanation: fmt.Sprintf("extreme sell pressure: bid/ask ratio %.2f below %.2f", ratio, e.cfg.PressureLow),
			Rule:        "extreme_ratio_override",
		})
	}

	// 2. Failed sanity: structure is not trusted for direction.
	if !sanity.OK {
		return e.finish(instrument, m, Decision{
			Signal:      domain.SignalNeutral,
			Confidence:  e.cfg.NeutralConfidence,
			Explanation: "sanity check failed: " + sanity.Reason,
			Rule:        "sanity_failed",
		})
	}

	// 3. Optional external refinement. Any failure falls through silently.
	if e.refiner != nil {
		if d, ok := e.tryRefiner(ctx, instrument, m, sanity); ok {
			return e.finish(instrument, m, d)
		}
	}

	return e.finish(instrument, m, e.ruleBased(m, volatility))
}

// ruleBased runs the deterministic tiers 4-8. It is exercised directly by
// tests and used as the fallback whenever no refiner is configured or the
// refinement call fails.
func (e *Engine) ruleBased(m *domain.Metrics, volatility float64) Decision {
	cfg := e.cfg
	ratio := m.BidAskRatio

	strongBuy, strongSell := cfg.StrongBuyRatio, cfg.StrongSellRatio
	moderateBuy, moderateSell := cfg.ModerateBuyRatio, cfg.ModerateSellRatio
	highVol := volatility > cfg.HighVolatilityThreshold
	if highVol {
		strongBuy, strongSell = cfg.HighVolStrongBuyRatio, cfg.HighVolStrongSellRatio
		moderateBuy, moderateSell = cfg.HighVolModerateBuyRatio, cfg.HighVolModerateSellRatio
	}

	sig := domain.SignalNeutral
	conf := cfg.NeutralConfidence
	rule := "none"
	var parts []string

	// 4. Directional ratio thresholds.
	switch {
	case ratio >= strongBuy && m.AskDepth < cfg.MediumDepth:
		sig, conf, rule = domain.SignalBuy, cfg.HighConfidence, "strong_ratio"
		parts = append(parts, fmt.Sprintf("strong buy: ratio %.2f with thin ask depth %.0f", ratio, m.AskDepth))
	case ratio >= moderateBuy:
		sig, conf, rule = domain.SignalBuy, cfg.MediumConfidence, "moderate_ratio"
		parts = append(parts, fmt.Sprintf("moderate buy: ratio %.2f", ratio))
	case ratio > 0 && ratio <= strongSell && m.BidDepth < cfg.MediumDepth:
		sig, conf, rule = domain.SignalSell, cfg.HighConfidence, "strong_ratio"
		parts = append(parts, fmt.Sprintf("strong sell: ratio %.2f with thin bid depth %.0f", ratio, m.BidDepth))
	case ratio > 0 && ratio <= moderateSell:
		sig, conf, rule = domain.SignalSell, cfg.MediumConfidence, "moderate_ratio"
		parts = append(parts, fmt.Sprintf("moderate sell: ratio %.2f", ratio))
	}
	if highVol && rule != "none" {
		parts = append(parts, fmt.Sprintf("thresholds tightened for volatility %.2f%%/h", volatility))
	}

	// 5. Institutional-order bias.
	if side, detail, ok := institutionalBias(m, cfg.InstitutionalMajorityPercent); ok {
		switch {
		case sig == domain.SignalNeutral:
			sig, conf, rule = side, cfg.MediumConfidence, "institutional_bias"
			parts = append(parts, detail)
		case sig == side:
			conf += cfg.InstitutionalBoost
			parts = append(parts, detail)
		}
	}

	// 6. Zone-strength confidence adjustment.
	if sig == domain.SignalBuy && len(m.SupportZones) > 0 {
		if avgStrength(m.SupportZones) > cfg.ZoneStrengthBoostThreshold {
			conf += cfg.ZoneStrongBoost
			parts = append(parts, "strong support zones")
		} else {
			conf += cfg.ZoneWeakBoost
		}
	} else if sig == domain.SignalSell && len(m.ResistanceZones) > 0 {
		if avgStrength(m.ResistanceZones) > cfg.ZoneStrengthBoostThreshold {
			conf += cfg.ZoneStrongBoost
			parts = append(parts, "strong resistance zones")
		} else {
			conf += cfg.ZoneWeakBoost
		}
	}

	// 7. Spread and liquidity-score adjustments.
	wideSpread := m.SpreadPercent > cfg.WideSpreadPercent
	if wideSpread {
		if sig != domain.SignalNeutral && conf > cfg.WideSpreadConfidenceCap {
			conf = cfg.WideSpreadConfidenceCap
			parts = append(parts, fmt.Sprintf("confidence capped: spread %.3f%% is wide", m.SpreadPercent))
		} else if sig == domain.SignalNeutral {
			parts = append(parts, fmt.Sprintf("neutral: spread %.3f%% too wide to trade", m.SpreadPercent))
			rule = "wide_spread"
		}
	}
	if m.LiquidityScore < cfg.LowLiquidityScore {
		conf -= cfg.LowLiquidityPenalty
		parts = append(parts, fmt.Sprintf("low liquidity score %.0f", m.LiquidityScore))
	} else if m.LiquidityScore > cfg.HighLiquidityScore {
		conf += cfg.HighLiquidityBonus
	}

	// 8. Cascading emergency fallback, only when still NEUTRAL and the
	// spread did not force neutrality.
	if sig == domain.SignalNeutral && !wideSpread {
		for _, fr := range e.fallback {
			if fbSig, ok := fr.check(m); ok {
				sig, conf, rule = fbSig, fr.confidence, "fallback_"+fr.name
				parts = append(parts, fmt.Sprintf("fallback %s: ratio %.3f", fr.name, ratio))
				break
			}
		}
	}

	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("balanced book: ratio %.2f, no dominant structure", ratio))
	}

	return Decision{
		Signal:      sig,
		Confidence:  conf,
		Explanation: strings.Join(parts, "; "),
		Rule:        rule,
	}
}

// tryRefiner invokes the optional LLM refinement with a timeout. The bool
// result reports whether the refinement should take precedence; every
// failure path returns false so the caller falls back to rule-based logic.
func (e *Engine) tryRefiner(ctx context.Context, instrument domain.Instrument, m *domain.Metrics, sanity domain.SanityResult) (Decision, bool) {
	rctx, cancel := context.WithTimeout(ctx, e.cfg.RefinerTimeout)
	defer cancel()

	ref, err := e.refiner.Refine(rctx, instrument, m, sanity)
	if err != nil {
		e.logger.Warn("refinement failed, falling back to rule-based policy",
			slog.String("instrument", instrument.String()),
			slog.String("error", err.Error()),
		)
		return Decision{}, false
	}
	switch ref.Signal {
	case domain.SignalBuy, domain.SignalSell, domain.SignalNeutral:
	default:
		e.logger.Warn("refinement returned unknown signal, falling back",
			slog.String("signal", string(ref.Signal)),
		)
		return Decision{}, false
	}

	conf := clampInt(ref.Confidence, e.cfg.RefinerMinConfidence, e.cfg.RefinerMaxConfidence)
	d := Decision{
		Signal:      ref.Signal,
		Confidence:  conf,
		Explanation: ref.Reasoning,
		Entry:       ref.Entry,
		StopLoss:    ref.StopLoss,
		TakeProfit:  ref.TakeProfit,
		Rule:        "refined",
	}
	if d.Explanation == "" {
		d.Explanation = "refined signal"
	}
	return d, true
}

// finish fills suggested price levels for directional signals, clamps the
// confidence, and emits the diagnostic event naming the rule that fired.
func (e *Engine) finish(instrument domain.Instrument, m *domain.Metrics, d Decision) Decision {
	d.Confidence = clampInt(d.Confidence, 0, 100)
	if d.Signal != domain.SignalNeutral && d.Entry == 0 {
		d.Entry, d.StopLoss = analysis.SuggestLevels(m, d.Signal, e.cfg.Levels)
	}
	if d.Signal == domain.SignalNeutral {
		d.Entry, d.StopLoss, d.TakeProfit = 0, 0, 0
	}
	e.logger.Debug("policy decision",
		slog.String("instrument", instrument.String()),
		slog.String("signal", string(d.Signal)),
		slog.Int("confidence", d.Confidence),
		slog.String("rule", d.Rule),
		slog.Float64("bid_ask_ratio", m.BidAskRatio),
	)
	return d
}

func (e *Engine) overrideConfidence(frac float64) int {
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	span := float64(e.cfg.OverrideMaxConfidence - e.cfg.OverrideMinConfidence)
	return e.cfg.OverrideMinConfidence + int(frac*span+0.5)
}

// institutionalBias reports a directional bias when large orders sit on only
// one side, or when both sides have them but one holds at least
// majorityPercent more flagged volume.
func institutionalBias(m *domain.Metrics, majorityPercent float64) (domain.Signal, string, bool) {
	bidVol := totalOrderVolume(m.LargeBids)
	askVol := totalOrderVolume(m.LargeAsks)

	switch {
	case len(m.LargeBids) > 0 && len(m.LargeAsks) == 0:
		return domain.SignalBuy, fmt.Sprintf("large bid orders only (%.0f volume)", bidVol), true
	case len(m.LargeAsks) > 0 && len(m.LargeBids) == 0:
		return domain.SignalSell, fmt.Sprintf("large ask orders only (%.0f volume)", askVol), true
	case len(m.LargeBids) > 0 && len(m.LargeAsks) > 0:
		factor := 1 + majorityPercent/100
		if bidVol >= askVol*factor {
			return domain.SignalBuy, fmt.Sprintf("large order volume majority on bids (%.0f vs %.0f)", bidVol, askVol), true
		}
		if askVol >= bidVol*factor {
			return domain.SignalSell, fmt.Sprintf("large order volume majority on asks (%.0f vs %.0f)", askVol, bidVol), true
		}
	}
	return domain.SignalNeutral, "", false
}

func totalOrderVolume(orders []domain.LargeOrder) float64 {
	var total float64
	for _, o := range orders {
		total += o.Volume
	}
	return total
}

func avgStrength(zones []domain.LiquidityZone) float64 {
	if len(zones) == 0 {
		return 0
	}
	var total float64
	for _, z := range zones {
		total += z.Strength
	}
	return total / float64(len(zones))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
