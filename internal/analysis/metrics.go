package analysis

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/depthlab/bookpulse/internal/domain"
)

// LiquidityScoreConfig configures the 0-100 liquidity score blend.
type LiquidityScoreConfig struct {
	// DepthSaturation is the combined quote-currency depth at which the
	// log-depth component saturates at 100.
	DepthSaturation float64
	// WideSpreadPercent is the spread (as % of mid) at which the
	// spread-tightness component reaches 0.
	WideSpreadPercent float64
	DepthWeight       float64
	SpreadWeight      float64
	BalanceWeight     float64
}

// LevelConfig configures suggested entry/stop-loss placement.
type LevelConfig struct {
	// EntryOffsetPercent offsets the entry from the nearest zone price.
	EntryOffsetPercent float64
	// StopFallbackPercent places the stop when no gap exists beyond the
	// zone.
	StopFallbackPercent float64
}

// Config bundles all analysis-phase parameters.
type Config struct {
	Cluster     ClusterConfig
	Zones       ZoneConfig
	LargeOrders LargeOrderConfig
	Liquidity   LiquidityScoreConfig
	Levels      LevelConfig
}

// DefaultConfig returns the default analysis parameters.
func DefaultConfig() Config {
	return Config{
		Cluster:     DefaultClusterConfig(),
		Zones:       DefaultZoneConfig(),
		LargeOrders: DefaultLargeOrderConfig(),
		Liquidity: LiquidityScoreConfig{
			DepthSaturation:   1_000_000,
			WideSpreadPercent: 0.5,
			DepthWeight:       0.4,
			SpreadWeight:      0.3,
			BalanceWeight:     0.3,
		},
		Levels: LevelConfig{
			EntryOffsetPercent:  0.1,
			StopFallbackPercent: 1.0,
		},
	}
}

// Analyzer turns an order book snapshot into the Metrics block. It is a pure
// function of its inputs and safe for concurrent use.
type Analyzer struct {
	cfg    Config
	logger *slog.Logger
}

// NewAnalyzer creates an Analyzer with the given parameters.
func NewAnalyzer(cfg Config, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "analyzer")),
	}
}

// Analyze clusters the snapshot, classifies zones and gaps, detects large
// orders, and assembles the aggregate Metrics. currentPrice is the reference
// price (book midpoint or an externally supplied price); volatility is the
// optional short-horizon figure in percent per hour (0 when unknown).
func (a *Analyzer) Analyze(snap *domain.OrderBookSnapshot, currentPrice, volatility float64) (*domain.Metrics, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("analyze %s: %w", snap.Instrument, err)
	}
	if currentPrice <= 0 {
		currentPrice = snap.MidPrice()
	}
	if currentPrice <= 0 {
		return nil, fmt.Errorf("analyze %s: no usable reference price: %w", snap.Instrument, domain.ErrInsufficientData)
	}

	binWidth := BinWidth(a.cfg.Cluster, currentPrice, volatility)
	bidBins := ClusterSide(snap.Bids, binWidth)
	askBins := ClusterSide(snap.Asks, binWidth)

	zones := ClassifyZones(a.cfg.Zones, bidBins, askBins)
	largeBids := DetectLargeOrders(a.cfg.LargeOrders, domain.SideBid, snap.Bids)
	largeAsks := DetectLargeOrders(a.cfg.LargeOrders, domain.SideAsk, snap.Asks)

	bidDepth := snap.BidDepth()
	askDepth := snap.AskDepth()
	ratio := 0.0
	if askDepth > 0 {
		ratio = bidDepth / askDepth
	}

	m := &domain.Metrics{
		BestBid:         snap.BestBid(),
		BestAsk:         snap.BestAsk(),
		MidPrice:        snap.MidPrice(),
		Spread:          snap.Spread(),
		SpreadPercent:   snap.SpreadPercent(),
		BidDepth:        bidDepth,
		AskDepth:        askDepth,
		BidAskRatio:     ratio,
		SupportZones:    zones.Support,
		ResistanceZones: zones.Resistance,
		Gaps:            zones.Gaps,
		LargeBids:       largeBids,
		LargeAsks:       largeAsks,
	}
	m.LiquidityScore = liquidityScore(a.cfg.Liquidity, m)

	// Pre-fill suggested levels from the pressure-dominant side; the policy
	// recomputes from the zone collections when it settles on a direction.
	if ratio >= 1 {
		m.SuggestedEntry, m.SuggestedStopLoss = SuggestLevels(m, domain.SignalBuy, a.cfg.Levels)
	} else {
		m.SuggestedEntry, m.SuggestedStopLoss = SuggestLevels(m, domain.SignalSell, a.cfg.Levels)
	}

	a.logger.Debug("analysis complete",
		slog.String("instrument", snap.Instrument.String()),
		slog.Float64("bin_width", binWidth),
		slog.Int("bid_bins", len(bidBins)),
		slog.Int("ask_bins", len(askBins)),
		slog.Int("support_zones", len(zones.Support)),
		slog.Int("resistance_zones", len(zones.Resistance)),
		slog.Int("gaps", len(zones.Gaps)),
		slog.Float64("bid_ask_ratio", ratio),
		slog.Float64("liquidity_score", m.LiquidityScore),
	)

	return m, nil
}

// liquidityScore blends a log-depth score, a spread-tightness score, and a
// side-balance score into a single 0-100 figure.
func liquidityScore(cfg LiquidityScoreConfig, m *domain.Metrics) float64 {
	total := m.BidDepth + m.AskDepth

	depthScore := 0.0
	if total > 0 && cfg.DepthSaturation > 1 {
		depthScore = 100 * math.Log10(1+total) / math.Log10(1+cfg.DepthSaturation)
		if depthScore > 100 {
			depthScore = 100
		}
	}

	spreadScore := 0.0
	if cfg.WideSpreadPercent > 0 {
		spreadScore = 100 * (1 - m.SpreadPercent/cfg.WideSpreadPercent)
		if spreadScore < 0 {
			spreadScore = 0
		}
		if spreadScore > 100 {
			spreadScore = 100
		}
	}

	balanceScore := 0.0
	if total > 0 {
		balanceScore = 100 * (1 - math.Abs(m.BidDepth-m.AskDepth)/total)
	}

	score := cfg.DepthWeight*depthScore + cfg.SpreadWeight*spreadScore + cfg.BalanceWeight*balanceScore
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// SuggestLevels derives entry and stop-loss prices for a directional signal
// from the zone and gap collections: the nearest zone on the relevant side
// offset by EntryOffsetPercent, with the stop at the nearest gap beyond the
// zone or a flat StopFallbackPercent fallback. Both values are 0 when the
// relevant side has no zones or the signal is not directional.
func SuggestLevels(m *domain.Metrics, sig domain.Signal, cfg LevelConfig) (entry, stop float64) {
	offset := cfg.EntryOffsetPercent / 100
	fallback := cfg.StopFallbackPercent / 100

	switch sig {
	case domain.SignalBuy:
		if len(m.SupportZones) == 0 {
			return 0, 0
		}
		zone := m.SupportZones[0] // nearest below market
		entry = zone.Price * (1 + offset)
		stop = zone.Price * (1 - fallback)
		// Nearest gap below the zone, if any.
		best := 0.0
		for _, g := range m.Gaps {
			if g.Price < zone.Price && g.Price > best {
				best = g.Price
			}
		}
		if best > 0 {
			stop = best
		}
		return entry, stop

	case domain.SignalSell:
		if len(m.ResistanceZones) == 0 {
			return 0, 0
		}
		zone := m.ResistanceZones[0] // nearest above market
		entry = zone.Price * (1 - offset)
		stop = zone.Price * (1 + fallback)
		best := math.MaxFloat64
		for _, g := range m.Gaps {
			if g.Price > zone.Price && g.Price < best {
				best = g.Price
			}
		}
		if best < math.MaxFloat64 {
			stop = best
		}
		return entry, stop
	}
	return 0, 0
}
