package signal

import (
	"log/slog"
	"math"

	"github.com/depthlab/bookpulse/internal/domain"
)

// NormalizerConfig configures the cross-producer confidence damping.
type NormalizerConfig struct {
	// MinConfidence: only signals strictly above this confidence are damped.
	MinConfidence int
	// MinPeers is the minimum number of sibling producers required before
	// any damping applies.
	MinPeers int
	// DisagreeShare is the fraction of peers that must report the opposing
	// direction to trigger damping.
	DisagreeShare float64
	// Damping is the multiplicative factor applied to the confidence.
	Damping float64
}

// DefaultNormalizerConfig returns the default damping parameters.
func DefaultNormalizerConfig() NormalizerConfig {
	return NormalizerConfig{
		MinConfidence: 85,
		MinPeers:      2,
		DisagreeShare: 0.5,
		Damping:       0.8,
	}
}

// Normalizer dampens an aggressive SELL when the majority of sibling
// producers lean BUY, so a single producer cannot dominate the downstream
// consensus. It never flips the signal, only reduces the confidence.
type Normalizer struct {
	cfg    NormalizerConfig
	logger *slog.Logger
}

// NewNormalizer creates a Normalizer with the given parameters.
func NewNormalizer(cfg NormalizerConfig, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "normalizer")),
	}
}

// Apply returns the possibly damped confidence for the given decision against
// the peer snapshot. peers excludes this producer's own signal.
func (n *Normalizer) Apply(sig domain.Signal, confidence int, peers []domain.PeerSignal) int {
	if sig != domain.SignalSell || confidence <= n.cfg.MinConfidence {
		return confidence
	}
	if len(peers) < n.cfg.MinPeers {
		return confidence
	}

	buyCount := 0
	for _, p := range peers {
		if p.Signal == domain.SignalBuy {
			buyCount++
		}
	}
	if float64(buyCount) < n.cfg.DisagreeShare*float64(len(peers)) {
		return confidence
	}

	damped := int(math.Round(float64(confidence) * n.cfg.Damping))
	n.logger.Debug("confidence damped against peer majority",
		slog.Int("confidence", confidence),
		slog.Int("damped", damped),
		slog.Int("peers", len(peers)),
		slog.Int("peer_buys", buyCount),
	)
	return damped
}
