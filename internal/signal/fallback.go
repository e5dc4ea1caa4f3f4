package signal

import "github.com/depthlab/bookpulse/internal/domain"

// fallbackRule is one entry of the emergency fallback cascade. The cascade is
// an ordered table so rules can be enumerated, logged, and reordered without
// touching the evaluation loop.
type fallbackRule struct {
	name       string
	confidence int
	check      func(m *domain.Metrics) (domain.Signal, bool)
}

// buildFallbackRules assembles the cascade from the configured ratio bands
// with the zone-asymmetry rule interleaved after the tightest band. The
// historical ordering is preserved: the tightest band matches first, so the
// wider bands only fire when their confidence is wanted explicitly via
// reordering.
func buildFallbackRules(cfg PolicyConfig) []fallbackRule {
	rules := make([]fallbackRule, 0, len(cfg.FallbackBands)+1)

	for i, band := range cfg.FallbackBands {
		rules = append(rules, ratioBandRule(band))
		if i == 0 {
			rules = append(rules, fallbackRule{
				name:       "zone_asymmetry",
				confidence: cfg.ZoneAsymmetryConfidence,
				check: func(m *domain.Metrics) (domain.Signal, bool) {
					switch {
					case len(m.SupportZones) > len(m.ResistanceZones):
						return domain.SignalBuy, true
					case len(m.ResistanceZones) > len(m.SupportZones):
						return domain.SignalSell, true
					}
					return domain.SignalNeutral, false
				},
			})
		}
	}
	return rules
}

func ratioBandRule(band FallbackBand) fallbackRule {
	return fallbackRule{
		name:       band.Name,
		confidence: band.Confidence,
		check: func(m *domain.Metrics) (domain.Signal, bool) {
			switch {
			case m.BidAskRatio >= 1+band.RatioDelta:
				return domain.SignalBuy, true
			case m.BidAskRatio > 0 && m.BidAskRatio <= 1-band.RatioDelta:
				return domain.SignalSell, true
			}
			return domain.SignalNeutral, false
		},
	}
}
