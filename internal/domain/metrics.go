package domain

// Side identifies which half of the book a derived structure came from.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// ZoneKind distinguishes support (bid-side) from resistance (ask-side)
// liquidity zones.
type ZoneKind string

const (
	ZoneSupport    ZoneKind = "support"
	ZoneResistance ZoneKind = "resistance"
)

// LiquidityZone is a price region with conspicuously higher resting volume
// than its surroundings. Price is the volume-weighted average of the member
// levels; Strength is the zone volume relative to the average bin volume on
// that side.
type LiquidityZone struct {
	Kind     ZoneKind `json:"kind"`
	Price    float64  `json:"price"`
	Volume   float64  `json:"volume"`
	Strength float64  `json:"strength"`
}

// LiquidityGap marks a price region whose resting volume falls below the
// low-volume threshold. Only the representative price is carried.
type LiquidityGap struct {
	Price float64 `json:"price"`
}

// DetectionTechnique tags how a large order was identified.
type DetectionTechnique string

const (
	DetectVolumeSpike        DetectionTechnique = "volume_spike"
	DetectStatisticalOutlier DetectionTechnique = "statistical_outlier"
)

// LargeOrder is a single price level flagged as anomalously large relative to
// its neighbors or to the book-wide trimmed distribution.
type LargeOrder struct {
	Side      Side               `json:"side"`
	Price     float64            `json:"price"`
	Volume    float64            `json:"volume"`
	Ratio     float64            `json:"ratio"`
	Technique DetectionTechnique `json:"technique"`
	ZScore    float64            `json:"z_score,omitempty"`
}

// Metrics is the aggregate result of the order-book analysis phase. All
// fields are recomputed per invocation; nothing is persisted between calls.
type Metrics struct {
	BestBid       float64 `json:"best_bid"`
	BestAsk       float64 `json:"best_ask"`
	MidPrice      float64 `json:"mid_price"`
	Spread        float64 `json:"spread"`
	SpreadPercent float64 `json:"spread_percent"`

	// Depth in quote-currency terms (sum of price*size per side).
	BidDepth    float64 `json:"bid_depth"`
	AskDepth    float64 `json:"ask_depth"`
	BidAskRatio float64 `json:"bid_ask_ratio"`

	// LiquidityScore is a 0-100 blend of log-depth, spread tightness and
	// side balance.
	LiquidityScore float64 `json:"liquidity_score"`

	SupportZones    []LiquidityZone `json:"support_zones"`
	ResistanceZones []LiquidityZone `json:"resistance_zones"`
	Gaps            []LiquidityGap  `json:"gaps"`
	LargeBids       []LargeOrder    `json:"large_bids"`
	LargeAsks       []LargeOrder    `json:"large_asks"`

	// Suggested price levels for a directional signal. Zero when no zone
	// structure supports a suggestion.
	SuggestedEntry    float64 `json:"suggested_entry,omitempty"`
	SuggestedStopLoss float64 `json:"suggested_stop_loss,omitempty"`
}

// ZoneCount returns the combined number of support and resistance zones.
func (m *Metrics) ZoneCount() int {
	return len(m.SupportZones) + len(m.ResistanceZones)
}

// SanityResult is the advisory verdict of the structural plausibility check.
// A failing result downgrades trust in the derived structure; it never aborts
// the pipeline.
type SanityResult struct {
	OK bool `json:"ok"`
	// Reason carries a human-readable explanation when OK is false.
	Reason string `json:"reason,omitempty"`
	// PressureOverride is set when an extreme bid/ask ratio bypassed the
	// structural checks: an extreme imbalance is a legitimate signal, not a
	// data anomaly.
	PressureOverride bool `json:"pressure_override,omitempty"`
}
