package domain

import (
	"context"
	"time"
)

// DepthProvider fetches an order book snapshot from an exchange. It may fail
// with network or rate-limit errors; callers must translate an empty or
// malformed response into an error result, never a crash.
type DepthProvider interface {
	FetchDepth(ctx context.Context, instrument Instrument, levels int) (OrderBookSnapshot, error)
}

// ReferencePriceSource supplies a mid or last price when a book-derived
// midpoint is unavailable.
type ReferencePriceSource interface {
	MidOrLastPrice(ctx context.Context, instrument Instrument) (float64, error)
}

// VolatilitySource supplies a short-horizon volatility figure (percent per
// hour) used to scale bin width and tighten decision thresholds. Optional:
// implementations may return ErrNotFound when no estimate exists.
type VolatilitySource interface {
	ShortHorizonVolatility(ctx context.Context, instrument Instrument) (float64, error)
}

// Refinement is the structured response of an optional LLM refinement call.
type Refinement struct {
	Signal     Signal
	Confidence int
	Reasoning  string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// Refiner is the optional LLM enhancement layer. Implementations are
// best-effort: any error, timeout, or unparseable payload must surface as an
// error return so the caller can fall back to the rule-based path.
type Refiner interface {
	Refine(ctx context.Context, instrument Instrument, m *Metrics, sanity SanityResult) (Refinement, error)
}

// PeerSignalRegistry is a read-only snapshot of sibling producers' latest
// signals, plus the write path this producer uses to publish its own.
type PeerSignalRegistry interface {
	Peers(ctx context.Context, instrument Instrument, exclude string) ([]PeerSignal, error)
	Publish(ctx context.Context, instrument Instrument, sig PeerSignal) error
}

// SignalStore persists produced signal results.
type SignalStore interface {
	Insert(ctx context.Context, res SignalResult) error
	GetLatest(ctx context.Context, instrument Instrument) (SignalResult, error)
	ListRecent(ctx context.Context, instrument Instrument, limit int) ([]SignalResult, error)
	ListBefore(ctx context.Context, before time.Time) ([]SignalResult, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
