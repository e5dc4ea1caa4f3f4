package domain

import "time"

// Signal is the directional trading hint emitted by the engine.
type Signal string

const (
	SignalBuy     Signal = "BUY"
	SignalSell    Signal = "SELL"
	SignalNeutral Signal = "NEUTRAL"
)

// ErrorCode classifies failure results. The produced record keeps the same
// shape on failure with the signal forced to NEUTRAL and confidence 0.
type ErrorCode string

const (
	ErrCodeNone               ErrorCode = ""
	ErrCodeInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrCodeDataFetcherMissing ErrorCode = "DATA_FETCHER_MISSING"
	ErrCodeInvalidOrderBook   ErrorCode = "INVALID_ORDER_BOOK"
	ErrCodeInsufficientData   ErrorCode = "INSUFFICIENT_DATA"
)

// SignalResult is the full output contract consumed by the downstream
// consensus step. Confidence is an integer in [0,100].
type SignalResult struct {
	ID           string     `json:"id"`
	Producer     string     `json:"producer"`
	Instrument   Instrument `json:"instrument"`
	Timestamp    time.Time  `json:"timestamp"`
	CurrentPrice float64    `json:"current_price"`

	Signal      Signal `json:"signal"`
	Confidence  int    `json:"confidence"`
	Explanation string `json:"explanation"`

	EntryPrice      float64 `json:"entry_price,omitempty"`
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`

	// Metrics carries the full analysis block for audit and traceability.
	// Nil on error results.
	Metrics *Metrics `json:"metrics,omitempty"`

	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// IsError reports whether the result represents a failure rather than a
// genuine analysis outcome.
func (r *SignalResult) IsError() bool {
	return r.ErrorCode != ErrCodeNone
}

// PeerSignal is a sibling producer's latest published opinion, used by the
// cross-producer confidence normalizer.
type PeerSignal struct {
	Producer   string    `json:"producer"`
	Signal     Signal    `json:"signal"`
	Confidence int       `json:"confidence"`
	UpdatedAt  time.Time `json:"updated_at"`
}
