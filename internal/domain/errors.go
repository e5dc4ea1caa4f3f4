package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidOrderBook   = errors.New("invalid order book")
	ErrInsufficientData   = errors.New("insufficient data")
	ErrDataFetcherMissing = errors.New("data fetcher missing")
	ErrRateLimited        = errors.New("rate limited")
	ErrWSDisconnect       = errors.New("websocket disconnected")
	ErrLockHeld           = errors.New("lock already held")
)

// ErrorCodeFor maps a pipeline error to the ErrorCode carried on failure
// results. Unknown errors are reported as insufficient data so that a single
// instrument's bad feed never escapes the result contract.
func ErrorCodeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return ErrCodeInvalidInput
	case errors.Is(err, ErrInvalidOrderBook):
		return ErrCodeInvalidOrderBook
	case errors.Is(err, ErrDataFetcherMissing):
		return ErrCodeDataFetcherMissing
	default:
		return ErrCodeInsufficientData
	}
}
