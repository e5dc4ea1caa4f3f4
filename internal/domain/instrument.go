package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Instrument is the canonical identifier for a traded instrument. The rest of
// the engine only ever sees this type; upstream payload shapes are resolved
// once at the boundary by NormalizeInstrument.
type Instrument string

// String returns the instrument symbol.
func (i Instrument) String() string { return string(i) }

// NormalizeInstrument converts the heterogeneous identifiers accepted at the
// API boundary into a canonical Instrument. It accepts a plain symbol string
// or a structure carrying a "symbol" field (either as a map or raw JSON).
func NormalizeInstrument(v any) (Instrument, error) {
	switch t := v.(type) {
	case Instrument:
		return canonical(string(t))
	case string:
		return canonical(t)
	case map[string]any:
		if sym, ok := t["symbol"].(string); ok {
			return canonical(sym)
		}
		return "", fmt.Errorf("normalize instrument: map missing symbol field: %w", ErrInvalidInput)
	case json.RawMessage:
		return normalizeJSON(t)
	case []byte:
		return normalizeJSON(t)
	default:
		return "", fmt.Errorf("normalize instrument: unsupported type %T: %w", v, ErrInvalidInput)
	}
}

func normalizeJSON(raw []byte) (Instrument, error) {
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return canonical(plain)
	}
	var wrapped struct {
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Symbol != "" {
		return canonical(wrapped.Symbol)
	}
	return "", fmt.Errorf("normalize instrument: unparseable payload: %w", ErrInvalidInput)
}

func canonical(sym string) (Instrument, error) {
	sym = strings.ToUpper(strings.TrimSpace(sym))
	if sym == "" {
		return "", fmt.Errorf("normalize instrument: empty symbol: %w", ErrInvalidInput)
	}
	return Instrument(sym), nil
}
