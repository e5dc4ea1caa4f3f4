package binance

import (
	"fmt"
	"strconv"
	"time"

	"github.com/depthlab/bookpulse/internal/domain"
)

// APIDepth is the raw /api/v3/depth response. Price levels arrive as
// ["price", "qty"] string pairs.
type APIDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// ToSnapshot converts the raw depth payload into the domain snapshot. Binance
// returns bids descending and asks ascending, matching the domain ordering.
func (d *APIDepth) ToSnapshot(instrument domain.Instrument) (domain.OrderBookSnapshot, error) {
	snap := domain.OrderBookSnapshot{
		Instrument: instrument,
		Timestamp:  time.Now().UTC(),
		Bids:       make([]domain.PriceLevel, 0, len(d.Bids)),
		Asks:       make([]domain.PriceLevel, 0, len(d.Asks)),
	}

	for _, raw := range d.Bids {
		lvl, err := parseLevel(raw)
		if err != nil {
			return domain.OrderBookSnapshot{}, fmt.Errorf("bid level: %w", err)
		}
		snap.Bids = append(snap.Bids, lvl)
	}
	for _, raw := range d.Asks {
		lvl, err := parseLevel(raw)
		if err != nil {
			return domain.OrderBookSnapshot{}, fmt.Errorf("ask level: %w", err)
		}
		snap.Asks = append(snap.Asks, lvl)
	}
	return snap, nil
}

func parseLevel(raw [2]string) (domain.PriceLevel, error) {
	price, err := strconv.ParseFloat(raw[0], 64)
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("parse price %q: %w", raw[0], domain.ErrInvalidOrderBook)
	}
	size, err := strconv.ParseFloat(raw[1], 64)
	if err != nil {
		return domain.PriceLevel{}, fmt.Errorf("parse size %q: %w", raw[1], domain.ErrInvalidOrderBook)
	}
	return domain.PriceLevel{Price: price, Size: size}, nil
}

// APIPrice is the /api/v3/ticker/price response.
type APIPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// APIError is the error envelope Binance returns on non-2xx responses.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"msg"`
}
