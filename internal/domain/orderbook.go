package domain

import "time"

// PriceLevel is a single price+size entry in an order book ladder.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// Notional returns the quote-currency value resting at this level.
func (l PriceLevel) Notional() float64 {
	return l.Price * l.Size
}

// OrderBookSnapshot is a full snapshot of bids and asks for an instrument.
// Bids are ordered by price descending, asks ascending.
type OrderBookSnapshot struct {
	Instrument Instrument   `json:"instrument"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Timestamp  time.Time    `json:"timestamp"`
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (s *OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (s *OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns the midpoint of the best bid and ask, or 0 when either
// side is empty.
func (s *OrderBookSnapshot) MidPrice() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread returns the absolute bid-ask spread.
func (s *OrderBookSnapshot) Spread() float64 {
	bid, ask := s.BestBid(), s.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return ask - bid
}

// SpreadPercent returns the spread as a percentage of the mid price.
func (s *OrderBookSnapshot) SpreadPercent() float64 {
	mid := s.MidPrice()
	if mid <= 0 {
		return 0
	}
	return s.Spread() / mid * 100
}

// BidDepth returns the total quote-currency volume resting on the bid side.
func (s *OrderBookSnapshot) BidDepth() float64 {
	var total float64
	for _, l := range s.Bids {
		total += l.Notional()
	}
	return total
}

// AskDepth returns the total quote-currency volume resting on the ask side.
func (s *OrderBookSnapshot) AskDepth() float64 {
	var total float64
	for _, l := range s.Asks {
		total += l.Notional()
	}
	return total
}

// Validate checks the structural invariants of the snapshot: both sides
// present, non-negative sizes, and best bid strictly below best ask.
func (s *OrderBookSnapshot) Validate() error {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return ErrInvalidOrderBook
	}
	for _, l := range s.Bids {
		if l.Size < 0 {
			return ErrInvalidOrderBook
		}
	}
	for _, l := range s.Asks {
		if l.Size < 0 {
			return ErrInvalidOrderBook
		}
	}
	if s.BestBid() >= s.BestAsk() {
		return ErrInvalidOrderBook
	}
	return nil
}
