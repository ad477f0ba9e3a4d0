package domain

import "time"

// PriceLevel is a single price+quantity entry in an order book. Both values
// are strictly positive once a snapshot has been ingested.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"qty"`
}

// OrderBookSnapshot is one exchange's book for one canonical symbol. Bids are
// sorted by descending price, asks by ascending price. A snapshot is never
// mutated after it has been upserted; a fresher one replaces it.
type OrderBookSnapshot struct {
	Exchange   string         `json:"exchange"`
	Symbol     string         `json:"symbol"`
	Bids       []PriceLevel   `json:"bids"`
	Asks       []PriceLevel   `json:"asks"`
	EventTime  time.Time      `json:"event_time"`
	IngestTime time.Time      `json:"ingest_time"`
	Healthy    bool           `json:"healthy"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Age returns how old the snapshot is relative to now, based on ingest time.
func (s OrderBookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.IngestTime)
}

// Stale reports whether the snapshot is older than maxAge at now.
func (s OrderBookSnapshot) Stale(now time.Time, maxAge time.Duration) bool {
	return s.Age(now) > maxAge
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (s OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (s OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// PositiveLevels returns the levels with strictly positive price and quantity.
// The input slice is not modified.
func PositiveLevels(levels []PriceLevel) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	for _, l := range levels {
		if l.Price > 0 && l.Quantity > 0 {
			out = append(out, l)
		}
	}
	return out
}
