package model

import "time"

// Tick represents a single bid/ask/last quote update for a symbol.
// Prices are stored as int64 points to avoid float drift.
type Tick struct {
	Symbol   string    `json:"symbol"`
	Bid      Price     `json:"bid"`
	Ask      Price     `json:"ask"`
	Last     Price     `json:"last"`
	BidSize  int64     `json:"bid_size"`
	AskSize  int64     `json:"ask_size"`
	LastSize int64     `json:"last_size"`
	TS       time.Time `json:"ts"` // UTC timestamp
}

// Spread returns the bid/ask spread in points.
func (t *Tick) Spread() Price {
	return t.Ask - t.Bid
}
