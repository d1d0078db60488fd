package model

// Instrument represents a tradeable instrument/symbol.
// Immutable for a session except via an explicit instrument-update event,
// which atomically replaces the cached copy held by a strategy.
type Instrument struct {
	Symbol        string `json:"symbol"`
	TickSize      Price  `json:"tick_size"`      // minimum price movement in points
	TickPrecision int    `json:"tick_precision"` // decimal places quoted
	QuoteCurrency string `json:"quote_currency"` // e.g. "USD"
	LotSize       int64  `json:"lot_size"`       // minimum tradable unit
}

// Key returns the subscription key for this instrument.
func (i *Instrument) Key() string {
	return i.Symbol
}
