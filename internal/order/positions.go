package order

import "strategy-enginev1/internal/model"

// PositionState classifies a position's direction.
type PositionState string

const (
	PositionFlat  PositionState = "FLAT"
	PositionLong  PositionState = "OPEN_LONG"
	PositionShort PositionState = "OPEN_SHORT"
)

// Position is derived from filled orders sharing a position ID.
type Position struct {
	ID       string      `json:"id"`
	Symbol   string      `json:"symbol"`
	Qty      int64       `json:"qty"` // positive = long, negative = short
	AvgEntry model.Price `json:"avg_entry"`
}

// State derives the position state from the signed quantity.
func (p *Position) State() PositionState {
	switch {
	case p.Qty > 0:
		return PositionLong
	case p.Qty < 0:
		return PositionShort
	default:
		return PositionFlat
	}
}

// IsOpen reports whether the position holds any quantity.
func (p *Position) IsOpen() bool { return p.Qty != 0 }

// PositionBook derives positions from fills, keyed by position ID.
type PositionBook struct {
	positions map[string]*Position
	order     []string // position IDs in first-fill order
}

// NewPositionBook creates an empty book.
func NewPositionBook() *PositionBook {
	return &PositionBook{positions: make(map[string]*Position)}
}

// ApplyFill updates the position for a fill and returns it.
func (b *PositionBook) ApplyFill(positionID, symbol string, side Side, qty int64, price model.Price) *Position {
	p, ok := b.positions[positionID]
	if !ok {
		p = &Position{ID: positionID, Symbol: symbol}
		b.positions[positionID] = p
		b.order = append(b.order, positionID)
	}

	signed := qty
	if side == SideSell {
		signed = -qty
	}

	// Track average entry while the fill extends the position; reducing
	// fills keep the entry average of the remaining quantity.
	if p.Qty == 0 || (p.Qty > 0) == (signed > 0) {
		total := abs(p.Qty) + qty
		if total > 0 {
			p.AvgEntry = model.Price((int64(p.AvgEntry)*abs(p.Qty) + int64(price)*qty) / total)
		}
	}
	prev := p.Qty
	p.Qty += signed
	switch {
	case p.Qty == 0:
		p.AvgEntry = 0
	case prev != 0 && (prev > 0) != (p.Qty > 0):
		// The fill flipped the side: the residual quantity was opened at
		// this fill's price, not at the old side's average.
		p.AvgEntry = price
	}
	return p
}

// Position returns the position for an ID.
func (b *PositionBook) Position(positionID string) (*Position, bool) {
	p, ok := b.positions[positionID]
	return p, ok
}

// IsFlat reports whether no open position exists for the symbol.
func (b *PositionBook) IsFlat(symbol string) bool {
	for _, id := range b.order {
		p := b.positions[id]
		if p.Symbol == symbol && p.IsOpen() {
			return false
		}
	}
	return true
}

// OpenPositions returns all open positions in first-fill order.
func (b *PositionBook) OpenPositions() []*Position {
	out := make([]*Position, 0, len(b.order))
	for _, id := range b.order {
		if p := b.positions[id]; p.IsOpen() {
			out = append(out, p)
		}
	}
	return out
}

// Entries returns every tracked position in first-fill order, for state
// saving.
func (b *PositionBook) Entries() []Position {
	out := make([]Position, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, *b.positions[id])
	}
	return out
}

// RestoreEntries replaces the book contents from saved state.
func (b *PositionBook) RestoreEntries(entries []Position) {
	b.positions = make(map[string]*Position, len(entries))
	b.order = b.order[:0]
	for i := range entries {
		p := entries[i]
		b.positions[p.ID] = &p
		b.order = append(b.order, p.ID)
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
