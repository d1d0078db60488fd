package order

import (
	"strconv"
	"time"

	"strategy-enginev1/internal/model"
)

// Factory builds orders and position IDs with identifiers scoped by the
// strategy's order ID tag (unique at trader level).
type Factory struct {
	idTag    string
	clock    func() time.Time
	orderSeq int
	posSeq   int
}

// NewFactory creates a factory for the given order ID tag.
func NewFactory(idTag string) *Factory {
	return &Factory{
		idTag: idTag,
		clock: func() time.Time { return time.Now().UTC() },
	}
}

func (f *Factory) nextOrderID() string {
	f.orderSeq++
	return "O-" + f.idTag + "-" + strconv.Itoa(f.orderSeq)
}

// GeneratePositionID returns the next position-scoped identifier.
func (f *Factory) GeneratePositionID() string {
	f.posSeq++
	return f.idTag + "-P-" + strconv.Itoa(f.posSeq)
}

// Counters returns the current ID sequence counters for state saving.
func (f *Factory) Counters() (orderSeq, posSeq int) {
	return f.orderSeq, f.posSeq
}

// RestoreCounters restores ID sequence counters from saved state.
func (f *Factory) RestoreCounters(orderSeq, posSeq int) {
	f.orderSeq = orderSeq
	f.posSeq = posSeq
}

// Market builds a market order.
func (f *Factory) Market(symbol string, side Side, purpose Purpose, qty int64) *Order {
	now := f.clock()
	return &Order{
		ID:        f.nextOrderID(),
		Symbol:    symbol,
		Side:      side,
		Type:      TypeMarket,
		Purpose:   purpose,
		Qty:       qty,
		LeavesQty: qty,
		State:     StateInitialized,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// StopMarket builds a stop-market order triggered at the given price.
func (f *Factory) StopMarket(symbol string, side Side, purpose Purpose, qty int64, trigger model.Price) *Order {
	o := f.Market(symbol, side, purpose, qty)
	o.Type = TypeStopMarket
	o.Price = trigger
	return o
}

// Limit builds a limit order at the given price.
func (f *Factory) Limit(symbol string, side Side, purpose Purpose, qty int64, price model.Price) *Order {
	o := f.Market(symbol, side, purpose, qty)
	o.Type = TypeLimit
	o.Price = price
	return o
}

// AtomicMarket builds a market entry with a stop-loss and take-profit leg
// on the opposite side. Zero stop/take-profit prices omit that leg.
func (f *Factory) AtomicMarket(symbol string, side Side, qty int64, stopLoss, takeProfit model.Price) AtomicOrder {
	ao := AtomicOrder{
		Entry: f.Market(symbol, side, PurposeEntry, qty),
	}
	if stopLoss > 0 {
		ao.StopLoss = f.StopMarket(symbol, side.Opposite(), PurposeStopLoss, qty, stopLoss)
	}
	if takeProfit > 0 {
		ao.TakeProfit = f.Limit(symbol, side.Opposite(), PurposeTakeProfit, qty, takeProfit)
	}
	return ao
}
