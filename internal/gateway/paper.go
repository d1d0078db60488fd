package gateway

import (
	"fmt"
	"time"

	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

// Paper simulates an execution gateway, market data gateway, and account
// provider without real broker calls. Confirmation events are emitted
// synchronously through the sink, preserving causal order relative to the
// commands that produced them. Useful for backtesting and paper trading.
type Paper struct {
	sink        func(model.OrderEvent)
	slippageBps int64

	equity      int64
	rates       map[string]float64
	instruments map[string]model.Instrument
	market      map[string]model.Tick

	working map[string]*paperOrder

	// RejectEntries makes every entry order submission come back rejected.
	// Used to exercise the flatten-on-reject path.
	RejectEntries bool

	// AccountDown makes equity/exchange-rate queries fail. The strategy
	// must abstain from trading for that cycle.
	AccountDown bool
}

type paperOrder struct {
	id      string
	symbol  string
	side    order.Side
	purpose order.Purpose
	typ     order.Type
	qty     int64
	price   model.Price
	sibling string // OCO partner order ID, "" if none
}

// NewPaper creates a paper gateway. slippageBps is simulated slippage in
// basis points applied against the fill direction.
func NewPaper(equity int64, slippageBps int64) *Paper {
	return &Paper{
		slippageBps: slippageBps,
		equity:      equity,
		rates:       make(map[string]float64),
		instruments: make(map[string]model.Instrument),
		market:      make(map[string]model.Tick),
		working:     make(map[string]*paperOrder),
	}
}

// SetSink installs the event sink confirmation events are emitted through.
func (p *Paper) SetSink(sink func(model.OrderEvent)) { p.sink = sink }

// SetInstrument registers an instrument definition.
func (p *Paper) SetInstrument(inst model.Instrument) {
	p.instruments[inst.Symbol] = inst
}

// SetExchangeRate registers a quote-currency exchange rate.
func (p *Paper) SetExchangeRate(currency string, rate float64) {
	p.rates[currency] = rate
}

// SetEquity replaces the simulated free equity.
func (p *Paper) SetEquity(equity int64) { p.equity = equity }

// ── ExecutionGateway ──

// SubmitAtomic accepts all legs, then fills the market entry at the
// current market price (or rejects it when RejectEntries is set).
// Stop-loss and take-profit legs rest as an OCO pair.
func (p *Paper) SubmitAtomic(ao order.AtomicOrder, positionID string) error {
	for _, o := range ao.Orders() {
		p.accept(o)
	}
	if ao.StopLoss != nil && ao.TakeProfit != nil {
		p.working[ao.StopLoss.ID].sibling = ao.TakeProfit.ID
		p.working[ao.TakeProfit.ID].sibling = ao.StopLoss.ID
	}

	entry := p.working[ao.Entry.ID]
	if p.RejectEntries {
		delete(p.working, entry.id)
		p.emit(model.OrderEvent{
			Type:    model.OrderRejected,
			OrderID: entry.id,
			Symbol:  entry.symbol,
			Reason:  "paper gateway configured to reject entries",
			TS:      time.Now().UTC(),
		})
		return nil
	}
	p.fillAtMarket(entry)
	return nil
}

// Submit accepts a single order and, for market orders, fills it at the
// current market price.
func (p *Paper) Submit(o *order.Order, positionID string) error {
	p.accept(o)
	if o.Type == order.TypeMarket {
		p.fillAtMarket(p.working[o.ID])
	}
	return nil
}

// Modify applies the new quantity/price to a resting order and emits a
// modified confirmation.
func (p *Paper) Modify(orderID string, qty int64, price model.Price) error {
	o, ok := p.working[orderID]
	if !ok {
		return fmt.Errorf("paper modify: order %s not working", orderID)
	}
	o.qty = qty
	o.price = price
	p.emit(model.OrderEvent{
		Type:    model.OrderModified,
		OrderID: orderID,
		Symbol:  o.symbol,
		Qty:     qty,
		Price:   price,
		TS:      time.Now().UTC(),
	})
	return nil
}

// Cancel removes a resting order and emits a cancellation confirmation.
func (p *Paper) Cancel(orderID string) error {
	o, ok := p.working[orderID]
	if !ok {
		return fmt.Errorf("paper cancel: order %s not working", orderID)
	}
	delete(p.working, orderID)
	p.emit(model.OrderEvent{
		Type:    model.OrderCancelled,
		OrderID: orderID,
		Symbol:  o.symbol,
		TS:      time.Now().UTC(),
	})
	return nil
}

// ── MarketDataGateway ──

func (p *Paper) SubscribeTicks(symbol string) error        { return nil }
func (p *Paper) UnsubscribeTicks(symbol string) error      { return nil }
func (p *Paper) SubscribeBars(bt model.BarType) error      { return nil }
func (p *Paper) UnsubscribeBars(bt model.BarType) error    { return nil }
func (p *Paper) SubscribeInstrument(symbol string) error   { return nil }
func (p *Paper) UnsubscribeInstrument(symbol string) error { return nil }
func (p *Paper) RequestBars(bt model.BarType) error        { return nil }

// Instrument returns the registered instrument definition.
func (p *Paper) Instrument(symbol string) (model.Instrument, error) {
	inst, ok := p.instruments[symbol]
	if !ok {
		return model.Instrument{}, fmt.Errorf("paper: unknown instrument %s", symbol)
	}
	return inst, nil
}

// ── AccountProvider ──

// FreeEquity returns the simulated free equity.
func (p *Paper) FreeEquity() (int64, error) {
	if p.AccountDown {
		return 0, fmt.Errorf("paper: account provider unavailable")
	}
	return p.equity, nil
}

// ExchangeRate returns the configured rate, defaulting to 1.0.
func (p *Paper) ExchangeRate(currency string) (float64, error) {
	if p.AccountDown {
		return 0, fmt.Errorf("paper: account provider unavailable")
	}
	if rate, ok := p.rates[currency]; ok {
		return rate, nil
	}
	return 1.0, nil
}

// ── simulation ──

// OnTick updates the simulated market and triggers resting stop/limit
// orders. The driver (backtest loop) calls this before dispatching the
// tick to the strategy.
func (p *Paper) OnTick(t model.Tick) {
	p.market[t.Symbol] = t

	for _, o := range p.resting(t.Symbol) {
		// A fill earlier in this pass may have cancelled o as the OCO
		// sibling; a cancelled order must not also fill.
		if _, live := p.working[o.id]; !live {
			continue
		}
		if p.triggered(o, t) {
			p.fill(o, o.price)
		}
	}
}

func (p *Paper) triggered(o *paperOrder, t model.Tick) bool {
	switch o.typ {
	case order.TypeStopMarket:
		if o.side == order.SideSell {
			return t.Last <= o.price
		}
		return t.Last >= o.price
	case order.TypeLimit:
		if o.side == order.SideSell {
			return t.Last >= o.price
		}
		return t.Last <= o.price
	default:
		return false
	}
}

func (p *Paper) resting(symbol string) []*paperOrder {
	out := make([]*paperOrder, 0, len(p.working))
	for _, o := range p.working {
		if o.symbol == symbol && o.typ != order.TypeMarket {
			out = append(out, o)
		}
	}
	return out
}

func (p *Paper) accept(o *order.Order) {
	p.working[o.ID] = &paperOrder{
		id:      o.ID,
		symbol:  o.Symbol,
		side:    o.Side,
		purpose: o.Purpose,
		typ:     o.Type,
		qty:     o.Qty,
		price:   o.Price,
	}
	p.emit(model.OrderEvent{
		Type:    model.OrderAccepted,
		OrderID: o.ID,
		Symbol:  o.Symbol,
		TS:      time.Now().UTC(),
	})
}

func (p *Paper) fillAtMarket(o *paperOrder) {
	tick, ok := p.market[o.symbol]
	if !ok {
		// No market yet: reject rather than invent a price.
		delete(p.working, o.id)
		p.emit(model.OrderEvent{
			Type:    model.OrderRejected,
			OrderID: o.id,
			Symbol:  o.symbol,
			Reason:  "no market data for symbol",
			TS:      time.Now().UTC(),
		})
		return
	}

	price := tick.Ask
	if o.side == order.SideSell {
		price = tick.Bid
	}
	price = p.slip(price, o.side)
	p.fill(o, price)
}

func (p *Paper) fill(o *paperOrder, price model.Price) {
	delete(p.working, o.id)
	p.emit(model.OrderEvent{
		Type:      model.OrderFilled,
		OrderID:   o.id,
		Symbol:    o.symbol,
		FillQty:   o.qty,
		FillPrice: price,
		TS:        time.Now().UTC(),
	})

	// OCO: filling one protective leg cancels its sibling.
	if o.sibling != "" {
		if sib, ok := p.working[o.sibling]; ok {
			delete(p.working, sib.id)
			p.emit(model.OrderEvent{
				Type:    model.OrderCancelled,
				OrderID: sib.id,
				Symbol:  sib.symbol,
				Reason:  "OCO sibling filled",
				TS:      time.Now().UTC(),
			})
		}
	}
}

func (p *Paper) slip(price model.Price, side order.Side) model.Price {
	if p.slippageBps == 0 {
		return price
	}
	delta := model.Price(int64(price) * p.slippageBps / 10000)
	if side == order.SideBuy {
		return price + delta
	}
	return price - delta
}

func (p *Paper) emit(ev model.OrderEvent) {
	if p.sink != nil {
		p.sink(ev)
	}
}
