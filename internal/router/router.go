// Package router delivers tick/bar/instrument events to the handlers
// registered for their subject, in registration order, after appending
// each event to the subject's bounded history buffer.
//
// Designed for single-goroutine usage within one strategy instance —
// no locks needed.
package router

import (
	"log/slog"

	"strategy-enginev1/internal/metrics"
	"strategy-enginev1/internal/model"
)

// Handler types for each market data subject.
type (
	TickHandler       func(model.Tick)
	BarHandler        func(model.BarType, model.Bar)
	InstrumentHandler func(model.Instrument)
)

// Config sizes the history buffers.
type Config struct {
	BarCapacity  int // bars kept per bar type
	TickCapacity int // ticks kept per symbol
}

// Router routes market data events to registered handlers.
//
// Ordering guarantee: events for the same subject are dispatched in arrival
// order to handlers in registration order. Events for different subjects
// have no relative ordering guarantee. A panicking handler is isolated:
// it is logged and counted, and later handlers still run. Dispatch is
// best-effort per handler with no rollback.
type Router struct {
	log *slog.Logger
	met *metrics.Metrics
	cfg Config

	tickSubs map[string][]TickHandler
	barSubs  map[string][]BarHandler
	instSubs map[string][]InstrumentHandler

	ticks map[string]*TickWindow
	bars  map[string]*BarWindow
}

// New creates a Router with the given history capacities.
func New(cfg Config, log *slog.Logger, met *metrics.Metrics) *Router {
	if cfg.BarCapacity < 1 {
		cfg.BarCapacity = 1
	}
	if cfg.TickCapacity < 1 {
		cfg.TickCapacity = 1
	}
	return &Router{
		log:      log,
		met:      met,
		cfg:      cfg,
		tickSubs: make(map[string][]TickHandler),
		barSubs:  make(map[string][]BarHandler),
		instSubs: make(map[string][]InstrumentHandler),
		ticks:    make(map[string]*TickWindow),
		bars:     make(map[string]*BarWindow),
	}
}

// SubscribeTicks registers a tick handler for a symbol.
func (r *Router) SubscribeTicks(symbol string, h TickHandler) {
	r.tickSubs[symbol] = append(r.tickSubs[symbol], h)
}

// SubscribeBars registers a bar handler for a bar type.
func (r *Router) SubscribeBars(bt model.BarType, h BarHandler) {
	r.barSubs[bt.Key()] = append(r.barSubs[bt.Key()], h)
}

// SubscribeInstrument registers an instrument-update handler for a symbol.
func (r *Router) SubscribeInstrument(symbol string, h InstrumentHandler) {
	r.instSubs[symbol] = append(r.instSubs[symbol], h)
}

// UnsubscribeTicks drops all tick handlers for a symbol.
func (r *Router) UnsubscribeTicks(symbol string) {
	delete(r.tickSubs, symbol)
}

// UnsubscribeBars drops all bar handlers for a bar type.
func (r *Router) UnsubscribeBars(bt model.BarType) {
	delete(r.barSubs, bt.Key())
}

// UnsubscribeInstrument drops all instrument handlers for a symbol.
func (r *Router) UnsubscribeInstrument(symbol string) {
	delete(r.instSubs, symbol)
}

// DispatchTick appends the tick to the symbol's history, then invokes the
// symbol's handlers in registration order.
func (r *Router) DispatchTick(t model.Tick) {
	w, ok := r.ticks[t.Symbol]
	if !ok {
		w = NewTickWindow(r.cfg.TickCapacity)
		r.ticks[t.Symbol] = w
	}
	w.Push(t)

	for _, h := range r.tickSubs[t.Symbol] {
		r.invokeTick(h, t)
	}
}

// DispatchBar appends the bar to the bar type's history, then invokes the
// bar type's handlers in registration order.
func (r *Router) DispatchBar(bt model.BarType, b model.Bar) {
	key := bt.Key()
	w, ok := r.bars[key]
	if !ok {
		w = NewBarWindow(r.cfg.BarCapacity)
		r.bars[key] = w
	}
	w.Push(b)

	for _, h := range r.barSubs[key] {
		r.invokeBar(h, bt, b)
	}
}

// DispatchInstrument invokes the symbol's instrument handlers in
// registration order. Instrument updates carry no history buffer; the
// handler replaces its cached copy.
func (r *Router) DispatchInstrument(inst model.Instrument) {
	for _, h := range r.instSubs[inst.Symbol] {
		r.invokeInstrument(h, inst)
	}
}

// Ticks returns the tick history window for a symbol, or nil if none.
func (r *Router) Ticks(symbol string) *TickWindow {
	return r.ticks[symbol]
}

// Bars returns the bar history window for a bar type, or nil if none.
func (r *Router) Bars(bt model.BarType) *BarWindow {
	return r.bars[bt.Key()]
}

// HasTicks reports whether at least one tick is buffered for the symbol.
func (r *Router) HasTicks(symbol string) bool {
	w := r.ticks[symbol]
	return w != nil && w.Len() > 0
}

// LastTick returns the most recent tick for the symbol.
func (r *Router) LastTick(symbol string) (model.Tick, bool) {
	w := r.ticks[symbol]
	if w == nil {
		return model.Tick{}, false
	}
	return w.At(0)
}

// SeedTick inserts a tick into the symbol's history without dispatching.
// Used when restoring saved strategy state.
func (r *Router) SeedTick(t model.Tick) {
	w, ok := r.ticks[t.Symbol]
	if !ok {
		w = NewTickWindow(r.cfg.TickCapacity)
		r.ticks[t.Symbol] = w
	}
	w.Push(t)
}

// Reset clears all history buffers. Subscriptions stay intact.
func (r *Router) Reset() {
	for _, w := range r.ticks {
		w.Clear()
	}
	for _, w := range r.bars {
		w.Clear()
	}
}

func (r *Router) invokeTick(h TickHandler, t model.Tick) {
	defer r.recoverHandler("tick", t.Symbol)
	h(t)
}

func (r *Router) invokeBar(h BarHandler, bt model.BarType, b model.Bar) {
	defer r.recoverHandler("bar", bt.Key())
	h(bt, b)
}

func (r *Router) invokeInstrument(h InstrumentHandler, inst model.Instrument) {
	defer r.recoverHandler("instrument", inst.Symbol)
	h(inst)
}

func (r *Router) recoverHandler(kind, subject string) {
	if rec := recover(); rec != nil {
		if r.log != nil {
			r.log.Error("handler panic isolated",
				slog.String("kind", kind),
				slog.String("subject", subject),
				slog.Any("panic", rec))
		}
		if r.met != nil {
			r.met.HandlerPanics.Inc()
		}
	}
}
