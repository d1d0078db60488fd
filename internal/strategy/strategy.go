// Package strategy hosts the strategy lifecycle state machine, the event
// dispatch loop, and the trading logic hooks. One TradingStrategy instance
// owns its router, order manager, and indicators, and is driven by a single
// goroutine — no locks in the hot path.
package strategy

import (
	"fmt"
	"log/slog"
	"time"

	"strategy-enginev1/internal/gateway"
	"strategy-enginev1/internal/indicator"
	"strategy-enginev1/internal/metrics"
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
	"strategy-enginev1/internal/router"
)

// Context is the view of the strategy instance handed to every logic hook.
// It carries the collaborators the logic may command plus the cached
// instrument definition, replaced atomically on instrument updates.
type Context struct {
	ID         string
	Log        *slog.Logger
	Router     *router.Router
	Orders     *order.Manager
	Factory    *order.Factory
	Exec       gateway.ExecutionGateway
	Data       gateway.MarketDataGateway
	Account    gateway.AccountProvider
	Metrics    *metrics.Metrics
	Instrument model.Instrument
}

// SubmitAtomic registers the bundle with the order manager and forwards it
// to the execution gateway as one unit.
func (c *Context) SubmitAtomic(ao order.AtomicOrder, positionID string) error {
	if err := c.Orders.SubmitAtomic(ao, positionID); err != nil {
		return err
	}
	if err := c.Exec.SubmitAtomic(ao, positionID); err != nil {
		return fmt.Errorf("submit atomic order: %w", err)
	}
	if c.Metrics != nil {
		c.Metrics.OrdersSubmitted.Add(float64(len(ao.Orders())))
	}
	return nil
}

// Submit registers a single order and forwards it to the execution gateway.
func (c *Context) Submit(o *order.Order, positionID string) error {
	if err := c.Orders.Submit(o, positionID); err != nil {
		return err
	}
	if err := c.Exec.Submit(o, positionID); err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	if c.Metrics != nil {
		c.Metrics.OrdersSubmitted.Inc()
	}
	return nil
}

// ModifyOrder requests a new quantity and price for a working order. A
// request against a non-working order is a surfaced no-op.
func (c *Context) ModifyOrder(orderID string, qty int64, price model.Price) error {
	if !c.Orders.CanModify(orderID) {
		return nil
	}
	if err := c.Exec.Modify(orderID, qty, price); err != nil {
		return fmt.Errorf("modify order %s: %w", orderID, err)
	}
	return nil
}

// CancelOrder requests cancellation of a working order.
func (c *Context) CancelOrder(orderID string) error {
	if err := c.Exec.Cancel(orderID); err != nil {
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	return nil
}

// FlattenPosition submits a market order closing the position under its
// own position ID.
func (c *Context) FlattenPosition(p *order.Position) error {
	if !p.IsOpen() {
		return nil
	}
	side := order.SideSell
	qty := p.Qty
	if p.Qty < 0 {
		side = order.SideBuy
		qty = -p.Qty
	}
	o := c.Factory.Market(p.Symbol, side, order.PurposeFlatten, qty)
	return c.Submit(o, p.ID)
}

// Logic is the trading logic plugged into a TradingStrategy. Register is
// called once before start; the remaining hooks run on the strategy's
// dispatch goroutine. A hook returning is the only synchronization needed.
type Logic interface {
	Name() string

	// Register declares the logic's subscriptions and indicators.
	Register(s *TradingStrategy)

	OnStart(c *Context)
	OnTick(c *Context, t model.Tick)
	OnBar(c *Context, bt model.BarType, b model.Bar)
	OnInstrument(c *Context, inst model.Instrument)
	OnOrderEvent(c *Context, ev model.OrderEvent, o *order.Order)
	OnStop(c *Context)
	OnReset(c *Context)
	OnDispose(c *Context)

	// OnSave contributes logic-specific keys to the persisted state;
	// OnLoad receives them back after a restore. Either may be a no-op.
	OnSave(c *Context) map[string]string
	OnLoad(c *Context, saved map[string]string)
}

// Config parameterizes one strategy instance.
type Config struct {
	ID           string // strategy instance identity, also the state-store key
	OrderIDTag   string // unique per strategy at trader level, scopes order IDs
	SkipLoad     bool   // start fresh even when saved state exists
	BarCapacity  int
	TickCapacity int
}

// TradingStrategy binds trading logic to the event dispatch loop, the
// order manager, and the lifecycle state machine.
type TradingStrategy struct {
	cfg   Config
	log   *slog.Logger
	met   *metrics.Metrics
	lc    *lifecycle
	logic Logic

	ctx     *Context
	factory *order.Factory
	orders  *order.Manager
	rtr     *router.Router
	store   gateway.StateStore // optional
	quiesce func()             // optional, delivers externally queued confirmations

	// Registered via the logic's Register hook.
	snapshottables []indicator.Snapshottable
	resets         []func()
	tickSymbols    []string
	barTypes       []model.BarType
	instSymbols    []string
	ready          []func() bool
}

// New creates a strategy instance wiring the logic to its collaborators.
// The state store is optional; nil disables save/load.
func New(cfg Config, logic Logic, exec gateway.ExecutionGateway, data gateway.MarketDataGateway,
	account gateway.AccountProvider, store gateway.StateStore,
	log *slog.Logger, met *metrics.Metrics) *TradingStrategy {

	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("strategy", cfg.ID))

	rtr := router.New(router.Config{
		BarCapacity:  cfg.BarCapacity,
		TickCapacity: cfg.TickCapacity,
	}, log, met)
	factory := order.NewFactory(cfg.OrderIDTag)
	orders := order.NewManager(log, met)

	s := &TradingStrategy{
		cfg:     cfg,
		log:     log,
		met:     met,
		lc:      newLifecycle(),
		logic:   logic,
		factory: factory,
		orders:  orders,
		rtr:     rtr,
		store:   store,
	}
	s.ctx = &Context{
		ID:      cfg.ID,
		Log:     log,
		Router:  rtr,
		Orders:  orders,
		Factory: factory,
		Exec:    exec,
		Data:    data,
		Account: account,
		Metrics: met,
	}

	logic.Register(s)
	return s
}

// State returns the current lifecycle state.
func (s *TradingStrategy) State() LifecycleState { return s.lc.State() }

// Context exposes the strategy context, mainly for tests and tooling.
func (s *TradingStrategy) Context() *Context { return s.ctx }

// SetQuiesce installs a hook that delivers confirmation events still queued
// outside the strategy (the runner's queue in live wiring). Stop invokes it
// after issuing cancel and flatten commands so the persisted book reflects
// their outcomes. Synchronous sinks need no hook.
func (s *TradingStrategy) SetQuiesce(fn func()) { s.quiesce = fn }

func (s *TradingStrategy) drainConfirmations() {
	if s.quiesce != nil {
		s.quiesce()
	}
}

// ── registration (called from Logic.Register) ──

// RegisterIndicatorBars subscribes the indicator to a bar type. Indicator
// updates run in registration order, always before the logic's OnBar.
func (s *TradingStrategy) RegisterIndicatorBars(bt model.BarType, ind indicator.Indicator) {
	s.rtr.SubscribeBars(bt, func(_ model.BarType, b model.Bar) { ind.Update(b) })
	s.trackBarType(bt)
	s.resets = append(s.resets, ind.Reset)
	s.ready = append(s.ready, ind.Ready)
	if sn, ok := ind.(indicator.Snapshottable); ok {
		s.snapshottables = append(s.snapshottables, sn)
	}
}

// RegisterSpreadTicks subscribes a spread analyzer to a symbol's ticks.
// Like bar indicators, it updates before the logic's OnTick.
func (s *TradingStrategy) RegisterSpreadTicks(symbol string, sa *indicator.SpreadAnalyzer) {
	s.rtr.SubscribeTicks(symbol, sa.Update)
	s.trackTickSymbol(symbol)
	s.resets = append(s.resets, sa.Reset)
	s.snapshottables = append(s.snapshottables, sa)
}

// WatchTicks subscribes the strategy to a symbol's ticks without attaching
// an analyzer (the logic still receives OnTick).
func (s *TradingStrategy) WatchTicks(symbol string) { s.trackTickSymbol(symbol) }

// WatchInstrument subscribes the strategy to instrument updates for a
// symbol. The first watched symbol's definition is cached on the context.
func (s *TradingStrategy) WatchInstrument(symbol string) {
	s.rtr.SubscribeInstrument(symbol, func(inst model.Instrument) {
		if s.ctx.Instrument.Symbol == "" || s.ctx.Instrument.Symbol == inst.Symbol {
			s.ctx.Instrument = inst
		}
	})
	s.instSymbols = append(s.instSymbols, symbol)
}

func (s *TradingStrategy) trackTickSymbol(symbol string) {
	for _, sym := range s.tickSymbols {
		if sym == symbol {
			return
		}
	}
	s.tickSymbols = append(s.tickSymbols, symbol)
}

func (s *TradingStrategy) trackBarType(bt model.BarType) {
	for _, b := range s.barTypes {
		if b.Key() == bt.Key() {
			return
		}
	}
	s.barTypes = append(s.barTypes, bt)
}

// IndicatorsInitialized reports whether every registered bar indicator has
// completed its warm-up.
func (s *TradingStrategy) IndicatorsInitialized() bool {
	for _, ready := range s.ready {
		if !ready() {
			return false
		}
	}
	return true
}

// ── lifecycle ──

// Start transitions CREATED/STOPPED -> STARTED -> RUNNING: restores saved
// state if present, fetches instrument definitions, requests historical
// bars, subscribes to market data, and runs the OnStart hook.
func (s *TradingStrategy) Start() error {
	if err := s.lc.markStarted(); err != nil {
		return err
	}
	s.log.Info("strategy starting", slog.String("logic", s.logic.Name()))

	if s.store != nil && !s.cfg.SkipLoad {
		if err := s.load(); err != nil {
			return err
		}
	}

	for _, sym := range s.instSymbols {
		inst, err := s.ctx.Data.Instrument(sym)
		if err != nil {
			return fmt.Errorf("fetch instrument %s: %w", sym, err)
		}
		s.rtr.DispatchInstrument(inst)
	}

	// Backfill warms indicators before live data arrives; the bars come
	// back as ordinary bar events.
	for _, bt := range s.barTypes {
		if err := s.ctx.Data.RequestBars(bt); err != nil {
			s.log.Warn("historical bar request failed",
				slog.String("bar_type", bt.Key()), slog.Any("error", err))
		}
	}

	for _, sym := range s.tickSymbols {
		if err := s.ctx.Data.SubscribeTicks(sym); err != nil {
			return fmt.Errorf("subscribe ticks %s: %w", sym, err)
		}
	}
	for _, bt := range s.barTypes {
		if err := s.ctx.Data.SubscribeBars(bt); err != nil {
			return fmt.Errorf("subscribe bars %s: %w", bt.Key(), err)
		}
	}
	for _, sym := range s.instSymbols {
		if err := s.ctx.Data.SubscribeInstrument(sym); err != nil {
			return fmt.Errorf("subscribe instrument %s: %w", sym, err)
		}
	}

	s.logic.OnStart(s.ctx)
	if err := s.lc.markRunning(); err != nil {
		return err
	}
	s.log.Info("strategy running")
	return nil
}

// Stop cancels every working order, runs the OnStop hook, transitions to
// STOPPED, and persists state. Cancellation confirmations arriving after
// the transition are dropped like any other event outside RUNNING.
func (s *TradingStrategy) Stop() error {
	if s.lc.State() != LifecycleRunning {
		return fmt.Errorf("stop from %s: %w", s.lc.State(), ErrInvalidTransition)
	}
	s.log.Info("strategy stopping")

	for _, o := range s.orders.WorkingOrders() {
		if err := s.ctx.CancelOrder(o.ID); err != nil {
			s.log.Warn("cancel on stop failed",
				slog.String("order_id", o.ID), slog.Any("error", err))
		}
	}
	s.drainConfirmations()

	s.logic.OnStop(s.ctx)
	s.drainConfirmations()

	if err := s.lc.markStopped(); err != nil {
		return err
	}
	if s.store != nil {
		if err := s.Save(); err != nil {
			s.log.Error("state save failed", slog.Any("error", err))
			return err
		}
	}
	s.log.Info("strategy stopped")
	return nil
}

// Reset clears indicator and history state while RUNNING. Subscriptions
// and working orders are untouched.
func (s *TradingStrategy) Reset() error {
	if s.lc.State() != LifecycleRunning {
		return fmt.Errorf("reset from %s: %w", s.lc.State(), ErrInvalidTransition)
	}
	s.rtr.Reset()
	for _, reset := range s.resets {
		reset()
	}
	s.logic.OnReset(s.ctx)
	s.log.Info("strategy reset")
	return nil
}

// Dispose unsubscribes all market data and finalizes the instance. Only
// valid from STOPPED; a disposed strategy never restarts.
func (s *TradingStrategy) Dispose() error {
	if err := s.lc.markDisposed(); err != nil {
		return err
	}
	for _, sym := range s.tickSymbols {
		if err := s.ctx.Data.UnsubscribeTicks(sym); err != nil {
			s.log.Warn("unsubscribe ticks failed", slog.String("symbol", sym), slog.Any("error", err))
		}
	}
	for _, bt := range s.barTypes {
		if err := s.ctx.Data.UnsubscribeBars(bt); err != nil {
			s.log.Warn("unsubscribe bars failed", slog.String("bar_type", bt.Key()), slog.Any("error", err))
		}
	}
	for _, sym := range s.instSymbols {
		if err := s.ctx.Data.UnsubscribeInstrument(sym); err != nil {
			s.log.Warn("unsubscribe instrument failed", slog.String("symbol", sym), slog.Any("error", err))
		}
	}
	s.logic.OnDispose(s.ctx)
	s.log.Info("strategy disposed")
	return nil
}

// ── persistence ──

// Save persists the strategy state. Only valid from STOPPED, so the blob
// is never written mid-decision.
func (s *TradingStrategy) Save() error {
	if s.store == nil {
		return fmt.Errorf("save: no state store configured")
	}
	if s.lc.State() != LifecycleStopped {
		return fmt.Errorf("save from %s: %w", s.lc.State(), ErrInvalidTransition)
	}

	orderSeq, posSeq := s.factory.Counters()
	st := persistedState{
		Version:    stateVersion,
		StrategyID: s.cfg.ID,
		SavedAt:    time.Now().UTC(),
		OrderSeq:   orderSeq,
		PosSeq:     posSeq,
		Positions:  s.orders.Book().Entries(),
		Custom:     s.logic.OnSave(s.ctx),
	}
	for _, sn := range s.snapshottables {
		st.Indicators = append(st.Indicators, sn.Snapshot())
	}
	for _, sym := range s.tickSymbols {
		if t, ok := s.rtr.LastTick(sym); ok {
			st.LastTicks = append(st.LastTicks, t)
		}
	}

	blob, err := encodeState(st)
	if err != nil {
		return err
	}
	if err := s.store.Save(s.cfg.ID, blob); err != nil {
		return fmt.Errorf("persist strategy state: %w", err)
	}
	s.log.Info("strategy state saved",
		slog.Int("indicators", len(st.Indicators)),
		slog.Int("positions", len(st.Positions)))
	return nil
}

func (s *TradingStrategy) load() error {
	blob, err := s.store.Load(s.cfg.ID)
	if err != nil {
		return fmt.Errorf("load strategy state: %w", err)
	}
	if blob == nil {
		return nil
	}
	st, err := decodeState(blob)
	if err != nil {
		return err
	}

	s.factory.RestoreCounters(st.OrderSeq, st.PosSeq)
	s.orders.Book().RestoreEntries(st.Positions)
	if err := indicator.Restore(s.snapshottables, st.Indicators); err != nil {
		return fmt.Errorf("restore indicators: %w", err)
	}
	for _, t := range st.LastTicks {
		s.rtr.SeedTick(t)
	}
	s.logic.OnLoad(s.ctx, st.Custom)
	s.log.Info("strategy state restored",
		slog.Time("saved_at", st.SavedAt),
		slog.Int("indicators", len(st.Indicators)),
		slog.Int("positions", len(st.Positions)))
	return nil
}

// ── event dispatch ──

// HandleEvent dispatches one event. Events arriving outside RUNNING are
// dropped and counted. Must be called from a single goroutine.
func (s *TradingStrategy) HandleEvent(ev model.Event) {
	if s.lc.State() != LifecycleRunning {
		if s.met != nil {
			s.met.EventsDropped.Inc()
		}
		s.log.Debug("event dropped: strategy not running",
			slog.String("state", string(s.lc.State())))
		return
	}

	switch e := ev.(type) {
	case model.TickEvent:
		s.countDispatch("tick")
		if s.met != nil {
			s.met.TicksProcessed.Inc()
		}
		s.rtr.DispatchTick(e.Tick)
		s.logic.OnTick(s.ctx, e.Tick)

	case model.BarEvent:
		s.countDispatch("bar")
		if s.met != nil {
			s.met.BarsProcessed.Inc()
		}
		start := time.Now()
		s.rtr.DispatchBar(e.BarType, e.Bar)
		s.logic.OnBar(s.ctx, e.BarType, e.Bar)
		if s.met != nil {
			s.met.DecisionDur.Observe(time.Since(start).Seconds())
		}

	case model.InstrumentEvent:
		s.countDispatch("instrument")
		s.rtr.DispatchInstrument(e.Instrument)
		s.logic.OnInstrument(s.ctx, e.Instrument)

	case model.OrderEvent:
		s.countDispatch("order")
		s.handleOrderEvent(e)

	default:
		if s.met != nil {
			s.met.EventsDropped.Inc()
		}
		s.log.Warn("unknown event kind dropped", slog.Int("kind", int(ev.Kind())))
	}
}

func (s *TradingStrategy) handleOrderEvent(ev model.OrderEvent) {
	o, err := s.orders.Apply(ev)
	if err != nil {
		return // unknown order, already logged
	}

	// A rejection anywhere in a bundle leaves the position unprotected or
	// half-built: cancel the bundle's remaining working orders and flatten
	// whatever filled. Resubmission is never attempted.
	if ev.Type == model.OrderRejected {
		s.flattenAfterReject(o)
	}

	s.logic.OnOrderEvent(s.ctx, ev, o)
}

func (s *TradingStrategy) flattenAfterReject(rejected *order.Order) {
	s.log.Warn("order rejected, flattening position",
		slog.String("order_id", rejected.ID),
		slog.String("purpose", string(rejected.Purpose)),
		slog.String("position_id", rejected.PositionID))

	for _, o := range s.orders.WorkingOrders() {
		if o.PositionID == rejected.PositionID {
			if err := s.ctx.CancelOrder(o.ID); err != nil {
				s.log.Warn("cancel after reject failed",
					slog.String("order_id", o.ID), slog.Any("error", err))
			}
		}
	}

	if p, ok := s.orders.Book().Position(rejected.PositionID); ok && p.IsOpen() {
		if err := s.ctx.FlattenPosition(p); err != nil {
			s.log.Error("flatten after reject failed",
				slog.String("position_id", p.ID), slog.Any("error", err))
		}
	}
}

func (s *TradingStrategy) countDispatch(kind string) {
	if s.met != nil {
		s.met.EventsDispatched.WithLabelValues(kind).Inc()
	}
}
