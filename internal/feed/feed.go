// Package feed adapts a broker websocket session to the gateway ports: it
// streams ticks, bars, and instrument updates into the strategy's event
// queue, forwards order commands, and answers account queries from the
// broker's pushed snapshots. One session covers market data and execution.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pquerna/otp/totp"

	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

// ErrNotConnected is returned by commands issued while the session is down.
var ErrNotConnected = errors.New("feed not connected")

// ErrNoAccountData is returned before the first account snapshot arrived.
var ErrNoAccountData = errors.New("no account snapshot received yet")

// Config configures the broker session.
type Config struct {
	URL        string // wss endpoint
	APIKey     string
	ClientCode string
	TOTPSecret string // base32 secret for session login

	DialTimeout    time.Duration // default 10s
	ReconnectMin   time.Duration // default 1s
	ReconnectMax   time.Duration // default 30s
	RequestTimeout time.Duration // default 5s, instrument lookups
}

func (c *Config) defaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ReconnectMin == 0 {
		c.ReconnectMin = time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
}

// Feed is the websocket broker adapter. It satisfies the execution,
// market data, and account ports.
type Feed struct {
	cfg  Config
	log  *slog.Logger
	post func(model.Event) error

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	// Tracked subscriptions, replayed on reconnect.
	tickSubs map[string]struct{}
	barSubs  map[string]model.BarType
	instSubs map[string]struct{}

	// Caches fed by inbound frames.
	instruments map[string]model.Instrument
	instPending map[string][]chan model.Instrument
	equity      int64
	rates       map[string]float64
	haveAccount bool

	// OnConnected, when set, observes connectivity changes (health flag).
	OnConnected func(connected bool)
}

// New creates a feed posting events through post (typically runner.Post).
func New(cfg Config, post func(model.Event) error, log *slog.Logger) *Feed {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Feed{
		cfg:         cfg,
		log:         log.With(slog.String("component", "feed")),
		post:        post,
		tickSubs:    make(map[string]struct{}),
		barSubs:     make(map[string]model.BarType),
		instSubs:    make(map[string]struct{}),
		instruments: make(map[string]model.Instrument),
		instPending: make(map[string][]chan model.Instrument),
		rates:       make(map[string]float64),
	}
}

// Run maintains the session until the context is cancelled: dial, login,
// replay subscriptions, read until failure, back off, repeat.
func (f *Feed) Run(ctx context.Context) {
	backoff := f.cfg.ReconnectMin
	for {
		if ctx.Err() != nil {
			return
		}

		if err := f.connect(ctx); err != nil {
			f.log.Warn("session connect failed",
				slog.Any("error", err),
				slog.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > f.cfg.ReconnectMax {
				backoff = f.cfg.ReconnectMax
			}
			continue
		}
		backoff = f.cfg.ReconnectMin

		err := f.readLoop(ctx)
		f.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		f.log.Warn("session lost, reconnecting", slog.Any("error", err))
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, f.cfg.DialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.cfg.URL, err)
	}

	code, err := totp.GenerateCode(f.cfg.TOTPSecret, time.Now())
	if err != nil {
		conn.Close()
		return fmt.Errorf("generate totp: %w", err)
	}
	login := command{
		Action:     "login",
		APIKey:     f.cfg.APIKey,
		ClientCode: f.cfg.ClientCode,
		TOTP:       code,
	}
	if err := conn.WriteJSON(login); err != nil {
		conn.Close()
		return fmt.Errorf("send login: %w", err)
	}

	var resp frame
	conn.SetReadDeadline(time.Now().Add(f.cfg.DialTimeout))
	if err := conn.ReadJSON(&resp); err != nil {
		conn.Close()
		return fmt.Errorf("read login response: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if resp.Type != frameLoginOK {
		conn.Close()
		return fmt.Errorf("login rejected: %s", resp.Reason)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()
	if f.OnConnected != nil {
		f.OnConnected(true)
	}
	f.log.Info("session established", slog.String("url", f.cfg.URL))

	return f.resubscribe()
}

// resubscribe replays every tracked subscription on a fresh session.
func (f *Feed) resubscribe() error {
	f.mu.Lock()
	ticks := make([]string, 0, len(f.tickSubs))
	for sym := range f.tickSubs {
		ticks = append(ticks, sym)
	}
	bars := make([]model.BarType, 0, len(f.barSubs))
	for _, bt := range f.barSubs {
		bars = append(bars, bt)
	}
	insts := make([]string, 0, len(f.instSubs))
	for sym := range f.instSubs {
		insts = append(insts, sym)
	}
	f.mu.Unlock()

	for _, sym := range ticks {
		if err := f.send(command{Action: "subscribe", Channel: "ticks", Symbol: sym}); err != nil {
			return err
		}
	}
	for _, bt := range bars {
		if err := f.send(command{Action: "subscribe", Channel: "bars", Symbol: bt.Symbol, BarSpec: bt.Spec.String()}); err != nil {
			return err
		}
	}
	for _, sym := range insts {
		if err := f.send(command{Action: "subscribe", Channel: "instrument", Symbol: sym}); err != nil {
			return err
		}
	}
	return nil
}

func (f *Feed) readLoop(ctx context.Context) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()

	// The watcher unblocks ReadJSON on cancellation and is released when
	// this connection's read loop returns, so reconnects do not accumulate
	// goroutines.
	done := make(chan struct{})
	defer close(done)
	go closeOnDone(ctx, done, conn)

	for {
		var fr frame
		if err := conn.ReadJSON(&fr); err != nil {
			return err
		}
		f.handleFrame(fr)
	}
}

func closeOnDone(ctx context.Context, done <-chan struct{}, conn io.Closer) {
	select {
	case <-ctx.Done():
		conn.Close()
	case <-done:
	}
}

func (f *Feed) handleFrame(fr frame) {
	switch fr.Type {
	case frameTick:
		f.postEvent(model.TickEvent{Tick: fr.tick()})

	case frameBar:
		bt, b, err := fr.bar()
		if err != nil {
			f.log.Warn("malformed bar frame dropped", slog.Any("error", err))
			return
		}
		f.postEvent(model.BarEvent{BarType: bt, Bar: b})

	case frameInstrument:
		inst := fr.instrument()
		f.mu.Lock()
		f.instruments[inst.Symbol] = inst
		waiting := f.instPending[inst.Symbol]
		delete(f.instPending, inst.Symbol)
		f.mu.Unlock()
		for _, ch := range waiting {
			ch <- inst
		}
		f.postEvent(model.InstrumentEvent{Instrument: inst})

	case frameOrder:
		f.postEvent(fr.orderEvent())

	case frameAccount:
		f.mu.Lock()
		f.equity = fr.Equity
		for cur, rate := range fr.Rates {
			f.rates[cur] = rate
		}
		f.haveAccount = true
		f.mu.Unlock()

	case frameError:
		f.log.Warn("broker error frame", slog.String("reason", fr.Reason))

	default:
		f.log.Warn("unknown frame type dropped", slog.String("type", fr.Type))
	}
}

func (f *Feed) postEvent(ev model.Event) {
	if err := f.post(ev); err != nil {
		f.log.Warn("event post failed", slog.Any("error", err))
	}
}

func (f *Feed) send(cmd command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected || f.conn == nil {
		return ErrNotConnected
	}
	if err := f.conn.WriteJSON(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Action, err)
	}
	return nil
}

// Connected reports whether a session is currently established.
func (f *Feed) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Feed) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
	if f.OnConnected != nil {
		f.OnConnected(v)
	}
}

// ── MarketDataGateway ──

func (f *Feed) SubscribeTicks(symbol string) error {
	f.mu.Lock()
	f.tickSubs[symbol] = struct{}{}
	f.mu.Unlock()
	return f.send(command{Action: "subscribe", Channel: "ticks", Symbol: symbol})
}

func (f *Feed) UnsubscribeTicks(symbol string) error {
	f.mu.Lock()
	delete(f.tickSubs, symbol)
	f.mu.Unlock()
	return f.send(command{Action: "unsubscribe", Channel: "ticks", Symbol: symbol})
}

func (f *Feed) SubscribeBars(bt model.BarType) error {
	f.mu.Lock()
	f.barSubs[bt.Key()] = bt
	f.mu.Unlock()
	return f.send(command{Action: "subscribe", Channel: "bars", Symbol: bt.Symbol, BarSpec: bt.Spec.String()})
}

func (f *Feed) UnsubscribeBars(bt model.BarType) error {
	f.mu.Lock()
	delete(f.barSubs, bt.Key())
	f.mu.Unlock()
	return f.send(command{Action: "unsubscribe", Channel: "bars", Symbol: bt.Symbol, BarSpec: bt.Spec.String()})
}

func (f *Feed) SubscribeInstrument(symbol string) error {
	f.mu.Lock()
	f.instSubs[symbol] = struct{}{}
	f.mu.Unlock()
	return f.send(command{Action: "subscribe", Channel: "instrument", Symbol: symbol})
}

func (f *Feed) UnsubscribeInstrument(symbol string) error {
	f.mu.Lock()
	delete(f.instSubs, symbol)
	f.mu.Unlock()
	return f.send(command{Action: "unsubscribe", Channel: "instrument", Symbol: symbol})
}

// RequestBars asks for a historical backfill; the broker replays the bars
// as ordinary bar frames.
func (f *Feed) RequestBars(bt model.BarType) error {
	return f.send(command{Action: "request_bars", Symbol: bt.Symbol, BarSpec: bt.Spec.String()})
}

// Instrument returns the cached definition, requesting it from the broker
// when not yet seen.
func (f *Feed) Instrument(symbol string) (model.Instrument, error) {
	f.mu.Lock()
	if inst, ok := f.instruments[symbol]; ok {
		f.mu.Unlock()
		return inst, nil
	}
	ch := make(chan model.Instrument, 1)
	f.instPending[symbol] = append(f.instPending[symbol], ch)
	f.mu.Unlock()

	if err := f.send(command{Action: "get_instrument", Symbol: symbol}); err != nil {
		return model.Instrument{}, err
	}
	select {
	case inst := <-ch:
		return inst, nil
	case <-time.After(f.cfg.RequestTimeout):
		return model.Instrument{}, fmt.Errorf("instrument %s: request timed out", symbol)
	}
}

// ── ExecutionGateway ──

// SubmitAtomic forwards all legs in one command; the broker treats them as
// a unit and confirms each leg separately.
func (f *Feed) SubmitAtomic(ao order.AtomicOrder, positionID string) error {
	cmd := command{Action: "order_submit_atomic", PositionID: positionID}
	for _, o := range ao.Orders() {
		cmd.Orders = append(cmd.Orders, orderPayload(o))
	}
	return f.send(cmd)
}

func (f *Feed) Submit(o *order.Order, positionID string) error {
	return f.send(command{
		Action:     "order_submit",
		PositionID: positionID,
		Orders:     []wireOrder{orderPayload(o)},
	})
}

func (f *Feed) Modify(orderID string, qty int64, price model.Price) error {
	return f.send(command{
		Action:  "order_modify",
		OrderID: orderID,
		Qty:     qty,
		Price:   int64(price),
	})
}

func (f *Feed) Cancel(orderID string) error {
	return f.send(command{Action: "order_cancel", OrderID: orderID})
}

// ── AccountProvider ──

// FreeEquity returns the last pushed account snapshot's free equity.
func (f *Feed) FreeEquity() (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.haveAccount {
		return 0, ErrNoAccountData
	}
	return f.equity, nil
}

// ExchangeRate returns the last pushed rate for the quote currency.
func (f *Feed) ExchangeRate(currency string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.haveAccount {
		return 0, ErrNoAccountData
	}
	if rate, ok := f.rates[currency]; ok {
		return rate, nil
	}
	return 0, fmt.Errorf("no exchange rate for %s", currency)
}

func orderPayload(o *order.Order) wireOrder {
	return wireOrder{
		ID:      o.ID,
		Symbol:  o.Symbol,
		Side:    string(o.Side),
		Type:    string(o.Type),
		Purpose: string(o.Purpose),
		Qty:     o.Qty,
		Price:   int64(o.Price),
	}
}
