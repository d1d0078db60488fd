package strategy

import (
	"errors"
	"fmt"
	"log/slog"

	"strategy-enginev1/internal/indicator"
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
	"strategy-enginev1/internal/sizing"
)

// defaultCommissionRateBp is the round-trip commission assumed by the
// sizer when none is configured.
const defaultCommissionRateBp = 0.15

// EMACrossConfig parameterizes the EMA cross logic. Validation happens at
// construction: a config outside its domain never produces an instance.
type EMACrossConfig struct {
	Symbol  string
	BarSpec model.BarSpec

	FastPeriod int
	SlowPeriod int
	ATRPeriod  int

	ATRMultiple      float64 // stop distance in ATRs
	RiskBp           float64 // risk per trade in basis points of equity
	CommissionRateBp float64 // 0 selects the default
	HardLimit        int64   // absolute quantity cap, 0 = none
	UnitBatchSize    int64   // 0 falls back to the instrument lot size
}

// Validate checks every parameter domain.
func (c EMACrossConfig) Validate() error {
	if c.Symbol == "" {
		return errors.New("ema cross: symbol required")
	}
	if c.BarSpec.Step <= 0 {
		return errors.New("ema cross: bar step must be positive")
	}
	if c.FastPeriod <= 0 {
		return errors.New("ema cross: fast period must be positive")
	}
	if c.SlowPeriod <= c.FastPeriod {
		return fmt.Errorf("ema cross: slow period %d must exceed fast period %d", c.SlowPeriod, c.FastPeriod)
	}
	if c.ATRPeriod <= 0 {
		return errors.New("ema cross: atr period must be positive")
	}
	if c.ATRMultiple <= 0 {
		return errors.New("ema cross: atr multiple must be positive")
	}
	if c.RiskBp <= 0 {
		return errors.New("ema cross: risk bp must be positive")
	}
	if c.CommissionRateBp < 0 {
		return errors.New("ema cross: commission rate bp must not be negative")
	}
	return nil
}

// EMACross trades a fast/slow EMA cross with a market entry, an ATR
// protective stop trailed bar by bar, and a 1R take-profit. One position
// at a time: entries are gated on being flat with no open orders.
type EMACross struct {
	cfg EMACrossConfig

	fast   *indicator.EMA
	slow   *indicator.EMA
	atr    *indicator.ATR
	spread *indicator.SpreadAnalyzer
	trail  *trailingStop

	barType model.BarType
	sizer   *sizing.FixedRiskSizer
}

// NewEMACross validates the config and builds the logic with its
// indicators.
func NewEMACross(cfg EMACrossConfig) (*EMACross, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.CommissionRateBp == 0 {
		cfg.CommissionRateBp = defaultCommissionRateBp
	}

	atr := indicator.NewATR(cfg.ATRPeriod)
	spread := indicator.NewSpreadAnalyzer(0)
	return &EMACross{
		cfg:     cfg,
		fast:    indicator.NewEMA(cfg.FastPeriod),
		slow:    indicator.NewEMA(cfg.SlowPeriod),
		atr:     atr,
		spread:  spread,
		trail:   newTrailingStop(atr, spread, cfg.ATRMultiple),
		barType: model.BarType{Symbol: cfg.Symbol, Spec: cfg.BarSpec},
	}, nil
}

func (e *EMACross) Name() string { return "EMACross" }

// Register declares the bar indicators, the tick-driven spread analyzer,
// and the instrument watch. Registration order fixes update order.
func (e *EMACross) Register(s *TradingStrategy) {
	s.RegisterIndicatorBars(e.barType, e.fast)
	s.RegisterIndicatorBars(e.barType, e.slow)
	s.RegisterIndicatorBars(e.barType, e.atr)
	s.RegisterSpreadTicks(e.cfg.Symbol, e.spread)
	s.WatchInstrument(e.cfg.Symbol)
}

func (e *EMACross) OnStart(c *Context) {
	e.sizer = sizing.NewFixedRiskSizer(c.Instrument)
	c.Log.Info("ema cross started",
		slog.String("symbol", e.cfg.Symbol),
		slog.Int("fast", e.cfg.FastPeriod),
		slog.Int("slow", e.cfg.SlowPeriod),
		slog.Int("atr", e.cfg.ATRPeriod))
}

func (e *EMACross) OnTick(c *Context, t model.Tick) {}

func (e *EMACross) OnBar(c *Context, bt model.BarType, b model.Bar) {
	if bt.Key() != e.barType.Key() {
		return
	}
	if !e.fast.Ready() || !e.slow.Ready() || !e.atr.Ready() {
		c.Log.Debug("warming up indicators",
			slog.Bool("fast", e.fast.Ready()),
			slog.Bool("slow", e.slow.Ready()),
			slog.Bool("atr", e.atr.Ready()))
		return
	}
	// No entry without a quote: sizing and entry prices come off the book.
	if !c.Router.HasTicks(e.cfg.Symbol) {
		c.Log.Warn("no ticks buffered, skipping decision", slog.String("symbol", e.cfg.Symbol))
		return
	}

	if c.Orders.Book().IsFlat(e.cfg.Symbol) && len(c.Orders.OpenOrders()) == 0 {
		if e.fast.Value() >= e.slow.Value() {
			e.enter(c, order.SideBuy, b)
		} else {
			e.enter(c, order.SideSell, b)
		}
		return
	}

	e.trail.apply(c, b)
}

func (e *EMACross) enter(c *Context, side order.Side, b model.Bar) {
	equity, err := c.Account.FreeEquity()
	if err != nil {
		c.Log.Warn("equity unavailable, abstaining", slog.Any("error", err))
		return
	}
	rate, err := c.Account.ExchangeRate(c.Instrument.QuoteCurrency)
	if err != nil {
		c.Log.Warn("exchange rate unavailable, abstaining", slog.Any("error", err))
		return
	}
	tick, ok := c.Router.LastTick(e.cfg.Symbol)
	if !ok {
		return
	}

	offset := e.atr.Value() * e.cfg.ATRMultiple
	var entry, stop model.Price
	if side == order.SideBuy {
		entry = tick.Ask
		stop = model.PriceFromFloat(b.Low.Float() - offset)
	} else {
		entry = tick.Bid
		// The short stop triggers off the ask, so pad by the average spread.
		stop = model.PriceFromFloat(b.High.Float() + offset + e.spread.Average())
	}
	// 1R take-profit: same distance as the initial stop.
	takeProfit := entry + (entry - stop)

	batch := e.cfg.UnitBatchSize
	if batch == 0 {
		batch = c.Instrument.LotSize
	}
	qty := e.sizer.Calculate(sizing.Input{
		Equity:           equity,
		ExchangeRate:     rate,
		RiskBp:           e.cfg.RiskBp,
		PriceEntry:       entry,
		PriceStopLoss:    stop,
		CommissionRateBp: e.cfg.CommissionRateBp,
		HardLimit:        e.cfg.HardLimit,
		UnitBatchSize:    batch,
	})
	if qty == 0 {
		if c.Metrics != nil {
			c.Metrics.SizingAbstained.Inc()
		}
		c.Log.Info("sizer returned zero quantity, abstaining",
			slog.String("side", string(side)),
			slog.String("entry", entry.String()),
			slog.String("stop", stop.String()))
		return
	}

	ao := c.Factory.AtomicMarket(e.cfg.Symbol, side, qty, stop, takeProfit)
	positionID := c.Factory.GeneratePositionID()
	if err := c.SubmitAtomic(ao, positionID); err != nil {
		c.Log.Error("entry submission failed",
			slog.String("position_id", positionID), slog.Any("error", err))
		return
	}
	c.Log.Info("entry submitted",
		slog.String("position_id", positionID),
		slog.String("side", string(side)),
		slog.Int64("qty", qty),
		slog.String("entry", entry.String()),
		slog.String("stop", stop.String()),
		slog.String("take_profit", takeProfit.String()))
}

func (e *EMACross) OnInstrument(c *Context, inst model.Instrument) {
	if inst.Symbol == e.cfg.Symbol {
		e.sizer = sizing.NewFixedRiskSizer(inst)
	}
}

func (e *EMACross) OnOrderEvent(c *Context, ev model.OrderEvent, o *order.Order) {}

// OnStop closes whatever is still open; the framework has already
// cancelled working orders.
func (e *EMACross) OnStop(c *Context) {
	for _, p := range c.Orders.Book().OpenPositions() {
		if err := c.FlattenPosition(p); err != nil {
			c.Log.Error("close on stop failed",
				slog.String("position_id", p.ID), slog.Any("error", err))
		}
	}
}

func (e *EMACross) OnReset(c *Context)   {}
func (e *EMACross) OnDispose(c *Context) {}

func (e *EMACross) OnSave(c *Context) map[string]string { return nil }

func (e *EMACross) OnLoad(c *Context, saved map[string]string) {}
