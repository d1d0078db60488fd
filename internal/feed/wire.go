package feed

import (
	"time"

	"strategy-enginev1/internal/model"
)

// Inbound frame types.
const (
	frameLoginOK    = "login_ok"
	frameTick       = "tick"
	frameBar        = "bar"
	frameInstrument = "instrument"
	frameOrder      = "order"
	frameAccount    = "account"
	frameError      = "error"
)

// command is an outbound broker command. Unused fields are omitted from
// the wire.
type command struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	Symbol  string `json:"symbol,omitempty"`
	BarSpec string `json:"bar_spec,omitempty"`

	// login
	APIKey     string `json:"api_key,omitempty"`
	ClientCode string `json:"client_code,omitempty"`
	TOTP       string `json:"totp,omitempty"`

	// order commands
	PositionID string      `json:"position_id,omitempty"`
	OrderID    string      `json:"order_id,omitempty"`
	Qty        int64       `json:"qty,omitempty"`
	Price      int64       `json:"price,omitempty"`
	Orders     []wireOrder `json:"orders,omitempty"`
}

// wireOrder is the order leg payload within submit commands.
type wireOrder struct {
	ID      string `json:"id"`
	Symbol  string `json:"symbol"`
	Side    string `json:"side"`
	Type    string `json:"type"`
	Purpose string `json:"purpose"`
	Qty     int64  `json:"qty"`
	Price   int64  `json:"price,omitempty"`
}

// frame is an inbound broker frame. One flat struct covers every type;
// the Type field selects which fields are meaningful. Prices are scaled
// integer points on the wire, matching the core representation.
type frame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol,omitempty"`
	TS     int64  `json:"ts,omitempty"` // epoch milliseconds
	Reason string `json:"reason,omitempty"`

	// tick
	Bid      int64 `json:"bid,omitempty"`
	Ask      int64 `json:"ask,omitempty"`
	Last     int64 `json:"last,omitempty"`
	BidSize  int64 `json:"bid_size,omitempty"`
	AskSize  int64 `json:"ask_size,omitempty"`
	LastSize int64 `json:"last_size,omitempty"`

	// bar
	BarSpec string `json:"bar_spec,omitempty"`
	Open    int64  `json:"open,omitempty"`
	High    int64  `json:"high,omitempty"`
	Low     int64  `json:"low,omitempty"`
	Close   int64  `json:"close,omitempty"`
	Volume  int64  `json:"volume,omitempty"`

	// instrument
	TickSize      int64  `json:"tick_size,omitempty"`
	TickPrecision int    `json:"tick_precision,omitempty"`
	QuoteCurrency string `json:"quote_currency,omitempty"`
	LotSize       int64  `json:"lot_size,omitempty"`

	// order confirmation
	OrderEventType string `json:"order_event_type,omitempty"`
	OrderID        string `json:"order_id,omitempty"`
	FillQty        int64  `json:"fill_qty,omitempty"`
	FillPrice      int64  `json:"fill_price,omitempty"`
	Qty            int64  `json:"qty,omitempty"`
	Price          int64  `json:"price,omitempty"`

	// account snapshot
	Equity int64              `json:"equity,omitempty"`
	Rates  map[string]float64 `json:"rates,omitempty"`
}

func (fr frame) ts() time.Time {
	if fr.TS > 0 {
		return time.Unix(0, fr.TS*int64(time.Millisecond)).UTC()
	}
	return time.Now().UTC()
}

func (fr frame) tick() model.Tick {
	return model.Tick{
		Symbol:   fr.Symbol,
		Bid:      model.Price(fr.Bid),
		Ask:      model.Price(fr.Ask),
		Last:     model.Price(fr.Last),
		BidSize:  fr.BidSize,
		AskSize:  fr.AskSize,
		LastSize: fr.LastSize,
		TS:       fr.ts(),
	}
}

func (fr frame) bar() (model.BarType, model.Bar, error) {
	spec, err := model.ParseBarSpec(fr.BarSpec)
	if err != nil {
		return model.BarType{}, model.Bar{}, err
	}
	bt := model.BarType{Symbol: fr.Symbol, Spec: spec}
	b := model.Bar{
		TS:     fr.ts(),
		Open:   model.Price(fr.Open),
		High:   model.Price(fr.High),
		Low:    model.Price(fr.Low),
		Close:  model.Price(fr.Close),
		Volume: fr.Volume,
	}
	return bt, b, nil
}

func (fr frame) instrument() model.Instrument {
	return model.Instrument{
		Symbol:        fr.Symbol,
		TickSize:      model.Price(fr.TickSize),
		TickPrecision: fr.TickPrecision,
		QuoteCurrency: fr.QuoteCurrency,
		LotSize:       fr.LotSize,
	}
}

func (fr frame) orderEvent() model.OrderEvent {
	return model.OrderEvent{
		Type:      model.OrderEventType(fr.OrderEventType),
		OrderID:   fr.OrderID,
		Symbol:    fr.Symbol,
		FillQty:   fr.FillQty,
		FillPrice: model.Price(fr.FillPrice),
		Qty:       fr.Qty,
		Price:     model.Price(fr.Price),
		Reason:    fr.Reason,
		TS:        fr.ts(),
	}
}
