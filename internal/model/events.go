package model

import "time"

// EventKind discriminates the closed set of event variants flowing through
// a strategy's event queue. Dispatch is an explicit switch on Kind — new
// kinds require a new constant here, there is no open-ended type inspection.
type EventKind uint8

const (
	KindTick EventKind = iota
	KindBar
	KindInstrument
	KindOrder
)

// Event is the unit passed through the per-strategy event queue.
type Event interface {
	Kind() EventKind
}

// TickEvent wraps a tick update.
type TickEvent struct {
	Tick Tick
}

func (TickEvent) Kind() EventKind { return KindTick }

// BarEvent wraps a completed bar for a bar type.
type BarEvent struct {
	BarType BarType
	Bar     Bar
}

func (BarEvent) Kind() EventKind { return KindBar }

// InstrumentEvent wraps an instrument update. The receiving strategy
// atomically replaces its cached instrument copy.
type InstrumentEvent struct {
	Instrument Instrument
}

func (InstrumentEvent) Kind() EventKind { return KindInstrument }

// OrderEventType identifies a confirmation event from the execution gateway.
type OrderEventType string

const (
	OrderAccepted  OrderEventType = "ACCEPTED"
	OrderRejected  OrderEventType = "REJECTED"
	OrderCancelled OrderEventType = "CANCELLED"
	OrderExpired   OrderEventType = "EXPIRED"
	OrderModified  OrderEventType = "MODIFIED"
	OrderFilled    OrderEventType = "FILLED"
)

// OrderEvent is an asynchronous confirmation for a previously issued
// order command. Fill events may be partial; FillQty carries the fill
// quantity of this event only. Modified events carry the new working
// quantity and price in Qty/Price.
type OrderEvent struct {
	Type      OrderEventType `json:"type"`
	OrderID   string         `json:"order_id"`
	Symbol    string         `json:"symbol"`
	FillQty   int64          `json:"fill_qty,omitempty"`
	FillPrice Price          `json:"fill_price,omitempty"`
	Qty       int64          `json:"qty,omitempty"`
	Price     Price          `json:"price,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	TS        time.Time      `json:"ts"`
}

func (OrderEvent) Kind() EventKind { return KindOrder }
