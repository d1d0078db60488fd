// Package gateway defines the collaborator ports the strategy core
// consumes: execution, market data, account, and state persistence. The
// core never blocks on I/O through these ports; submission, modification,
// and data requests are fire-and-forget commands whose confirmations come
// back as ordinary dispatched events.
package gateway

import (
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

// ExecutionGateway consumes order commands and produces confirmation
// events fed back into the strategy's event queue.
type ExecutionGateway interface {
	// SubmitAtomic submits an atomic bundle under a position ID.
	SubmitAtomic(ao order.AtomicOrder, positionID string) error

	// Submit submits a single order under a position ID.
	Submit(o *order.Order, positionID string) error

	// Modify requests a new quantity and price for a working order.
	Modify(orderID string, qty int64, price model.Price) error

	// Cancel requests cancellation of a working order.
	Cancel(orderID string) error
}

// MarketDataGateway produces tick/bar/instrument events and consumes
// subscription and historical-data commands.
type MarketDataGateway interface {
	SubscribeTicks(symbol string) error
	UnsubscribeTicks(symbol string) error
	SubscribeBars(bt model.BarType) error
	UnsubscribeBars(bt model.BarType) error
	SubscribeInstrument(symbol string) error
	UnsubscribeInstrument(symbol string) error

	// RequestBars asks for a historical backfill of the bar type; the
	// bars arrive as ordinary bar events.
	RequestBars(bt model.BarType) error

	// Instrument returns the current instrument definition.
	Instrument(symbol string) (model.Instrument, error)
}

// AccountProvider is a read-only equity and exchange-rate query. Calls are
// never retried by the core: a failure makes the current decision cycle
// abstain from trading.
type AccountProvider interface {
	// FreeEquity returns free equity in account-currency points.
	FreeEquity() (int64, error)

	// ExchangeRate returns the quote-currency -> account-currency rate.
	ExchangeRate(quoteCurrency string) (float64, error)
}

// StateStore persists opaque strategy state keyed by strategy identity.
type StateStore interface {
	// Save persists the state blob for the strategy ID.
	Save(strategyID string, state []byte) error

	// Load returns the saved blob, or nil, nil when none exists.
	Load(strategyID string) ([]byte, error)
}
