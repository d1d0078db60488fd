// Package order owns the order and position lifecycle for one strategy
// instance. Orders are created by the Factory, registered with the Manager
// on submission, and transitioned deterministically by confirmation events
// from the execution gateway. The strategy layer holds only order IDs.
//
// Designed for single-goroutine usage within one strategy instance —
// no locks needed.
package order

import (
	"time"

	"strategy-enginev1/internal/model"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the flattening side for this side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Purpose classifies an order's role within an atomic bundle.
type Purpose string

const (
	PurposeEntry      Purpose = "ENTRY"
	PurposeStopLoss   Purpose = "STOP_LOSS"
	PurposeTakeProfit Purpose = "TAKE_PROFIT"
	PurposeFlatten    Purpose = "FLATTEN"
)

// Type is the execution instruction.
type Type string

const (
	TypeMarket     Type = "MARKET"
	TypeLimit      Type = "LIMIT"
	TypeStopMarket Type = "STOP_MARKET"
)

// State is the order lifecycle state.
type State string

const (
	StateInitialized     State = "INITIALIZED"
	StateSubmitted       State = "SUBMITTED"
	StateWorking         State = "WORKING"
	StatePartiallyFilled State = "PARTIALLY_FILLED"
	StateFilled          State = "FILLED"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
	StateExpired         State = "EXPIRED"
)

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	switch s {
	case StateFilled, StateRejected, StateCancelled, StateExpired:
		return true
	default:
		return false
	}
}

// Order represents a single order owned by the Manager.
type Order struct {
	ID         string      `json:"id"`
	PositionID string      `json:"position_id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Type       Type        `json:"type"`
	Purpose    Purpose     `json:"purpose"`
	Qty        int64       `json:"qty"`
	LeavesQty  int64       `json:"leaves_qty"`
	FilledQty  int64       `json:"filled_qty"`
	Price      model.Price `json:"price"` // 0 for market orders
	AvgPrice   model.Price `json:"avg_price"`
	State      State       `json:"state"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// IsWorking reports whether the order rests at the gateway and may be
// modified. Per the lifecycle contract only WORKING orders accept
// modifications; a partially filled order no longer does.
func (o *Order) IsWorking() bool {
	return o.State == StateWorking
}

// IsBuy reports whether the order is on the buy side.
func (o *Order) IsBuy() bool { return o.Side == SideBuy }

// IsSell reports whether the order is on the sell side.
func (o *Order) IsSell() bool { return o.Side == SideSell }

// AtomicOrder groups one entry order with optional stop-loss and
// take-profit legs submitted and tracked as one unit. All legs share a
// position-scoped identifier once submitted.
type AtomicOrder struct {
	Entry      *Order
	StopLoss   *Order // may be nil
	TakeProfit *Order // may be nil
}

// Orders returns the non-nil legs, entry first.
func (a AtomicOrder) Orders() []*Order {
	out := make([]*Order, 0, 3)
	if a.Entry != nil {
		out = append(out, a.Entry)
	}
	if a.StopLoss != nil {
		out = append(out, a.StopLoss)
	}
	if a.TakeProfit != nil {
		out = append(out, a.TakeProfit)
	}
	return out
}
