package order

import (
	"errors"
	"log/slog"
	"time"

	"strategy-enginev1/internal/metrics"
	"strategy-enginev1/internal/model"
)

var (
	ErrDuplicateOrder = errors.New("order already registered")
	ErrUnknownOrder   = errors.New("order not found")
	ErrNotInitialized = errors.New("order not in INITIALIZED state")
)

// Manager tracks every order owned by one strategy instance and applies
// confirmation events deterministically. Invariant violations (over-fill,
// transitions on terminal orders, modification of non-working orders) are
// reported to the observability collaborator and the offending command
// rejected; the strategy instance keeps running.
type Manager struct {
	log *slog.Logger
	met *metrics.Metrics

	orders   map[string]*Order
	sequence []string // order IDs in registration order
	book     *PositionBook
}

// NewManager creates an empty manager.
func NewManager(log *slog.Logger, met *metrics.Metrics) *Manager {
	return &Manager{
		log:    log,
		met:    met,
		orders: make(map[string]*Order),
		book:   NewPositionBook(),
	}
}

// Book returns the position book derived from fills.
func (m *Manager) Book() *PositionBook { return m.book }

// Get returns the order for an ID.
func (m *Manager) Get(id string) (*Order, bool) {
	o, ok := m.orders[id]
	return o, ok
}

// SubmitAtomic registers all legs of an atomic order under the position ID
// and transitions them INITIALIZED -> SUBMITTED. The caller forwards the
// bundle to the execution gateway after this succeeds.
func (m *Manager) SubmitAtomic(ao AtomicOrder, positionID string) error {
	legs := ao.Orders()
	for _, o := range legs {
		if _, ok := m.orders[o.ID]; ok {
			return ErrDuplicateOrder
		}
		if o.State != StateInitialized {
			m.reportViolation("submit_non_initialized", o.ID, string(o.State))
			return ErrNotInitialized
		}
	}
	for _, o := range legs {
		m.register(o, positionID)
	}
	return nil
}

// Submit registers a single order (e.g. a flattening market order) under
// the position ID and transitions it INITIALIZED -> SUBMITTED.
func (m *Manager) Submit(o *Order, positionID string) error {
	if _, ok := m.orders[o.ID]; ok {
		return ErrDuplicateOrder
	}
	if o.State != StateInitialized {
		m.reportViolation("submit_non_initialized", o.ID, string(o.State))
		return ErrNotInitialized
	}
	m.register(o, positionID)
	return nil
}

func (m *Manager) register(o *Order, positionID string) {
	o.PositionID = positionID
	o.State = StateSubmitted
	o.UpdatedAt = time.Now().UTC()
	m.orders[o.ID] = o
	m.sequence = append(m.sequence, o.ID)
}

// CanModify reports whether a modification request may be issued for the
// order. A request against a non-working order is a no-op with a surfaced
// warning, never a crash.
func (m *Manager) CanModify(orderID string) bool {
	o, ok := m.orders[orderID]
	if !ok {
		m.reportViolation("modify_unknown_order", orderID, "")
		return false
	}
	if !o.IsWorking() {
		if m.log != nil {
			m.log.Warn("modify ignored: order not working",
				slog.String("order_id", orderID),
				slog.String("state", string(o.State)))
		}
		m.reportViolation("modify_non_working", orderID, string(o.State))
		return false
	}
	return true
}

// Apply transitions an order from a confirmation event. Unknown orders and
// transitions on terminal orders are data errors: logged, counted, and
// dropped, never fatal.
func (m *Manager) Apply(ev model.OrderEvent) (*Order, error) {
	o, ok := m.orders[ev.OrderID]
	if !ok {
		if m.log != nil {
			m.log.Warn("event for unknown order dropped",
				slog.String("order_id", ev.OrderID),
				slog.String("type", string(ev.Type)))
		}
		return nil, ErrUnknownOrder
	}
	if o.State.IsTerminal() {
		m.reportViolation("event_on_terminal_order", o.ID, string(ev.Type))
		return o, nil
	}

	switch ev.Type {
	case model.OrderAccepted:
		// Only SUBMITTED orders become WORKING. A late or duplicate accept
		// on a partially filled order must not reopen it to modification.
		if o.State != StateSubmitted {
			m.reportViolation("accept_non_submitted", o.ID, string(o.State))
			return o, nil
		}
		o.State = StateWorking

	case model.OrderRejected:
		o.State = StateRejected
		o.LeavesQty = 0
		if m.met != nil {
			m.met.OrdersRejected.Inc()
		}

	case model.OrderCancelled:
		o.State = StateCancelled
		o.LeavesQty = 0
		if m.met != nil {
			m.met.OrdersCancelled.Inc()
		}

	case model.OrderExpired:
		o.State = StateExpired
		o.LeavesQty = 0

	case model.OrderModified:
		if o.IsWorking() {
			if ev.Qty > 0 {
				o.Qty = ev.Qty
				o.LeavesQty = ev.Qty - o.FilledQty
			}
			if ev.Price > 0 {
				o.Price = ev.Price
			}
		} else {
			m.reportViolation("modified_non_working", o.ID, string(o.State))
		}

	case model.OrderFilled:
		m.applyFill(o, ev)

	default:
		if m.log != nil {
			m.log.Warn("unknown order event type dropped",
				slog.String("order_id", ev.OrderID),
				slog.String("type", string(ev.Type)))
		}
		return o, nil
	}

	o.UpdatedAt = ev.TS
	return o, nil
}

func (m *Manager) applyFill(o *Order, ev model.OrderEvent) {
	qty := ev.FillQty
	if qty <= 0 {
		m.reportViolation("fill_non_positive_qty", o.ID, "")
		return
	}
	if qty > o.LeavesQty {
		// Over-fill: quantity bookkeeping must sum correctly. Report and
		// cap at the remaining quantity so the position stays consistent.
		m.reportViolation("over_fill", o.ID, "")
		qty = o.LeavesQty
		if qty == 0 {
			return
		}
	}

	// Volume-weighted average fill price.
	total := o.FilledQty + qty
	o.AvgPrice = model.Price((int64(o.AvgPrice)*o.FilledQty + int64(ev.FillPrice)*qty) / total)
	o.FilledQty = total
	o.LeavesQty -= qty

	if o.LeavesQty == 0 {
		o.State = StateFilled
		if m.met != nil {
			m.met.OrdersFilled.Inc()
		}
	} else {
		o.State = StatePartiallyFilled
	}

	m.book.ApplyFill(o.PositionID, o.Symbol, o.Side, qty, ev.FillPrice)
}

// WorkingOrders returns all WORKING orders in registration order.
func (m *Manager) WorkingOrders() []*Order {
	out := make([]*Order, 0, len(m.sequence))
	for _, id := range m.sequence {
		if o := m.orders[id]; o.IsWorking() {
			out = append(out, o)
		}
	}
	return out
}

// OpenOrders returns orders that are neither terminal nor still local
// (SUBMITTED, WORKING, PARTIALLY_FILLED), in registration order.
func (m *Manager) OpenOrders() []*Order {
	out := make([]*Order, 0, len(m.sequence))
	for _, id := range m.sequence {
		o := m.orders[id]
		if !o.State.IsTerminal() && o.State != StateInitialized {
			out = append(out, o)
		}
	}
	return out
}

// WorkingStops returns WORKING stop-loss orders in registration order.
func (m *Manager) WorkingStops() []*Order {
	out := make([]*Order, 0, 2)
	for _, id := range m.sequence {
		if o := m.orders[id]; o.IsWorking() && o.Purpose == PurposeStopLoss {
			out = append(out, o)
		}
	}
	return out
}

// PositionForOrder returns the position opened under the same position ID
// as the order, if any.
func (m *Manager) PositionForOrder(orderID string) (*Position, bool) {
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false
	}
	return m.book.Position(o.PositionID)
}

func (m *Manager) reportViolation(kind, orderID, detail string) {
	if m.log != nil {
		m.log.Warn("order invariant violation",
			slog.String("kind", kind),
			slog.String("order_id", orderID),
			slog.String("detail", detail))
	}
	if m.met != nil {
		m.met.InvariantViolations.WithLabelValues(kind).Inc()
	}
}
