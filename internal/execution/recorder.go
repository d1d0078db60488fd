package execution

import (
	"log/slog"

	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

// Recorder taps the dispatched event stream and journals every fill.
// Journaling is best-effort: a write failure is logged, never propagated
// into the trading path.
type Recorder struct {
	journal  *Journal
	orders   *order.Manager
	strategy string
	log      *slog.Logger

	// OnError, when set, observes journal write failures (health flag).
	OnError func(err error)
}

// NewRecorder creates a recorder journaling fills for one strategy.
func NewRecorder(journal *Journal, orders *order.Manager, strategyID string, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		journal:  journal,
		orders:   orders,
		strategy: strategyID,
		log:      log,
	}
}

// Observe inspects one dispatched event. Intended as a runner OnEvent tap,
// running after the strategy handled the event so the order manager
// already reflects the fill.
func (r *Recorder) Observe(ev model.Event) {
	oe, ok := ev.(model.OrderEvent)
	if !ok || oe.Type != model.OrderFilled {
		return
	}

	f := Fill{
		OrderID:  oe.OrderID,
		Strategy: r.strategy,
		Symbol:   oe.Symbol,
		Qty:      oe.FillQty,
		Price:    int64(oe.FillPrice),
		FilledAt: timestamp(oe.TS),
	}
	if o, ok := r.orders.Get(oe.OrderID); ok {
		f.PositionID = o.PositionID
		f.Side = string(o.Side)
		f.Purpose = string(o.Purpose)
	}

	if err := r.journal.RecordFill(f); err != nil {
		r.log.Error("fill journaling failed",
			slog.String("order_id", oe.OrderID), slog.Any("error", err))
		if r.OnError != nil {
			r.OnError(err)
		}
	}
}
