package strategy

import (
	"log/slog"

	"strategy-enginev1/internal/indicator"
	"strategy-enginev1/internal/model"
)

// trailingStop ratchets working stop-loss orders in the position's favor
// on every completed bar. A candidate that would loosen the stop is
// suppressed, never sent: sell-side stops only move up, buy-side stops
// only move down.
type trailingStop struct {
	atr      *indicator.ATR
	spread   *indicator.SpreadAnalyzer
	multiple float64
}

func newTrailingStop(atr *indicator.ATR, spread *indicator.SpreadAnalyzer, multiple float64) *trailingStop {
	return &trailingStop{atr: atr, spread: spread, multiple: multiple}
}

// apply evaluates every working stop against the bar just completed.
func (t *trailingStop) apply(c *Context, bar model.Bar) {
	offset := t.atr.Value() * t.multiple

	for _, o := range c.Orders.WorkingStops() {
		var candidate model.Price
		var improves bool
		if o.IsSell() {
			// Protecting a long: trail below the low.
			candidate = model.PriceFromFloat(bar.Low.Float() - offset)
			improves = candidate > o.Price
		} else {
			// Protecting a short: trail above the high, padded by the
			// average spread since the stop triggers off the ask.
			candidate = model.PriceFromFloat(bar.High.Float() + offset + t.spread.Average())
			improves = candidate < o.Price
		}

		if !improves {
			if c.Metrics != nil {
				c.Metrics.StopModsSuppressed.Inc()
			}
			continue
		}

		if c.Metrics != nil {
			c.Metrics.StopModsRequested.Inc()
		}
		if err := c.ModifyOrder(o.ID, o.LeavesQty, candidate); err != nil {
			c.Log.Warn("trailing stop modify failed",
				slog.String("order_id", o.ID), slog.Any("error", err))
		}
	}
}
