// Package indicator provides technical indicator calculations over bar data.
//
// All indicators implement the Indicator interface, receiving bars and
// producing float64 values. An indicator's Value is only meaningful once
// Ready reports true (warm-up complete); strategies must not act before
// every registered indicator is ready.
package indicator

import "strategy-enginev1/internal/model"

// Indicator is the interface for all bar-driven technical indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "ATR").
	Name() string

	// Update feeds a new bar and recalculates. Called exactly once per
	// bar event, in arrival order.
	Update(bar model.Bar)

	// Value returns the current calculated value in quote-currency units.
	// Returns 0 if not enough data.
	Value() float64

	// Ready returns true when the warm-up count has been reached.
	Ready() bool

	// Reset clears internal state back to warm-up-pending.
	Reset()
}

// Snapshottable is implemented by indicators and analyzers that support
// state serialization for save/load round-trips. It is deliberately not
// tied to Indicator: tick-driven analyzers snapshot the same way.
type Snapshottable interface {
	Name() string
	Snapshot() Snapshot
	RestoreFromSnapshot(snap Snapshot) error
}
