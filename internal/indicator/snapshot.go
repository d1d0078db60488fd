package indicator

import "fmt"

// Snapshot holds the serialized state of a single indicator instance.
// One struct covers all indicator types; unused fields are omitted.
type Snapshot struct {
	Type   string `json:"type"`   // "EMA", "ATR", "SPREAD"
	Period int    `json:"period"` // indicator period

	Count   int     `json:"count"`
	Current float64 `json:"current"`
	Sum     float64 `json:"sum,omitempty"`

	// EMA fields
	Multiplier float64 `json:"multiplier,omitempty"`

	// ATR fields
	PrevClose float64 `json:"prev_close,omitempty"`

	// Spread analyzer window
	Buf []float64 `json:"buf,omitempty"`
	Idx int       `json:"idx,omitempty"`
}

// Restore rebuilds indicator state from snapshots, matching each snapshot
// to its indicator by position. Indicators and snapshots must line up in
// registration order; a type mismatch is an error (the saved state does
// not belong to this configuration).
func Restore(indicators []Snapshottable, snaps []Snapshot) error {
	if len(indicators) != len(snaps) {
		return fmt.Errorf("snapshot count mismatch: have %d indicators, %d snapshots", len(indicators), len(snaps))
	}
	for i, ind := range indicators {
		if snaps[i].Type != ind.Name() {
			return fmt.Errorf("snapshot %d type mismatch: %s != %s", i, snaps[i].Type, ind.Name())
		}
		if err := ind.RestoreFromSnapshot(snaps[i]); err != nil {
			return fmt.Errorf("restore %s: %w", ind.Name(), err)
		}
	}
	return nil
}
