package indicator

import (
	"math"

	"strategy-enginev1/internal/model"
)

// ATR calculates the Average True Range using Wilder's smoothing method.
// Update is O(1) per bar — no history scans.
type ATR struct {
	period    int
	count     int
	prevClose float64
	sum       float64
	current   float64
}

// NewATR creates a new ATR indicator with the given period (typically 14-20).
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string { return "ATR" }

func (a *ATR) Update(bar model.Bar) {
	high := bar.High.Float()
	low := bar.Low.Float()
	close := bar.Close.Float()
	a.count++

	// True range: max(high-low, |high-prevClose|, |low-prevClose|).
	// The first bar has no previous close, so TR is just the bar range.
	tr := high - low
	if a.count > 1 {
		tr = math.Max(tr, math.Abs(high-a.prevClose))
		tr = math.Max(tr, math.Abs(low-a.prevClose))
	}
	a.prevClose = close

	if a.count <= a.period {
		// Accumulation phase: build the initial average
		a.sum += tr
		if a.count == a.period {
			a.current = a.sum / float64(a.period)
		}
		return
	}

	// Wilder's smoothing: ATR = (prevATR * (period-1) + TR) / period
	p := float64(a.period)
	a.current = (a.current*(p-1) + tr) / p
}

func (a *ATR) Value() float64 { return a.current }
func (a *ATR) Ready() bool    { return a.count >= a.period }

// Reset clears the ATR state for reuse.
func (a *ATR) Reset() {
	a.count = 0
	a.prevClose = 0
	a.sum = 0
	a.current = 0
}

// Snapshot serializes the ATR state for checkpoint persistence.
func (a *ATR) Snapshot() Snapshot {
	return Snapshot{
		Type:      "ATR",
		Period:    a.period,
		Count:     a.count,
		PrevClose: a.prevClose,
		Sum:       a.sum,
		Current:   a.current,
	}
}

// RestoreFromSnapshot restores ATR state from a checkpoint.
func (a *ATR) RestoreFromSnapshot(snap Snapshot) error {
	a.period = snap.Period
	a.count = snap.Count
	a.prevClose = snap.PrevClose
	a.sum = snap.Sum
	a.current = snap.Current
	return nil
}
