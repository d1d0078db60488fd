package indicator

import "strategy-enginev1/internal/model"

// defaultSpreadWindow is the number of recent spreads averaged when no
// explicit window is configured.
const defaultSpreadWindow = 100

// SpreadAnalyzer tracks the average bid/ask spread over a rolling window
// of ticks. It is tick-driven, unlike the bar-driven indicators, and is
// updated from the strategy's tick handler.
type SpreadAnalyzer struct {
	window  int
	buf     []float64 // preallocated circular buffer
	idx     int
	count   int
	sum     float64
	current float64
}

// NewSpreadAnalyzer creates a spread analyzer. window <= 0 selects the
// default window size.
func NewSpreadAnalyzer(window int) *SpreadAnalyzer {
	if window <= 0 {
		window = defaultSpreadWindow
	}
	return &SpreadAnalyzer{
		window: window,
		buf:    make([]float64, window),
	}
}

func (s *SpreadAnalyzer) Name() string { return "SPREAD" }

// Update feeds a new tick's spread into the rolling window.
func (s *SpreadAnalyzer) Update(tick model.Tick) {
	spread := tick.Spread().Float()

	if s.count >= s.window {
		// Subtract the oldest value being overwritten
		s.sum -= s.buf[s.idx]
	}

	s.buf[s.idx] = spread
	s.sum += spread
	s.idx = (s.idx + 1) % s.window
	s.count++

	n := s.count
	if n > s.window {
		n = s.window
	}
	s.current = s.sum / float64(n)
}

// Average returns the average spread in quote-currency units.
// Returns 0 before any tick has been seen.
func (s *SpreadAnalyzer) Average() float64 { return s.current }

// Ready returns true once at least one tick has been observed.
func (s *SpreadAnalyzer) Ready() bool { return s.count > 0 }

// Reset clears the analyzer state for reuse.
func (s *SpreadAnalyzer) Reset() {
	s.idx = 0
	s.count = 0
	s.sum = 0
	s.current = 0
	for i := range s.buf {
		s.buf[i] = 0
	}
}

// Snapshot serializes the analyzer state for checkpoint persistence.
func (s *SpreadAnalyzer) Snapshot() Snapshot {
	bufCopy := make([]float64, len(s.buf))
	copy(bufCopy, s.buf)
	return Snapshot{
		Type:    "SPREAD",
		Period:  s.window,
		Buf:     bufCopy,
		Idx:     s.idx,
		Count:   s.count,
		Sum:     s.sum,
		Current: s.current,
	}
}

// RestoreFromSnapshot restores analyzer state from a checkpoint.
func (s *SpreadAnalyzer) RestoreFromSnapshot(snap Snapshot) error {
	s.window = snap.Period
	s.idx = snap.Idx
	s.count = snap.Count
	s.sum = snap.Sum
	s.current = snap.Current
	if len(snap.Buf) > 0 {
		s.buf = make([]float64, len(snap.Buf))
		copy(s.buf, snap.Buf)
	} else {
		s.buf = make([]float64, snap.Period)
	}
	return nil
}
