package router

import "strategy-enginev1/internal/model"

// TickWindow is a bounded recent-history buffer of ticks for one symbol.
// Appends evict the oldest entry once capacity is reached. Index 0 is the
// most recent tick, matching how strategies reference "the last tick".
type TickWindow struct {
	buf   []model.Tick
	head  int // next write position
	count int
}

// NewTickWindow creates a window with the given capacity (minimum 1).
func NewTickWindow(capacity int) *TickWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &TickWindow{buf: make([]model.Tick, capacity)}
}

// Push appends a tick, evicting the oldest when full.
func (w *TickWindow) Push(t model.Tick) {
	w.buf[w.head] = t
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// At returns the i-th most recent tick (0 = latest).
func (w *TickWindow) At(i int) (model.Tick, bool) {
	if i < 0 || i >= w.count {
		return model.Tick{}, false
	}
	idx := (w.head - 1 - i + 2*len(w.buf)) % len(w.buf)
	return w.buf[idx], true
}

// Len returns the number of buffered ticks.
func (w *TickWindow) Len() int { return w.count }

// Clear empties the window without releasing the buffer.
func (w *TickWindow) Clear() {
	w.head = 0
	w.count = 0
}

// BarWindow is a bounded recent-history buffer of bars for one bar type.
// Identical eviction and indexing semantics to TickWindow.
type BarWindow struct {
	buf   []model.Bar
	head  int
	count int
}

// NewBarWindow creates a window with the given capacity (minimum 1).
func NewBarWindow(capacity int) *BarWindow {
	if capacity < 1 {
		capacity = 1
	}
	return &BarWindow{buf: make([]model.Bar, capacity)}
}

// Push appends a bar, evicting the oldest when full.
func (w *BarWindow) Push(b model.Bar) {
	w.buf[w.head] = b
	w.head = (w.head + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

// At returns the i-th most recent bar (0 = latest).
func (w *BarWindow) At(i int) (model.Bar, bool) {
	if i < 0 || i >= w.count {
		return model.Bar{}, false
	}
	idx := (w.head - 1 - i + 2*len(w.buf)) % len(w.buf)
	return w.buf[idx], true
}

// Len returns the number of buffered bars.
func (w *BarWindow) Len() int { return w.count }

// Clear empties the window without releasing the buffer.
func (w *BarWindow) Clear() {
	w.head = 0
	w.count = 0
}
