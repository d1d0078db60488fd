package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Bar aggregation rules.
const (
	AggTick   = "TICK"
	AggSecond = "SECOND"
	AggMinute = "MINUTE"
	AggHour   = "HOUR"
)

// BarSpec identifies a bar aggregation rule, e.g. {1, MINUTE} or {100, TICK}.
type BarSpec struct {
	Step        int    `json:"step"`
	Aggregation string `json:"aggregation"`
}

// BarType is the (symbol, spec) pair used as the subscription key for
// bar streams.
type BarType struct {
	Symbol string  `json:"symbol"`
	Spec   BarSpec `json:"spec"`
}

// String formats the spec as "step-AGG", the wire form used in
// subscription commands.
func (s BarSpec) String() string {
	return strconv.Itoa(s.Step) + "-" + s.Aggregation
}

// ParseBarSpec parses the "step-AGG" wire form.
func ParseBarSpec(v string) (BarSpec, error) {
	step, agg, ok := strings.Cut(v, "-")
	if !ok {
		return BarSpec{}, fmt.Errorf("malformed bar spec %q", v)
	}
	n, err := strconv.Atoi(step)
	if err != nil || n <= 0 {
		return BarSpec{}, fmt.Errorf("malformed bar spec step %q", v)
	}
	return BarSpec{Step: n, Aggregation: agg}, nil
}

// Key returns the subscription key for this bar type: "SYM:step-AGG".
func (bt BarType) Key() string {
	return bt.Symbol + ":" + bt.Spec.String()
}

// Bar represents a timestamped OHLCV summary for a bar type.
// Immutable once emitted.
type Bar struct {
	TS     time.Time `json:"ts"` // bar close time (UTC)
	Open   Price     `json:"open"`
	High   Price     `json:"high"`
	Low    Price     `json:"low"`
	Close  Price     `json:"close"`
	Volume int64     `json:"volume"`
}
