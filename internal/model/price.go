package model

import (
	"math"
	"strconv"
)

// PriceScale is the fixed-point scale for all prices in the core.
// 1 price point = 1/PriceScale of the quote currency (5 decimal places,
// enough for FX pairs and equities alike). Prices are stored as int64
// points to avoid floating-point drift in comparisons and bookkeeping.
const PriceScale = 100000

// Price is a scaled integer price in points.
type Price int64

// Float converts the price to quote-currency units.
func (p Price) Float() float64 {
	return float64(p) / PriceScale
}

// PriceFromFloat converts quote-currency units to a scaled Price,
// rounding to the nearest point.
func PriceFromFloat(v float64) Price {
	return Price(math.Round(v * PriceScale))
}

// Abs returns the absolute price distance.
func (p Price) Abs() Price {
	if p < 0 {
		return -p
	}
	return p
}

// String formats the price in quote-currency units.
func (p Price) String() string {
	return strconv.FormatFloat(p.Float(), 'f', -1, 64)
}
