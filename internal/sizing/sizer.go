// Package sizing converts account and risk parameters into order
// quantities. Sizers are pure: equal inputs always produce equal outputs,
// and degenerate inputs produce a zero quantity, never an error. Callers
// must treat zero as "do not trade".
package sizing

import (
	"math"

	"strategy-enginev1/internal/model"
)

// Input carries every parameter of one sizing calculation.
type Input struct {
	Equity           int64       // free equity in account-currency points
	ExchangeRate     float64     // quote currency -> account currency
	RiskBp           float64     // risk per trade in basis points of equity
	PriceEntry       model.Price // expected entry price
	PriceStopLoss    model.Price // protective stop price
	CommissionRateBp float64     // round-trip commission in basis points of entry
	HardLimit        int64       // absolute quantity cap (0 = no cap)
	UnitBatchSize    int64       // quantity rounded down to a multiple of this
}

// FixedRiskSizer computes the quantity such that the capital lost between
// entry and stop-loss (plus commission) does not exceed RiskBp basis
// points of equity.
type FixedRiskSizer struct {
	instrument model.Instrument
}

// NewFixedRiskSizer creates a sizer for the given instrument.
func NewFixedRiskSizer(instrument model.Instrument) *FixedRiskSizer {
	return &FixedRiskSizer{instrument: instrument}
}

// Calculate returns the tradable quantity for the given inputs.
// Returns 0 for insufficient equity or a non-positive entry-stop distance.
func (s *FixedRiskSizer) Calculate(in Input) int64 {
	if in.Equity <= 0 || in.ExchangeRate <= 0 || in.RiskBp <= 0 {
		return 0
	}

	riskPoints := (in.PriceEntry - in.PriceStopLoss).Abs().Float()
	if riskPoints <= 0 {
		return 0
	}

	// Money at risk in account currency.
	riskMoney := model.Price(in.Equity).Float() * in.RiskBp / 10000.0

	// Per-unit loss if the stop is hit: price distance plus round-trip
	// commission on the entry notional, converted to account currency.
	commissionPerUnit := in.PriceEntry.Float() * in.CommissionRateBp / 10000.0
	lossPerUnit := (riskPoints + commissionPerUnit) * in.ExchangeRate
	if lossPerUnit <= 0 {
		return 0
	}

	qty := int64(math.Floor(riskMoney / lossPerUnit))
	if in.HardLimit > 0 && qty > in.HardLimit {
		qty = in.HardLimit
	}
	if in.UnitBatchSize > 1 {
		qty = (qty / in.UnitBatchSize) * in.UnitBatchSize
	}
	if qty < 0 {
		return 0
	}
	return qty
}
