package sizing

import (
	"testing"

	"strategy-enginev1/internal/model"
)

func baseInput() Input {
	return Input{
		Equity:        1_000_000 * model.PriceScale, // 1,000,000.00
		ExchangeRate:  1.0,
		RiskBp:        10, // 0.10% → 1000 at risk
		PriceEntry:    model.PriceFromFloat(100),
		PriceStopLoss: model.PriceFromFloat(98), // 2.00 risk points
	}
}

func sizer() *FixedRiskSizer {
	return NewFixedRiskSizer(model.Instrument{Symbol: "TEST", QuoteCurrency: "USD", LotSize: 1})
}

func TestCalculate_BasicRiskBound(t *testing.T) {
	// risk money = 1,000,000 * 10bp = 1000
	// loss per unit = 2.00 → qty = 500
	got := sizer().Calculate(baseInput())
	if got != 500 {
		t.Errorf("qty: got %d, want 500", got)
	}
}

func TestCalculate_CommissionReducesQty(t *testing.T) {
	in := baseInput()
	in.CommissionRateBp = 100 // 1% of 100 = 1.00 per unit
	// loss per unit = 2.00 + 1.00 = 3.00 → qty = floor(1000/3) = 333
	got := sizer().Calculate(in)
	if got != 333 {
		t.Errorf("qty with commission: got %d, want 333", got)
	}
}

func TestCalculate_ExchangeRateConversion(t *testing.T) {
	in := baseInput()
	in.ExchangeRate = 2.0 // each quote-currency unit costs double
	// loss per unit = 2.00 * 2.0 = 4.00 → qty = 250
	got := sizer().Calculate(in)
	if got != 250 {
		t.Errorf("qty with fx: got %d, want 250", got)
	}
}

func TestCalculate_HardLimitCaps(t *testing.T) {
	in := baseInput()
	in.HardLimit = 100
	got := sizer().Calculate(in)
	if got != 100 {
		t.Errorf("qty with hard limit: got %d, want 100", got)
	}
}

func TestCalculate_UnitBatchFloors(t *testing.T) {
	in := baseInput()
	in.UnitBatchSize = 200
	// raw 500 floors to 400
	got := sizer().Calculate(in)
	if got != 400 {
		t.Errorf("qty with batch 200: got %d, want 400", got)
	}

	in.UnitBatchSize = 600
	// raw 500 floors to 0: below one batch means no trade
	got = sizer().Calculate(in)
	if got != 0 {
		t.Errorf("qty below one batch: got %d, want 0", got)
	}
}

func TestCalculate_DegenerateInputsReturnZero(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Input)
	}{
		{"zero equity", func(in *Input) { in.Equity = 0 }},
		{"negative equity", func(in *Input) { in.Equity = -1 }},
		{"zero rate", func(in *Input) { in.ExchangeRate = 0 }},
		{"zero risk", func(in *Input) { in.RiskBp = 0 }},
		{"entry equals stop", func(in *Input) { in.PriceStopLoss = in.PriceEntry }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.mutate(&in)
			if got := sizer().Calculate(in); got != 0 {
				t.Errorf("got %d, want 0", got)
			}
		})
	}
}

func TestCalculate_Pure(t *testing.T) {
	s := sizer()
	in := baseInput()
	first := s.Calculate(in)
	for i := 0; i < 5; i++ {
		if got := s.Calculate(in); got != first {
			t.Fatalf("call %d: got %d, want %d (sizer must be pure)", i, got, first)
		}
	}
}

func TestCalculate_StopAboveEntryShortSide(t *testing.T) {
	// Short entries carry a stop above the entry; the distance is absolute.
	in := baseInput()
	in.PriceEntry = model.PriceFromFloat(98)
	in.PriceStopLoss = model.PriceFromFloat(100)
	got := sizer().Calculate(in)
	if got != 500 {
		t.Errorf("short-side qty: got %d, want 500", got)
	}
}
