package strategy

import (
	"strings"
	"testing"
	"time"

	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

func TestState_EncodeDecodeRoundTrip(t *testing.T) {
	st := persistedState{
		Version:    stateVersion,
		StrategyID: "emacross-1",
		SavedAt:    time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC),
		OrderSeq:   7,
		PosSeq:     3,
		Positions: []order.Position{
			{ID: "001-P-3", Symbol: "NIFTY-FUT", Qty: 50, AvgEntry: model.PriceFromFloat(103.25)},
		},
		LastTicks: []model.Tick{
			{Symbol: "NIFTY-FUT", Bid: model.PriceFromFloat(103.20), Ask: model.PriceFromFloat(103.30)},
		},
		Custom: map[string]string{"regime": "trending"},
	}

	blob, err := encodeState(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeState(blob)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.OrderSeq != 7 || got.PosSeq != 3 {
		t.Errorf("counters: got %d/%d", got.OrderSeq, got.PosSeq)
	}
	if len(got.Positions) != 1 || got.Positions[0].Qty != 50 {
		t.Errorf("positions: got %+v", got.Positions)
	}
	if got.Custom["regime"] != "trending" {
		t.Errorf("custom: got %v", got.Custom)
	}
	if !got.SavedAt.Equal(st.SavedAt) {
		t.Errorf("saved at: got %v", got.SavedAt)
	}
}

func TestState_VersionMismatchRejected(t *testing.T) {
	st := persistedState{Version: stateVersion + 1, StrategyID: "emacross-1"}
	blob, err := encodeState(st)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := decodeState(blob); err == nil || !strings.Contains(err.Error(), "version") {
		t.Errorf("decode of future version: got %v, want version error", err)
	}
}

func TestState_GarbageRejected(t *testing.T) {
	if _, err := decodeState([]byte("not json")); err == nil {
		t.Error("garbage blob should fail to decode")
	}
}
