package feed

import (
	"encoding/json"
	"testing"
	"time"

	"strategy-enginev1/internal/model"
)

func TestFrame_TickConversion(t *testing.T) {
	raw := `{"type":"tick","symbol":"NIFTY-FUT","ts":1724371200000,
		"bid":10299000,"ask":10301000,"last":10300000,
		"bid_size":150,"ask_size":200,"last_size":25}`

	var fr frame
	if err := json.Unmarshal([]byte(raw), &fr); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if fr.Type != frameTick {
		t.Fatalf("type: got %s", fr.Type)
	}

	tick := fr.tick()
	if tick.Symbol != "NIFTY-FUT" {
		t.Errorf("symbol: got %s", tick.Symbol)
	}
	if tick.Bid.Float() != 102.99 || tick.Ask.Float() != 103.01 {
		t.Errorf("quote: got %v/%v, want 102.99/103.01", tick.Bid.Float(), tick.Ask.Float())
	}
	if tick.BidSize != 150 || tick.LastSize != 25 {
		t.Errorf("sizes: bid=%d last=%d", tick.BidSize, tick.LastSize)
	}
	want := time.Unix(0, 1724371200000*int64(time.Millisecond)).UTC()
	if !tick.TS.Equal(want) {
		t.Errorf("ts: got %v, want %v", tick.TS, want)
	}
}

func TestFrame_BarConversion(t *testing.T) {
	fr := frame{
		Type:    frameBar,
		Symbol:  "NIFTY-FUT",
		BarSpec: "5-MINUTE",
		TS:      1724371200000,
		Open:    10200000,
		High:    10400000,
		Low:     10150000,
		Close:   10300000,
		Volume:  12345,
	}

	bt, b, err := fr.bar()
	if err != nil {
		t.Fatalf("bar: %v", err)
	}
	if bt.Key() != "NIFTY-FUT:5-MINUTE" {
		t.Errorf("bar type key: got %s", bt.Key())
	}
	if b.High.Float() != 104.0 || b.Low.Float() != 101.5 {
		t.Errorf("range: got %v/%v", b.High.Float(), b.Low.Float())
	}
	if b.Volume != 12345 {
		t.Errorf("volume: got %d", b.Volume)
	}
}

func TestFrame_BarConversion_MalformedSpec(t *testing.T) {
	fr := frame{Type: frameBar, Symbol: "NIFTY-FUT", BarSpec: "MINUTE"}
	if _, _, err := fr.bar(); err == nil {
		t.Error("malformed bar spec should error")
	}
}

func TestFrame_OrderEventConversion(t *testing.T) {
	fr := frame{
		Type:           frameOrder,
		Symbol:         "NIFTY-FUT",
		OrderEventType: "FILLED",
		OrderID:        "O-001-7",
		FillQty:        50,
		FillPrice:      10300000,
		TS:             1724371200000,
	}

	ev := fr.orderEvent()
	if ev.Type != model.OrderFilled {
		t.Errorf("type: got %s", ev.Type)
	}
	if ev.OrderID != "O-001-7" || ev.FillQty != 50 {
		t.Errorf("fill: id=%s qty=%d", ev.OrderID, ev.FillQty)
	}
	if ev.FillPrice != model.PriceFromFloat(103.0) {
		t.Errorf("fill price: got %v, want 103.0", ev.FillPrice.Float())
	}
}

func TestFrame_InstrumentConversion(t *testing.T) {
	fr := frame{
		Type:          frameInstrument,
		Symbol:        "NIFTY-FUT",
		TickSize:      5000, // 0.05 in points
		TickPrecision: 2,
		QuoteCurrency: "INR",
		LotSize:       50,
	}

	inst := fr.instrument()
	if inst.TickSize != model.PriceFromFloat(0.05) {
		t.Errorf("tick size: got %v, want 0.05", inst.TickSize.Float())
	}
	if inst.QuoteCurrency != "INR" || inst.LotSize != 50 {
		t.Errorf("instrument: %+v", inst)
	}
}

func TestFrame_MissingTimestampDefaultsToNow(t *testing.T) {
	fr := frame{Type: frameTick, Symbol: "NIFTY-FUT"}
	before := time.Now().UTC().Add(-time.Second)
	got := fr.tick().TS
	if got.Before(before) {
		t.Errorf("missing ts should default near now, got %v", got)
	}
}

func TestCommand_LoginWireShape(t *testing.T) {
	cmd := command{
		Action:     "login",
		APIKey:     "key",
		ClientCode: "C123",
		TOTP:       "123456",
	}
	raw, err := json.Marshal(cmd)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var m map[string]any
	json.Unmarshal(raw, &m)
	for _, key := range []string{"action", "api_key", "client_code", "totp"} {
		if _, ok := m[key]; !ok {
			t.Errorf("login command missing %q field", key)
		}
	}
	// Order fields must be omitted from non-order commands.
	if _, ok := m["orders"]; ok {
		t.Error("login command should not carry an orders field")
	}
}
