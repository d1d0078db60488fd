package strategy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"strategy-enginev1/internal/gateway"
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/order"
)

const testSymbol = "TST-USD"

// memStore is an in-memory state store for save/load scenarios.
type memStore struct {
	m map[string][]byte
}

func newMemStore() *memStore { return &memStore{m: make(map[string][]byte)} }

func (s *memStore) Save(id string, b []byte) error { s.m[id] = b; return nil }
func (s *memStore) Load(id string) ([]byte, error) { return s.m[id], nil }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testBarType() model.BarType {
	return model.BarType{Symbol: testSymbol, Spec: model.BarSpec{Step: 1, Aggregation: model.AggMinute}}
}

// newHarness wires an EMA cross strategy to a paper gateway with a
// synchronous sink: confirmations land inside the same event cycle that
// produced them, like the live single-goroutine runner.
func newHarness(t *testing.T, store gateway.StateStore) (*TradingStrategy, *gateway.Paper) {
	t.Helper()

	paper := gateway.NewPaper(1_000_000*model.PriceScale, 0)
	paper.SetInstrument(model.Instrument{
		Symbol:        testSymbol,
		TickSize:      model.PriceFromFloat(0.01),
		TickPrecision: 2,
		QuoteCurrency: "USD",
		LotSize:       1,
	})

	logic, err := NewEMACross(EMACrossConfig{
		Symbol:      testSymbol,
		BarSpec:     model.BarSpec{Step: 1, Aggregation: model.AggMinute},
		FastPeriod:  2,
		SlowPeriod:  4,
		ATRPeriod:   3,
		ATRMultiple: 2,
		RiskBp:      10,
	})
	if err != nil {
		t.Fatalf("NewEMACross: %v", err)
	}

	strat := New(Config{
		ID:           "test-emacross",
		OrderIDTag:   "T1",
		BarCapacity:  40,
		TickCapacity: 10,
	}, logic, paper, paper, paper, store, quietLogger(), nil)

	paper.SetSink(func(ev model.OrderEvent) { strat.HandleEvent(ev) })
	return strat, paper
}

// step emits one tick at the bar close followed by the completed bar.
func step(strat *TradingStrategy, paper *gateway.Paper, high, low, close float64) {
	tick := model.Tick{
		Symbol:   testSymbol,
		Bid:      model.PriceFromFloat(close - 0.01),
		Ask:      model.PriceFromFloat(close + 0.01),
		Last:     model.PriceFromFloat(close),
		BidSize:  100,
		AskSize:  100,
		LastSize: 10,
		TS:       time.Now().UTC(),
	}
	paper.OnTick(tick)
	strat.HandleEvent(model.TickEvent{Tick: tick})

	strat.HandleEvent(model.BarEvent{
		BarType: testBarType(),
		Bar: model.Bar{
			TS:     time.Now().UTC(),
			Open:   model.PriceFromFloat(close - 1),
			High:   model.PriceFromFloat(high),
			Low:    model.PriceFromFloat(low),
			Close:  model.PriceFromFloat(close),
			Volume: 1000,
		},
	})
}

// warmUp feeds the four uptrend bars needed to make every indicator ready.
// Bars: closes 100..103, constant range 2 → ATR(3) = 2 exactly.
// The fourth bar triggers the first decision.
func warmUp(strat *TradingStrategy, paper *gateway.Paper) {
	for i := 0; i < 4; i++ {
		c := 100.0 + float64(i)
		step(strat, paper, c+1, c-1, c)
	}
}

// ────────────────────────────────────────────────────────────
// Lifecycle
// ────────────────────────────────────────────────────────────

func TestLifecycle_Transitions(t *testing.T) {
	strat, _ := newHarness(t, nil)

	if strat.State() != LifecycleCreated {
		t.Fatalf("initial state: %s", strat.State())
	}
	if err := strat.Stop(); err == nil {
		t.Error("stop before start must fail")
	}
	if err := strat.Dispose(); err == nil {
		t.Error("dispose before stop must fail")
	}

	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strat.State() != LifecycleRunning {
		t.Fatalf("after start: %s", strat.State())
	}
	if err := strat.Start(); err == nil {
		t.Error("double start must fail")
	}

	if err := strat.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if strat.State() != LifecycleStopped {
		t.Fatalf("after stop: %s", strat.State())
	}

	// Restart from STOPPED is allowed.
	if err := strat.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := strat.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if err := strat.Dispose(); err != nil {
		t.Fatalf("Dispose: %v", err)
	}
	if strat.State() != LifecycleDisposed {
		t.Fatalf("after dispose: %s", strat.State())
	}
	if err := strat.Start(); err == nil {
		t.Error("start after dispose must fail")
	}
}

func TestHandleEvent_DroppedOutsideRunning(t *testing.T) {
	strat, paper := newHarness(t, nil)
	// Not started: events must be silently dropped, not panic.
	step(strat, paper, 101, 99, 100)
	if strat.Context().Router.HasTicks(testSymbol) {
		t.Error("events before start must not reach the router")
	}
}

// ────────────────────────────────────────────────────────────
// Entry decision
// ────────────────────────────────────────────────────────────

func TestNoEntryDuringWarmUp(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Three bars: slow EMA(4) still warming.
	for i := 0; i < 3; i++ {
		c := 100.0 + float64(i)
		step(strat, paper, c+1, c-1, c)
	}
	if got := len(strat.Context().Orders.OpenOrders()); got != 0 {
		t.Errorf("orders during warm-up: got %d, want 0", got)
	}
	if strat.IndicatorsInitialized() {
		t.Error("indicators must not be ready after 3 bars")
	}
}

func TestLongEntry_AtomicBundleAndPrices(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper)

	orders := strat.Context().Orders

	// Bar 4 (close 103, low 102): fast EMA(2)=102.5 >= slow EMA(4)=101.5,
	// ATR=2, multiple=2 → BUY at ask 103.01, stop 102-4=98, 1R target
	// 103.01 + 5.01 = 108.02.
	entry, ok := orders.Get("O-T1-1")
	if !ok {
		t.Fatal("entry order not registered")
	}
	if entry.Side != order.SideBuy || entry.Purpose != order.PurposeEntry {
		t.Errorf("entry: side=%s purpose=%s", entry.Side, entry.Purpose)
	}
	if entry.State != order.StateFilled {
		t.Errorf("entry state: got %s, want FILLED", entry.State)
	}
	if entry.AvgPrice != model.PriceFromFloat(103.01) {
		t.Errorf("entry fill price: got %v, want 103.01", entry.AvgPrice.Float())
	}

	stop, ok := orders.Get("O-T1-2")
	if !ok {
		t.Fatal("stop order not registered")
	}
	if stop.Type != order.TypeStopMarket || stop.Side != order.SideSell {
		t.Errorf("stop: type=%s side=%s", stop.Type, stop.Side)
	}
	if stop.Price != model.PriceFromFloat(98) {
		t.Errorf("stop price: got %v, want 98", stop.Price.Float())
	}
	if !stop.IsWorking() {
		t.Errorf("stop state: got %s, want WORKING", stop.State)
	}

	tp, ok := orders.Get("O-T1-3")
	if !ok {
		t.Fatal("take-profit order not registered")
	}
	if tp.Type != order.TypeLimit || tp.Price != model.PriceFromFloat(108.02) {
		t.Errorf("take-profit: type=%s price=%v, want LIMIT 108.02", tp.Type, tp.Price.Float())
	}

	pos, ok := orders.Book().Position("T1-P-1")
	if !ok || !pos.IsOpen() || pos.Qty != entry.Qty {
		t.Errorf("position: %+v (entry qty %d)", pos, entry.Qty)
	}
	if pos.Qty <= 0 {
		t.Errorf("long position qty: got %d", pos.Qty)
	}
}

func TestOnePositionAtATime(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper)

	seq, _ := strat.Context().Factory.Counters()
	if seq != 3 {
		t.Fatalf("orders after entry: got %d, want 3", seq)
	}

	// Position open: further bars must not create new entries.
	step(strat, paper, 106, 104, 105)
	step(strat, paper, 107, 105, 106)

	seq, _ = strat.Context().Factory.Counters()
	if seq != 3 {
		t.Errorf("orders after extra bars: got %d, want still 3", seq)
	}
}

func TestEntryAbstains_ZeroEquity(t *testing.T) {
	strat, paper := newHarness(t, nil)
	paper.SetEquity(0)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper)

	if got := len(strat.Context().Orders.OpenOrders()); got != 0 {
		t.Errorf("orders with zero equity: got %d, want 0", got)
	}
}

func TestEntryAbstains_AccountUnavailable(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	paper.AccountDown = true
	warmUp(strat, paper)

	if got := len(strat.Context().Orders.OpenOrders()); got != 0 {
		t.Errorf("orders with account down: got %d, want 0", got)
	}
}

// ────────────────────────────────────────────────────────────
// Trailing stop
// ────────────────────────────────────────────────────────────

func TestTrailingStop_RatchetsAndSuppresses(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper) // long open, stop at 98

	orders := strat.Context().Orders
	stop, _ := orders.Get("O-T1-2")

	// Bar: low 103, ATR stays 2 → candidate 103-4=99 > 98: stop moves up.
	step(strat, paper, 105, 103, 104)
	if stop.Price != model.PriceFromFloat(99) {
		t.Fatalf("stop after favorable bar: got %v, want 99", stop.Price.Float())
	}

	// Adverse bar: low 100, TR=4 lifts ATR to 8/3 → candidate 94.667 < 99:
	// the modification is suppressed, the stop never loosens.
	step(strat, paper, 102, 100, 101)
	if stop.Price != model.PriceFromFloat(99) {
		t.Errorf("stop after adverse bar: got %v, want unchanged 99", stop.Price.Float())
	}
}

// ────────────────────────────────────────────────────────────
// Rejection handling
// ────────────────────────────────────────────────────────────

func TestEntryRejected_BundleCancelled(t *testing.T) {
	strat, paper := newHarness(t, nil)
	paper.RejectEntries = true
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper)

	orders := strat.Context().Orders
	if !orders.Book().IsFlat(testSymbol) {
		t.Error("no position should open off a rejected entry")
	}
	if got := len(orders.WorkingOrders()); got != 0 {
		t.Errorf("working orders after entry reject: got %d, want 0", got)
	}
	entry, _ := orders.Get("O-T1-1")
	if entry.State != order.StateRejected {
		t.Errorf("entry state: got %s, want REJECTED", entry.State)
	}
}

func TestProtectiveLegRejected_PositionFlattened(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper) // long open, stop O-T1-2 and tp O-T1-3 working

	orders := strat.Context().Orders
	if orders.Book().IsFlat(testSymbol) {
		t.Fatal("precondition: position should be open")
	}

	// Gateway rejects the working stop: the framework must cancel the
	// rest of the bundle and flatten, never resubmit.
	strat.HandleEvent(model.OrderEvent{
		Type:    model.OrderRejected,
		OrderID: "O-T1-2",
		Symbol:  testSymbol,
		Reason:  "margin check failed",
		TS:      time.Now().UTC(),
	})

	if !orders.Book().IsFlat(testSymbol) {
		t.Error("position should be flat after protective-leg rejection")
	}
	if got := len(orders.WorkingOrders()); got != 0 {
		t.Errorf("working orders after flatten: got %d, want 0", got)
	}
	tp, _ := orders.Get("O-T1-3")
	if tp.State != order.StateCancelled {
		t.Errorf("take-profit state: got %s, want CANCELLED", tp.State)
	}
}

// ────────────────────────────────────────────────────────────
// Stop / Reset
// ────────────────────────────────────────────────────────────

func TestStop_CancelsOrdersAndClosesPositions(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper)

	if err := strat.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	orders := strat.Context().Orders
	if got := len(orders.WorkingOrders()); got != 0 {
		t.Errorf("working orders after stop: got %d, want 0", got)
	}
	if !orders.Book().IsFlat(testSymbol) {
		t.Error("position should be closed on stop")
	}
}

// TestStop_QueuedConfirmationsAppliedBeforeSave runs the gateway through a
// FIFO queue like the live runner: confirmations apply only when the queue
// is flushed. Stop must flush the cancel and flatten confirmations before
// persisting, otherwise the saved state records a position the gateway
// already closed and a restored instance never trades again.
func TestStop_QueuedConfirmationsAppliedBeforeSave(t *testing.T) {
	store := newMemStore()

	paper := gateway.NewPaper(1_000_000*model.PriceScale, 0)
	paper.SetInstrument(model.Instrument{
		Symbol:        testSymbol,
		TickSize:      model.PriceFromFloat(0.01),
		TickPrecision: 2,
		QuoteCurrency: "USD",
		LotSize:       1,
	})
	logic, err := NewEMACross(EMACrossConfig{
		Symbol:      testSymbol,
		BarSpec:     model.BarSpec{Step: 1, Aggregation: model.AggMinute},
		FastPeriod:  2,
		SlowPeriod:  4,
		ATRPeriod:   3,
		ATRMultiple: 2,
		RiskBp:      10,
	})
	if err != nil {
		t.Fatalf("NewEMACross: %v", err)
	}
	strat := New(Config{
		ID:           "test-emacross",
		OrderIDTag:   "T1",
		BarCapacity:  40,
		TickCapacity: 10,
	}, logic, paper, paper, paper, store, quietLogger(), nil)

	var queued []model.OrderEvent
	paper.SetSink(func(ev model.OrderEvent) { queued = append(queued, ev) })
	flush := func() {
		for len(queued) > 0 {
			ev := queued[0]
			queued = queued[1:]
			strat.HandleEvent(ev)
		}
	}
	strat.SetQuiesce(flush)

	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 4; i++ {
		c := 100.0 + float64(i)
		step(strat, paper, c+1, c-1, c)
		flush()
	}
	if strat.Context().Orders.Book().IsFlat(testSymbol) {
		t.Fatal("precondition: position open before stop")
	}

	if err := strat.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !strat.Context().Orders.Book().IsFlat(testSymbol) {
		t.Fatal("book must be flat after stop")
	}
	seq1, _ := strat.Context().Factory.Counters()

	// A restored instance must see the flat book and enter on the next
	// favorable bar.
	strat2, paper2 := newHarness(t, store)
	if err := strat2.Start(); err != nil {
		t.Fatalf("restored Start: %v", err)
	}
	if !strat2.Context().Orders.Book().IsFlat(testSymbol) {
		t.Fatal("restored book must be flat")
	}
	step(strat2, paper2, 105, 103, 104)
	if _, ok := strat2.Context().Orders.Get("O-T1-" + itoa(seq1+1)); !ok {
		t.Fatalf("restored instance should trade on the next bar (want order O-T1-%d)", seq1+1)
	}
}

func TestReset_ClearsIndicatorsAndHistory(t *testing.T) {
	strat, paper := newHarness(t, nil)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat, paper)

	if !strat.IndicatorsInitialized() {
		t.Fatal("precondition: indicators ready")
	}
	if err := strat.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if strat.IndicatorsInitialized() {
		t.Error("indicators should be back in warm-up after Reset")
	}
	if strat.Context().Router.HasTicks(testSymbol) {
		t.Error("tick history should be cleared after Reset")
	}
	if strat.State() != LifecycleRunning {
		t.Errorf("state after Reset: got %s, want RUNNING", strat.State())
	}
}

// ────────────────────────────────────────────────────────────
// Save / load
// ────────────────────────────────────────────────────────────

func TestSaveLoad_RoundTripResumesWarmState(t *testing.T) {
	store := newMemStore()

	strat1, paper1 := newHarness(t, store)
	if err := strat1.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat1, paper1)
	if err := strat1.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if store.m["test-emacross"] == nil {
		t.Fatal("stop should persist state")
	}
	seq1, pos1 := strat1.Context().Factory.Counters()

	// Fresh instance, same identity: Start restores the saved state.
	strat2, paper2 := newHarness(t, store)
	if err := strat2.Start(); err != nil {
		t.Fatalf("restored Start: %v", err)
	}

	if !strat2.IndicatorsInitialized() {
		t.Error("restored indicators should be warm immediately")
	}
	if !strat2.Context().Router.HasTicks(testSymbol) {
		t.Error("restored instance should have seeded ticks")
	}
	seq2, pos2 := strat2.Context().Factory.Counters()
	if seq2 != seq1 || pos2 != pos1 {
		t.Errorf("ID counters: got (%d,%d), want (%d,%d)", seq2, pos2, seq1, pos1)
	}

	// The restored instance is flat and warm: the next favorable bar must
	// produce an entry with IDs continuing the saved sequence.
	step(strat2, paper2, 105, 103, 104)
	entry, ok := strat2.Context().Orders.Get("O-T1-" + itoa(seq1+1))
	if !ok {
		t.Fatalf("restored instance should trade on the next bar (want order O-T1-%d)", seq1+1)
	}
	if entry.Purpose != order.PurposeEntry {
		t.Errorf("first restored order purpose: got %s, want ENTRY", entry.Purpose)
	}
}

func TestSkipLoad_StartsFresh(t *testing.T) {
	store := newMemStore()

	strat1, paper1 := newHarness(t, store)
	if err := strat1.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	warmUp(strat1, paper1)
	if err := strat1.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	paper2 := gateway.NewPaper(1_000_000*model.PriceScale, 0)
	paper2.SetInstrument(model.Instrument{Symbol: testSymbol, QuoteCurrency: "USD", LotSize: 1})
	logic, err := NewEMACross(EMACrossConfig{
		Symbol:      testSymbol,
		BarSpec:     model.BarSpec{Step: 1, Aggregation: model.AggMinute},
		FastPeriod:  2,
		SlowPeriod:  4,
		ATRPeriod:   3,
		ATRMultiple: 2,
		RiskBp:      10,
	})
	if err != nil {
		t.Fatalf("NewEMACross: %v", err)
	}
	strat2 := New(Config{
		ID:           "test-emacross",
		OrderIDTag:   "T1",
		SkipLoad:     true,
		BarCapacity:  40,
		TickCapacity: 10,
	}, logic, paper2, paper2, paper2, store, quietLogger(), nil)
	paper2.SetSink(func(ev model.OrderEvent) { strat2.HandleEvent(ev) })

	if err := strat2.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if strat2.IndicatorsInitialized() {
		t.Error("skip-load instance should start in warm-up")
	}
	if seq, _ := strat2.Context().Factory.Counters(); seq != 0 {
		t.Errorf("skip-load instance counters: got %d, want 0", seq)
	}
}

func TestSave_OnlyFromStopped(t *testing.T) {
	store := newMemStore()
	strat, _ := newHarness(t, store)
	if err := strat.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := strat.Save(); err == nil {
		t.Error("save while RUNNING must fail")
	}
	if err := strat.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := strat.Save(); err != nil {
		t.Errorf("save from STOPPED: %v", err)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b [8]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = byte('0' + n%10)
		n /= 10
	}
	return string(b[i:])
}
