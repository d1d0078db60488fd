package runner

import (
	"context"
	"sync"
	"testing"
	"time"

	"strategy-enginev1/internal/model"
)

// recordingConsumer collects events in arrival order.
type recordingConsumer struct {
	mu     sync.Mutex
	events []model.Event
}

func (c *recordingConsumer) HandleEvent(ev model.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *recordingConsumer) snapshot() []model.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Event, len(c.events))
	copy(out, c.events)
	return out
}

func tickEvent(last float64) model.TickEvent {
	return model.TickEvent{Tick: model.Tick{
		Symbol: "AAA",
		Last:   model.PriceFromFloat(last),
		TS:     time.Now().UTC(),
	}}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestRun_DispatchesInArrivalOrder(t *testing.T) {
	c := &recordingConsumer{}
	r := New(16, c, nil, nil)

	for i := 0; i < 5; i++ {
		if err := r.Post(tickEvent(100 + float64(i))); err != nil {
			t.Fatalf("Post %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { r.Run(ctx); close(done) }()

	waitFor(t, func() bool { return len(c.snapshot()) == 5 })
	cancel()
	<-done

	got := c.snapshot()
	for i, ev := range got {
		te := ev.(model.TickEvent)
		want := model.PriceFromFloat(100 + float64(i))
		if te.Tick.Last != want {
			t.Errorf("event %d: got %v, want %v", i, te.Tick.Last.Float(), want.Float())
		}
	}
}

func TestPost_FullQueueDropsWithError(t *testing.T) {
	c := &recordingConsumer{}
	r := New(2, c, nil, nil)

	if err := r.Post(tickEvent(1)); err != nil {
		t.Fatalf("Post 1: %v", err)
	}
	if err := r.Post(tickEvent(2)); err != nil {
		t.Fatalf("Post 2: %v", err)
	}
	// Queue full, nobody draining: the third post must not block.
	if err := r.Post(tickEvent(3)); err != ErrQueueFull {
		t.Errorf("Post on full queue: got %v, want ErrQueueFull", err)
	}
	if r.Len() != 2 {
		t.Errorf("queue depth: got %d, want 2", r.Len())
	}
}

func TestRun_DrainsQueuedEventsOnCancel(t *testing.T) {
	c := &recordingConsumer{}
	r := New(16, c, nil, nil)

	for i := 0; i < 4; i++ {
		r.Post(tickEvent(float64(i)))
	}

	// Already-cancelled context: Run must still deliver what was queued.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	if got := len(c.snapshot()); got != 4 {
		t.Errorf("events delivered on drain: got %d, want 4", got)
	}
	if r.Len() != 0 {
		t.Errorf("queue depth after drain: got %d, want 0", r.Len())
	}
}

func TestDrainPending_DeliversEventsPostedAfterRun(t *testing.T) {
	c := &recordingConsumer{}
	r := New(16, c, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	// Confirmations produced by cancel/flatten commands issued during
	// shutdown land after the loop has exited.
	r.Post(tickEvent(7))
	r.Post(tickEvent(8))
	if got := len(c.snapshot()); got != 0 {
		t.Fatalf("events before drain: got %d, want 0", got)
	}

	r.DrainPending()

	if got := len(c.snapshot()); got != 2 {
		t.Errorf("events after drain: got %d, want 2", got)
	}
	if r.Len() != 0 {
		t.Errorf("queue depth after drain: got %d, want 0", r.Len())
	}
}

func TestRun_OnEventObservesAfterConsumer(t *testing.T) {
	c := &recordingConsumer{}
	r := New(4, c, nil, nil)

	var mu sync.Mutex
	var observed []int
	r.OnEvent = func(model.Event) {
		mu.Lock()
		defer mu.Unlock()
		// The consumer must have handled the event already.
		observed = append(observed, len(c.snapshot()))
	}

	r.Post(tickEvent(1))
	r.Post(tickEvent(2))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 2 || observed[0] != 1 || observed[1] != 2 {
		t.Errorf("observer saw consumer counts %v, want [1 2]", observed)
	}
}
