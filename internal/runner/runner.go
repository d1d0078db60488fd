// Package runner feeds events from producers (feed reader, execution
// gateway callbacks) to a strategy through a bounded queue drained by a
// single goroutine. The strategy core stays lock-free: everything it sees
// arrives on the runner's goroutine, in arrival order.
package runner

import (
	"context"
	"errors"
	"log/slog"

	"strategy-enginev1/internal/metrics"
	"strategy-enginev1/internal/model"
)

// ErrQueueFull is returned by Post when the queue has no capacity left.
// Callers treat it as backpressure, not a fatal condition.
var ErrQueueFull = errors.New("event queue full")

// Consumer receives dispatched events. *strategy.TradingStrategy satisfies
// this.
type Consumer interface {
	HandleEvent(ev model.Event)
}

// Runner owns the per-strategy event queue.
type Runner struct {
	log *slog.Logger
	met *metrics.Metrics

	queue    chan model.Event
	consumer Consumer

	// OnEvent, when set, observes every event after the consumer handled
	// it. Used for journaling fills.
	OnEvent func(ev model.Event)
}

// New creates a runner with the given queue capacity.
func New(capacity int, consumer Consumer, log *slog.Logger, met *metrics.Metrics) *Runner {
	if capacity < 1 {
		capacity = 1
	}
	return &Runner{
		log:      log,
		met:      met,
		queue:    make(chan model.Event, capacity),
		consumer: consumer,
	}
}

// Post enqueues an event without blocking. A full queue drops the event
// and returns ErrQueueFull; the producer decides whether to back off.
func (r *Runner) Post(ev model.Event) error {
	select {
	case r.queue <- ev:
		return nil
	default:
		if r.met != nil {
			r.met.EventsDropped.Inc()
		}
		if r.log != nil {
			r.log.Warn("event dropped: queue full", slog.Int("kind", int(ev.Kind())))
		}
		return ErrQueueFull
	}
}

// Run drains the queue until the context is cancelled, dispatching each
// event to the consumer in arrival order. Call from exactly one goroutine.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return
		case ev := <-r.queue:
			r.dispatch(ev)
		}
	}
}

// drain delivers events already queued at shutdown so confirmations are
// not lost mid-cycle.
func (r *Runner) drain() {
	for {
		select {
		case ev := <-r.queue:
			r.dispatch(ev)
		default:
			return
		}
	}
}

func (r *Runner) dispatch(ev model.Event) {
	r.consumer.HandleEvent(ev)
	if r.OnEvent != nil {
		r.OnEvent(ev)
	}
}

// DrainPending delivers events that arrived after Run returned. Used during
// shutdown between issuing cancel/flatten commands and saving state, on the
// same goroutine that ran the loop.
func (r *Runner) DrainPending() { r.drain() }

// Len reports the current queue depth.
func (r *Runner) Len() int { return len(r.queue) }
