package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the strategy engine.
type Metrics struct {
	EventsDispatched *prometheus.CounterVec // labels: kind
	EventsDropped    prometheus.Counter
	HandlerPanics    prometheus.Counter

	BarsProcessed  prometheus.Counter
	TicksProcessed prometheus.Counter

	OrdersSubmitted prometheus.Counter
	OrdersFilled    prometheus.Counter
	OrdersRejected  prometheus.Counter
	OrdersCancelled prometheus.Counter

	StopModsRequested  prometheus.Counter
	StopModsSuppressed prometheus.Counter

	SizingAbstained prometheus.Counter

	// Invariant violations (over-fill, modify of non-working order, ...)
	// are reported here and the offending command rejected; the strategy
	// instance keeps running.
	InvariantViolations *prometheus.CounterVec // labels: kind

	DecisionDur prometheus.Histogram
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratengine_events_dispatched_total",
			Help: "Total events dispatched to the strategy, by kind",
		}, []string{"kind"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_events_dropped_total",
			Help: "Total events dropped (queue full or malformed)",
		}),
		HandlerPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_handler_panics_total",
			Help: "Total handler panics isolated by the market data router",
		}),
		BarsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_bars_processed_total",
			Help: "Total bars processed",
		}),
		TicksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_ticks_processed_total",
			Help: "Total ticks processed",
		}),
		OrdersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_orders_submitted_total",
			Help: "Total orders submitted to the execution gateway",
		}),
		OrdersFilled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_orders_filled_total",
			Help: "Total orders fully filled",
		}),
		OrdersRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_orders_rejected_total",
			Help: "Total orders rejected by the execution gateway",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_orders_cancelled_total",
			Help: "Total orders cancelled",
		}),
		StopModsRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_stop_modifications_requested_total",
			Help: "Total trailing-stop modifications requested",
		}),
		StopModsSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_stop_modifications_suppressed_total",
			Help: "Total trailing-stop candidates suppressed (would loosen risk)",
		}),
		SizingAbstained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratengine_sizing_abstained_total",
			Help: "Total decision cycles abstained on zero position size",
		}),
		InvariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratengine_invariant_violations_total",
			Help: "Total internal invariant violations reported, by kind",
		}, []string{"kind"}),
		DecisionDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratengine_decision_duration_seconds",
			Help:    "Bar decision handler duration",
			Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
		}),
	}

	prometheus.MustRegister(
		m.EventsDispatched,
		m.EventsDropped,
		m.HandlerPanics,
		m.BarsProcessed,
		m.TicksProcessed,
		m.OrdersSubmitted,
		m.OrdersFilled,
		m.OrdersRejected,
		m.OrdersCancelled,
		m.StopModsRequested,
		m.StopModsSuppressed,
		m.SizingAbstained,
		m.InvariantViolations,
		m.DecisionDur,
	)

	return m
}

// HealthStatus represents the engine health.
type HealthStatus struct {
	mu sync.RWMutex

	FeedConnected  bool      `json:"feed_connected"`
	RedisConnected bool      `json:"redis_connected"`
	JournalOK      bool      `json:"journal_ok"`
	StrategyState  string    `json:"strategy_state"`
	LastEventTime  time.Time `json:"last_event_time"`

	RedisLatencyMs float64   `json:"redis_latency_ms"`
	LastCheckAt    time.Time `json:"last_check_at"`
	StartedAt      time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetFeedConnected(v bool) {
	h.mu.Lock()
	h.FeedConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetJournalOK(v bool) {
	h.mu.Lock()
	h.JournalOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetStrategyState(s string) {
	h.mu.Lock()
	h.StrategyState = s
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastEventTime(t time.Time) {
	h.mu.Lock()
	h.LastEventTime = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.FeedConnected || !h.RedisConnected {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	eventAge := ""
	if !h.LastEventTime.IsZero() {
		eventAge = time.Since(h.LastEventTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		FeedConnected  bool    `json:"feed_connected"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		JournalOK      bool    `json:"journal_ok"`
		StrategyState  string  `json:"strategy_state"`
		LastEventTime  string  `json:"last_event_time"`
		EventAge       string  `json:"event_age"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		FeedConnected:  h.FeedConnected,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		JournalOK:      h.JournalOK,
		StrategyState:  h.StrategyState,
		LastEventTime:  h.LastEventTime.Format(time.RFC3339),
		EventAge:       eventAge,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
