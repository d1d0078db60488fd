// Command stratengine runs one strategy instance against a live broker
// session: websocket feed in, order commands out, Redis state saves,
// SQLite fill journal, and a metrics/health endpoint.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"strategy-enginev1/config"
	"strategy-enginev1/internal/execution"
	"strategy-enginev1/internal/feed"
	"strategy-enginev1/internal/logger"
	"strategy-enginev1/internal/metrics"
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/runner"
	"strategy-enginev1/internal/store/redis"
	"strategy-enginev1/internal/strategy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config invalid", slog.Any("error", err))
		os.Exit(1)
	}
	log := logger.Init("stratengine", logger.ParseLevel(cfg.LogLevel))

	met := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	store, err := redis.New(redis.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Error("redis init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()
	health.SetRedisConnected(true)

	journal, err := execution.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Error("journal init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer journal.Close()
	health.SetJournalOK(true)

	logic, err := strategy.NewEMACross(strategy.EMACrossConfig{
		Symbol:           cfg.Symbol,
		BarSpec:          cfg.BarType().Spec,
		FastPeriod:       cfg.FastEMAPeriod,
		SlowPeriod:       cfg.SlowEMAPeriod,
		ATRPeriod:        cfg.ATRPeriod,
		ATRMultiple:      cfg.SLATRMultiple,
		RiskBp:           cfg.RiskBp,
		CommissionRateBp: cfg.CommissionRateBp,
		HardLimit:        cfg.HardLimit,
		UnitBatchSize:    cfg.UnitBatchSize,
	})
	if err != nil {
		log.Error("strategy config invalid", slog.Any("error", err))
		os.Exit(1)
	}

	// The feed posts into the runner, which dispatches to the strategy,
	// which commands the feed. The post closure captures the runner
	// variable assigned below.
	var run *runner.Runner
	fd := feed.New(feed.Config{
		URL:        cfg.FeedURL,
		APIKey:     cfg.FeedAPIKey,
		ClientCode: cfg.FeedClientCode,
		TOTPSecret: cfg.FeedTOTPSecret,
	}, func(ev model.Event) error { return run.Post(ev) }, log)
	fd.OnConnected = health.SetFeedConnected

	strat := strategy.New(strategy.Config{
		ID:           cfg.StrategyID,
		OrderIDTag:   cfg.OrderIDTag,
		SkipLoad:     !cfg.LoadState,
		BarCapacity:  cfg.BarCapacity,
		TickCapacity: cfg.TickCapacity,
	}, logic, fd, fd, fd, store, log, met)

	run = runner.New(cfg.QueueSize, strat, log, met)

	// Stop issues cancel/flatten commands whose confirmations arrive through
	// the runner queue after Run has returned; without draining them the
	// saved state would record positions the broker already closed.
	strat.SetQuiesce(run.DrainPending)

	recorder := execution.NewRecorder(journal, strat.Context().Orders, cfg.StrategyID, log)
	recorder.OnError = func(error) { health.SetJournalOK(false) }
	run.OnEvent = func(ev model.Event) {
		health.SetLastEventTime(time.Now())
		recorder.Observe(ev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	health.StartLivenessChecker(ctx, store.Client(), 15*time.Second)

	go fd.Run(ctx)

	// Instrument fetch and subscriptions need an established session.
	if err := waitConnected(ctx, fd, 30*time.Second); err != nil {
		log.Error("feed never connected", slog.Any("error", err))
		os.Exit(1)
	}

	if err := strat.Start(); err != nil {
		log.Error("strategy start failed", slog.Any("error", err))
		os.Exit(1)
	}
	health.SetStrategyState(string(strat.State()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	run.Run(ctx)

	if err := strat.Stop(); err != nil {
		log.Error("strategy stop failed", slog.Any("error", err))
	}
	health.SetStrategyState(string(strat.State()))
	if err := strat.Dispose(); err != nil {
		log.Error("strategy dispose failed", slog.Any("error", err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	log.Info("stratengine exited")
}

func waitConnected(ctx context.Context, fd *feed.Feed, timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return context.DeadlineExceeded
		case <-ticker.C:
			if fd.Connected() {
				return nil
			}
		}
	}
}
