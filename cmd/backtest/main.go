// Command backtest drives one strategy instance over a synthetic,
// deterministic random-walk market using the paper gateway. Events are
// dispatched synchronously so each bar's confirmations land before the
// next bar, exactly like the live single-goroutine runner.
//
// Usage:
//
//	go run ./cmd/backtest --bars=500 --seed=42 --fast=10 --slow=20
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"strategy-enginev1/internal/execution"
	"strategy-enginev1/internal/gateway"
	"strategy-enginev1/internal/logger"
	"strategy-enginev1/internal/model"
	"strategy-enginev1/internal/strategy"
)

func main() {
	bars := flag.Int("bars", 500, "Number of synthetic bars to replay")
	seed := flag.Int64("seed", 42, "Random walk seed (same seed, same run)")
	fast := flag.Int("fast", 10, "Fast EMA period")
	slow := flag.Int("slow", 20, "Slow EMA period")
	atrPeriod := flag.Int("atr", 20, "ATR period")
	atrMult := flag.Float64("mult", 2.0, "Stop distance in ATRs")
	riskBp := flag.Float64("risk", 10, "Risk per trade in bp of equity")
	equity := flag.Int64("equity", 1_000_000*model.PriceScale, "Starting equity in price points")
	journalPath := flag.String("journal", "", "Optional SQLite path to journal fills")
	logLevel := flag.String("log", "warn", "Log level")
	flag.Parse()

	logg := logger.Init("backtest", logger.ParseLevel(*logLevel))

	const symbol = "SYN-USD"
	paper := gateway.NewPaper(*equity, 0)
	paper.SetInstrument(model.Instrument{
		Symbol:        symbol,
		TickSize:      model.PriceFromFloat(0.01),
		TickPrecision: 2,
		QuoteCurrency: "USD",
		LotSize:       1,
	})

	logic, err := strategy.NewEMACross(strategy.EMACrossConfig{
		Symbol:      symbol,
		BarSpec:     model.BarSpec{Step: 1, Aggregation: model.AggMinute},
		FastPeriod:  *fast,
		SlowPeriod:  *slow,
		ATRPeriod:   *atrPeriod,
		ATRMultiple: *atrMult,
		RiskBp:      *riskBp,
		HardLimit:   1_000_000,
	})
	if err != nil {
		log.Fatalf("[backtest] strategy config: %v", err)
	}

	strat := strategy.New(strategy.Config{
		ID:           "backtest-emacross",
		OrderIDTag:   "BT",
		BarCapacity:  40,
		TickCapacity: 100,
	}, logic, paper, paper, paper, nil, logg, nil)

	// Synchronous loop: paper confirmations feed straight back into the
	// strategy within the same event cycle.
	var journal *execution.Journal
	if *journalPath != "" {
		journal, err = execution.NewJournal(*journalPath)
		if err != nil {
			log.Fatalf("[backtest] journal open: %v", err)
		}
		defer journal.Close()
	}
	recorder := execution.NewRecorder(journal, strat.Context().Orders, "backtest-emacross", logg)
	fills := 0
	paper.SetSink(func(ev model.OrderEvent) {
		strat.HandleEvent(ev)
		if ev.Type == model.OrderFilled {
			fills++
			fmt.Printf("  [%s] FILL %-22s qty=%-6d px=%s\n",
				ev.TS.Format("15:04:05"), ev.OrderID, ev.FillQty, ev.FillPrice)
			if journal != nil {
				recorder.Observe(ev)
			}
		}
	})

	if err := strat.Start(); err != nil {
		log.Fatalf("[backtest] start: %v", err)
	}

	replay(strat, paper, symbol, *bars, *seed)

	if err := strat.Stop(); err != nil {
		log.Printf("[backtest] stop: %v", err)
	}
	if err := strat.Dispose(); err != nil {
		log.Printf("[backtest] dispose: %v", err)
	}

	fmt.Printf("\nbars=%d fills=%d open_positions=%d\n",
		*bars, fills, len(strat.Context().Orders.Book().OpenPositions()))
}

// replay generates a seeded random walk, emitting four ticks per bar
// (O/H/L/C) followed by the completed bar.
func replay(strat *strategy.TradingStrategy, paper *gateway.Paper, symbol string, bars int, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	bt := model.BarType{Symbol: symbol, Spec: model.BarSpec{Step: 1, Aggregation: model.AggMinute}}

	price := 100.0
	ts := time.Date(2025, 1, 2, 9, 30, 0, 0, time.UTC)

	for i := 0; i < bars; i++ {
		drift := rng.NormFloat64() * 0.5
		open := price
		close := price + drift
		high := maxf(open, close) + rng.Float64()*0.3
		low := minf(open, close) - rng.Float64()*0.3
		price = close
		ts = ts.Add(time.Minute)

		for _, p := range []float64{open, high, low, close} {
			tick := model.Tick{
				Symbol:   symbol,
				Bid:      model.PriceFromFloat(p - 0.01),
				Ask:      model.PriceFromFloat(p + 0.01),
				Last:     model.PriceFromFloat(p),
				BidSize:  100,
				AskSize:  100,
				LastSize: 10,
				TS:       ts,
			}
			paper.OnTick(tick)
			strat.HandleEvent(model.TickEvent{Tick: tick})
		}

		strat.HandleEvent(model.BarEvent{
			BarType: bt,
			Bar: model.Bar{
				TS:     ts,
				Open:   model.PriceFromFloat(open),
				High:   model.PriceFromFloat(high),
				Low:    model.PriceFromFloat(low),
				Close:  model.PriceFromFloat(close),
				Volume: 1000 + rng.Int63n(5000),
			},
		})
	}
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
