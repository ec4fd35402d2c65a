package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/time/rate"

	"emabot/internal/backtest"
	"emabot/internal/config"
	"emabot/internal/md"
	"emabot/internal/risk"
	"emabot/internal/strategy"
)

func main() {
	days := flag.Int("days", 30, "days of history to replay per symbol")
	window := flag.Int("window", 0, "bars visible to the signal generator, 0 for all")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	var source md.Source
	if cfg.Simulation {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		source = md.NewSyntheticSource(seed)
	} else {
		limiter := rate.NewLimiter(rate.Limit(float64(cfg.APIRateLimit)/60), 1)
		source = md.NewAlpacaSource(cfg.APIKey, cfg.APISecret, cfg.DataURL, cfg.Feed, limiter)
	}

	ctx := context.Background()
	lookback := time.Duration(*days) * 24 * time.Hour
	failed := false
	for _, symbol := range cfg.Watchlist {
		bars, err := source.Fetch(ctx, symbol, cfg.BarInterval, lookback)
		if err != nil {
			slog.Error("fetch bars failed", "symbol", symbol, "error", err)
			failed = true
			continue
		}
		result, err := backtest.Run(backtest.Config{
			Symbol: symbol,
			Window: *window,
			Signals: strategy.EMACrossover{
				FastPeriod:    cfg.FastEMA,
				SlowPeriod:    cfg.SlowEMA,
				StopLossPct:   cfg.StopLossPct,
				TakeProfitPct: cfg.TakeProfitPct,
			},
			Risk: risk.Config{
				Capital:          cfg.Capital,
				RiskPerTrade:     cfg.RiskPerTrade,
				MaxOpenPositions: cfg.MaxPositions,
				// Losses never halt a replay.
				DailyLossLimit: 1e9,
			},
		}, bars)
		if err != nil {
			slog.Warn("backtest skipped", "symbol", symbol, "error", err)
			continue
		}
		printResult(result)
	}
	if failed {
		os.Exit(1)
	}
}

func printResult(r backtest.Result) {
	fmt.Printf("%s: %d bars, %d trades, %d wins, %d losses, pnl %.2f\n", r.Symbol, r.Bars, len(r.Trades), r.Wins, r.Losses, r.TotalPnL)
	for _, t := range r.Trades {
		fmt.Printf("  %s %-5s %5d @ %.2f  %-22s pnl %.2f\n", t.Bar.Timestamp.Format(time.DateTime), t.Signal.Action, t.Qty, t.Signal.Price, t.Signal.Reason, t.PnL)
	}
	if r.Open != nil {
		fmt.Printf("  open %d @ %.2f, unrealized %.2f\n", r.Open.Quantity, r.Open.EntryPrice, r.OpenPnL)
	}
}
