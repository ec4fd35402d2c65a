package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"emabot/internal/broker"
	"emabot/internal/config"
	"emabot/internal/engine"
	"emabot/internal/journal"
	"emabot/internal/md"
	"emabot/internal/metrics"
	"emabot/internal/notify"
	"emabot/internal/risk"
	"emabot/internal/scheduler"
	"emabot/internal/state"
	"emabot/internal/strategy"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bot exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	closeLog, err := setupLogging(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log setup: %w", err)
	}
	defer closeLog()

	runID := generateRunID()
	decisions, err := engine.NewDecisionLogger(cfg.DecisionsPath, runID)
	if err != nil {
		return fmt.Errorf("decision logger: %w", err)
	}
	defer func() {
		if err := decisions.Close(); err != nil {
			slog.Error("failed to close decision logger", "error", err)
		}
	}()

	recorder, err := journal.NewCSVRecorder(cfg.TradesPath)
	if err != nil {
		return fmt.Errorf("trade journal: %w", err)
	}
	defer recorder.Close()

	ledger := state.NewLedger()
	if err := ledger.Load(cfg.CheckpointPath); err == nil {
		slog.Info("loaded checkpoint", "path", cfg.CheckpointPath, "positions", ledger.Count())
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	limiter := rate.NewLimiter(rate.Limit(float64(cfg.APIRateLimit)/60), 1)
	var (
		source md.Source
		venue  broker.Venue
		live   *broker.LiveVenue
	)
	if cfg.Simulation {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		synthetic := md.NewSyntheticSource(seed)
		source = synthetic
		venue = broker.NewSimulatedVenue(synthetic, cfg.BarInterval)
		slog.Warn("simulation mode: synthetic market data, orders are not routed", "seed", seed)
	} else {
		source = md.NewAlpacaSource(cfg.APIKey, cfg.APISecret, cfg.DataURL, cfg.Feed, limiter)
		live, err = broker.NewLiveVenue(broker.LiveOptions{
			APIKey:      cfg.APIKey,
			APISecret:   cfg.APISecret,
			BaseURL:     cfg.BaseURL,
			DataURL:     cfg.DataURL,
			Feed:        cfg.Feed,
			OrderType:   cfg.OrderType,
			TimeInForce: cfg.TimeInForce,
			Limiter:     limiter,
		})
		if err != nil {
			return fmt.Errorf("broker: %w", err)
		}
		venue = live
	}

	gate := risk.NewGate(risk.Config{
		Capital:          cfg.Capital,
		RiskPerTrade:     cfg.RiskPerTrade,
		MaxOpenPositions: cfg.MaxPositions,
		DailyLossLimit:   cfg.DailyLossLimit,
		KillSwitch:       cfg.KillSwitch,
	})
	telegram, err := notify.NewTelegram(cfg.TelegramToken, cfg.TelegramChatID)
	if err != nil {
		slog.Warn("telegram unavailable, notifications disabled", "error", err)
	} else if telegram == nil {
		slog.Info("telegram notifications disabled")
	}

	coord := engine.New(engine.Options{
		Watchlist:   cfg.Watchlist,
		BarInterval: cfg.BarInterval,
		Lookback:    cfg.Lookback,
		Hours: engine.MarketHours{
			Open:        cfg.MarketOpen,
			Close:       cfg.MarketClose,
			Location:    cfg.Location,
			Simulation:  cfg.Simulation,
			EntryCutoff: &cfg.ForceExitAt,
		},
		LimitOrders: cfg.OrderType == "limit",
	}, engine.Deps{
		Source: source,
		Venue:  venue,
		Signals: strategy.EMACrossover{
			FastPeriod:    cfg.FastEMA,
			SlowPeriod:    cfg.SlowEMA,
			StopLossPct:   cfg.StopLossPct,
			TakeProfitPct: cfg.TakeProfitPct,
		},
		Ledger:    ledger,
		Gate:      gate,
		Recorder:  recorder,
		Notifier:  telegram,
		Decisions: decisions,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		metrics.Serve(ctx, cfg.MetricsAddr)
		slog.Info("metrics listening", "addr", cfg.MetricsAddr)
	}
	metrics.OpenPositions.Set(float64(ledger.Count()))

	sched := scheduler.New(scheduler.Options{PollInterval: cfg.PollInterval, ErrorBackoff: cfg.ErrorBackoff})
	sched.Every(cfg.ScanInterval, "scan", func(ctx context.Context) error {
		coord.RunCycle(ctx)
		return saveCheckpoint(ledger, cfg.CheckpointPath)
	})
	sched.DailyAt(cfg.ForceExitAt, cfg.Location, "force-exit", func(ctx context.Context) error {
		coord.ForceExitAll(ctx)
		st := gate.State()
		telegram.DailyReport(st.DailyTrades, st.DailyPnL)
		return saveCheckpoint(ledger, cfg.CheckpointPath)
	})
	sched.DailyAt(cfg.MarketOpen, cfg.Location, "daily-reset", func(ctx context.Context) error {
		gate.ResetDaily()
		return nil
	})
	if live != nil {
		if _, err := engine.Reconcile(ctx, live, ledger); err != nil {
			slog.Warn("startup reconciliation failed", "error", err)
		}
		sched.Every(cfg.ReconcileInterval, "reconcile", func(ctx context.Context) error {
			_, err := engine.Reconcile(ctx, live, ledger)
			return err
		})
	}

	slog.Info("starting bot",
		"run_id", runID,
		"simulation", cfg.Simulation,
		"watchlist", strings.Join(cfg.Watchlist, ","),
		"scan_interval", cfg.ScanInterval,
		"force_exit_at", cfg.ForceExitAt.String(),
	)
	telegram.Notify(fmt.Sprintf("Trading System Started\nMode: %s\nWatchlist: %s", mode(cfg.Simulation), strings.Join(cfg.Watchlist, ", ")))

	// The first cycle runs immediately rather than one scan interval in.
	coord.RunCycle(ctx)
	if err := sched.Run(ctx); err != nil {
		return err
	}

	if err := saveCheckpoint(ledger, cfg.CheckpointPath); err != nil {
		slog.Error("failed to save checkpoint", "error", err)
	}
	slog.Info("bot shutdown complete")
	return nil
}

func saveCheckpoint(ledger *state.Ledger, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return ledger.Save(path)
}

func setupLogging(path, level string) (func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}
	var out io.Writer = os.Stdout
	closeFn := func() {}
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, file)
		closeFn = func() { _ = file.Close() }
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl})))
	return closeFn, nil
}

func mode(simulation bool) string {
	if simulation {
		return "SIMULATION"
	}
	return "LIVE"
}

func generateRunID() string {
	timestamp := time.Now().UTC().Format("20060102T150405")
	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		return timestamp
	}
	return timestamp + "-" + hex.EncodeToString(randomBytes)
}
