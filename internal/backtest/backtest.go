// Package backtest replays the crossover rule over historical bars.
package backtest

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"emabot/internal/md"
	"emabot/internal/risk"
	"emabot/internal/state"
	"emabot/internal/strategy"
)

type Config struct {
	Symbol  string
	Signals strategy.EMACrossover
	Risk    risk.Config
	// Window bounds the history handed to the signal generator on each step.
	// Zero uses every bar seen so far.
	Window int
}

type Trade struct {
	Bar    md.Bar
	Signal strategy.Signal
	Qty    int
	PnL    float64
}

type Result struct {
	Symbol   string
	Bars     int
	Trades   []Trade
	Wins     int
	Losses   int
	TotalPnL float64
	// Open is the position still held after the last bar, if any, marked
	// at the final close in OpenPnL.
	Open    *state.Position
	OpenPnL float64
}

// Run feeds bars to the signal generator one at a time, as the live loop
// would see them, and books every signal against a private ledger.
func Run(cfg Config, bars []md.Bar) (Result, error) {
	result := Result{Symbol: cfg.Symbol, Bars: len(bars)}
	if len(bars) == 0 {
		return result, fmt.Errorf("backtest %s: no bars", cfg.Symbol)
	}

	window := cfg.Window
	if window <= 0 {
		window = len(bars)
	}
	history := md.NewRingBuffer(window)
	ledger := state.NewLedger()
	gate := risk.NewGate(cfg.Risk)
	total := decimal.Zero

	for _, bar := range bars {
		history.Add(bar)

		var open *state.Position
		if pos, ok := ledger.Get(cfg.Symbol); ok {
			open = &pos
		}
		sig := cfg.Signals.Evaluate(cfg.Symbol, history.Values(), open)
		if sig == nil {
			continue
		}

		switch sig.Action {
		case strategy.Enter:
			if !gate.Admit(ledger.Count()) {
				continue
			}
			qty := gate.Size(cfg.Symbol, sig.Price, cfg.Signals.StopPrice(sig.Price))
			if qty <= 0 {
				continue
			}
			if err := ledger.Add(cfg.Symbol, sig.Price, qty, bar.Timestamp); err != nil {
				return result, err
			}
			result.Trades = append(result.Trades, Trade{Bar: bar, Signal: *sig, Qty: qty})
		case strategy.Exit:
			ledger.Remove(cfg.Symbol)
			pnl := pnlOf(open.EntryPrice, sig.Price, open.Quantity)
			total = total.Add(pnl)
			value, _ := pnl.Float64()
			gate.Settle(value)
			if value > 0 {
				result.Wins++
			} else {
				result.Losses++
			}
			result.Trades = append(result.Trades, Trade{Bar: bar, Signal: *sig, Qty: open.Quantity, PnL: value})
		}
	}

	result.TotalPnL, _ = total.Float64()
	if pos, ok := ledger.Get(cfg.Symbol); ok {
		last, _ := history.Last()
		result.Open = &pos
		result.OpenPnL, _ = pnlOf(pos.EntryPrice, last.Close, pos.Quantity).Float64()
	}
	slog.Info("backtest complete", "symbol", cfg.Symbol, "bars", len(bars), "trades", len(result.Trades), "pnl", result.TotalPnL)
	return result, nil
}

func pnlOf(entry, exit float64, qty int) decimal.Decimal {
	return decimal.NewFromFloat(exit).Sub(decimal.NewFromFloat(entry)).Mul(decimal.NewFromInt(int64(qty)))
}
