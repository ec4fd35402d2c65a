package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"emabot/internal/broker"
	"emabot/internal/journal"
	"emabot/internal/md"
	"emabot/internal/metrics"
	"emabot/internal/risk"
	"emabot/internal/state"
	"emabot/internal/strategy"
)

var (
	ErrSizingInfeasible  = errors.New("position size infeasible")
	ErrOrderNotConfirmed = errors.New("order not confirmed")
	ErrNoPosition        = errors.New("no open position")
)

type TradeRecorder interface {
	Record(trade journal.Trade)
}

type Notifier interface {
	Notify(text string)
	NotifyTrade(symbol, side string, qty int, price float64, reason string)
}

type Options struct {
	Watchlist   []string
	BarInterval time.Duration
	Lookback    time.Duration
	Hours       MarketHours
	// LimitOrders attaches the signal price as a limit to every order.
	LimitOrders bool
}

type Deps struct {
	Source    md.Source
	Venue     broker.Venue
	Signals   strategy.EMACrossover
	Ledger    *state.Ledger
	Gate      *risk.Gate
	Recorder  TradeRecorder
	Notifier  Notifier
	Decisions *DecisionLogger
}

// Report lists the signals a cycle or force exit produced and how many of
// them resulted in a confirmed order.
type Report struct {
	Signals  []strategy.Signal
	Executed int
}

// Coordinator runs signal -> risk -> order -> ledger -> journal -> notify for
// each watchlist symbol. It is driven from a single loop; the ledger and gate
// carry their own locks.
type Coordinator struct {
	opts        Options
	source      md.Source
	venue       broker.Venue
	signals     strategy.EMACrossover
	ledger      *state.Ledger
	gate        *risk.Gate
	recorder    TradeRecorder
	notifier    Notifier
	decisions   *DecisionLogger
	runID       string
	orderSeqNum uint64
	now         func() time.Time
}

func New(opts Options, deps Deps) *Coordinator {
	c := &Coordinator{
		opts:      opts,
		source:    deps.Source,
		venue:     deps.Venue,
		signals:   deps.Signals,
		ledger:    deps.Ledger,
		gate:      deps.Gate,
		recorder:  deps.Recorder,
		notifier:  deps.Notifier,
		decisions: deps.Decisions,
		runID:     deps.Decisions.RunID(),
		now:       time.Now,
	}
	if c.recorder == nil {
		c.recorder = noopRecorder{}
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.runID == "" {
		c.runID = "run"
	}
	return c
}

// RunCycle evaluates the watchlist once, in declaration order. A failure on
// one symbol is logged and the cycle moves on.
func (c *Coordinator) RunCycle(ctx context.Context) Report {
	now := c.now()
	if !c.opts.Hours.IsOpen(now) {
		slog.Info("market is closed, skipping cycle")
		metrics.CyclesTotal.WithLabelValues("market_closed").Inc()
		return Report{}
	}

	mode := "live"
	if c.opts.Hours.Simulation {
		mode = "simulation"
	}
	slog.Info("scanning watchlist", "mode", mode, "regular_hours", c.opts.Hours.Regular(now), "symbols", len(c.opts.Watchlist), "open_positions", c.ledger.Count())

	var report Report
	for _, symbol := range c.opts.Watchlist {
		c.processSymbol(ctx, symbol, &report)
	}

	metrics.CycleDuration.Observe(c.now().Sub(now).Seconds())
	metrics.CyclesTotal.WithLabelValues("completed").Inc()
	slog.Info("cycle complete", "signals", len(report.Signals), "executed", report.Executed, "open_positions", c.ledger.Count())
	return report
}

func (c *Coordinator) processSymbol(ctx context.Context, symbol string, report *Report) {
	decision := Decision{Timestamp: c.now().UTC(), Symbol: symbol}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("error processing symbol", "symbol", symbol, "panic", r)
			decision.Result = ResultError
			decision.RejectReason = fmt.Sprint(r)
			c.decisions.Append(decision)
		}
	}()

	bars, err := c.source.Fetch(ctx, symbol, c.opts.BarInterval, c.opts.Lookback)
	if err != nil {
		slog.Warn("data unavailable", "symbol", symbol, "error", err)
		decision.Result = ResultNoData
		decision.RejectReason = err.Error()
		c.decisions.Append(decision)
		return
	}
	if len(bars) == 0 {
		slog.Warn("no data", "symbol", symbol)
		decision.Result = ResultNoData
		c.decisions.Append(decision)
		return
	}
	last := bars[len(bars)-1]
	decision.BarTime = last.Timestamp.UTC()
	decision.Close = last.Close

	var open *state.Position
	if pos, ok := c.ledger.Get(symbol); ok {
		open = &pos
	}

	sig := c.signals.Evaluate(symbol, bars, open)
	if sig == nil {
		decision.Result = ResultNoSignal
		c.decisions.Append(decision)
		return
	}
	report.Signals = append(report.Signals, *sig)
	metrics.SignalsTotal.WithLabelValues(symbol, string(sig.Action), sig.Reason).Inc()
	decision.Action = sig.Action
	decision.Reason = sig.Reason
	if sig.Indicators != nil {
		decision.FastEMA = sig.Indicators.FastEMA
		decision.SlowEMA = sig.Indicators.SlowEMA
	}

	if sig.Action == strategy.Enter && !c.opts.Hours.AcceptsEntries(c.now()) {
		slog.Info("entry window closed for the day", "symbol", symbol, "cutoff", c.opts.Hours.EntryCutoff.String())
		decision.Result = ResultEntryClosed
		c.decisions.Append(decision)
		return
	}
	if sig.Action == strategy.Enter && !c.gate.Admit(c.ledger.Count()) {
		slog.Info("cannot take position, risk limits", "symbol", symbol)
		decision.Result = ResultRiskRejected
		c.decisions.Append(decision)
		return
	}

	ref, qty, err := c.execute(ctx, *sig)
	decision.Qty = qty
	decision.OrderID = ref.ID
	decision.ClientOrderID = ref.ClientOrderID
	switch {
	case err == nil:
		decision.Result = ResultOrderSubmitted
		report.Executed++
	case errors.Is(err, ErrSizingInfeasible):
		decision.Result = ResultSizingRejected
		decision.RejectReason = err.Error()
	case errors.Is(err, ErrOrderNotConfirmed):
		decision.Result = ResultOrderFailed
		decision.RejectReason = err.Error()
	default:
		decision.Result = ResultError
		decision.RejectReason = err.Error()
	}
	c.decisions.Append(decision)
}

// ExecuteSignal turns a signal into an order. Entries are sized by the risk
// gate; exits sell the full ledger quantity. The ledger, journal and notifier
// are only touched after the venue confirms the order.
func (c *Coordinator) ExecuteSignal(ctx context.Context, sig strategy.Signal) error {
	_, _, err := c.execute(ctx, sig)
	return err
}

func (c *Coordinator) execute(ctx context.Context, sig strategy.Signal) (broker.OrderRef, int, error) {
	switch sig.Action {
	case strategy.Enter:
		return c.enter(ctx, sig)
	case strategy.Exit:
		return c.exit(ctx, sig)
	default:
		return broker.OrderRef{}, 0, fmt.Errorf("unknown signal action %q", sig.Action)
	}
}

func (c *Coordinator) enter(ctx context.Context, sig strategy.Signal) (broker.OrderRef, int, error) {
	if _, open := c.ledger.Get(sig.Symbol); open {
		return broker.OrderRef{}, 0, fmt.Errorf("enter %s: %w", sig.Symbol, state.ErrPositionExists)
	}
	stop := c.signals.StopPrice(sig.Price)
	qty := c.gate.Size(sig.Symbol, sig.Price, stop)
	if qty <= 0 {
		slog.Warn("invalid quantity", "symbol", sig.Symbol, "price", sig.Price, "stop", stop)
		return broker.OrderRef{}, 0, fmt.Errorf("enter %s at %.2f stop %.2f: %w", sig.Symbol, sig.Price, stop, ErrSizingInfeasible)
	}

	ref, err := c.submit(ctx, sig, broker.Buy, qty)
	if err != nil {
		return ref, qty, err
	}
	if err := c.ledger.Add(sig.Symbol, sig.Price, qty, c.now()); err != nil {
		return ref, qty, err
	}
	c.settled(sig, broker.Buy, qty, 0)
	return ref, qty, nil
}

func (c *Coordinator) exit(ctx context.Context, sig strategy.Signal) (broker.OrderRef, int, error) {
	pos, ok := c.ledger.Get(sig.Symbol)
	if !ok {
		slog.Warn("no position found to sell", "symbol", sig.Symbol)
		return broker.OrderRef{}, 0, fmt.Errorf("exit %s: %w", sig.Symbol, ErrNoPosition)
	}

	ref, err := c.submit(ctx, sig, broker.Sell, pos.Quantity)
	if err != nil {
		return ref, pos.Quantity, err
	}
	c.ledger.Remove(sig.Symbol)
	pnl := realizedPnL(pos.EntryPrice, sig.Price, pos.Quantity)
	c.gate.Settle(pnl)
	c.settled(sig, broker.Sell, pos.Quantity, pnl)
	return ref, pos.Quantity, nil
}

func (c *Coordinator) submit(ctx context.Context, sig strategy.Signal, side broker.Side, qty int) (broker.OrderRef, error) {
	req := broker.OrderRequest{
		Symbol:        sig.Symbol,
		Qty:           qty,
		Side:          side,
		ClientOrderID: c.nextClientOrderID(),
	}
	if c.opts.LimitOrders {
		price := sig.Price
		req.LimitPrice = &price
	}

	ref, err := c.venue.Submit(ctx, req)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues(sig.Symbol, string(side), "failed").Inc()
		slog.Warn("order submission failed", "symbol", sig.Symbol, "side", side, "qty", qty, "reason", sig.Reason, "error", err)
		return ref, fmt.Errorf("%s %d %s: %w: %w", side, qty, sig.Symbol, ErrOrderNotConfirmed, err)
	}
	if !ref.Confirmed() {
		metrics.OrdersTotal.WithLabelValues(sig.Symbol, string(side), "unconfirmed").Inc()
		slog.Warn("order not confirmed", "symbol", sig.Symbol, "side", side, "qty", qty, "reason", sig.Reason)
		return ref, fmt.Errorf("%s %d %s: %w", side, qty, sig.Symbol, ErrOrderNotConfirmed)
	}
	metrics.OrdersTotal.WithLabelValues(sig.Symbol, string(side), "confirmed").Inc()
	return ref, nil
}

func (c *Coordinator) settled(sig strategy.Signal, side broker.Side, qty int, pnl float64) {
	metrics.OpenPositions.Set(float64(c.ledger.Count()))
	c.recorder.Record(journal.Trade{
		Timestamp: c.now(),
		Symbol:    sig.Symbol,
		Side:      string(side),
		Quantity:  qty,
		Price:     sig.Price,
		Reason:    sig.Reason,
		PnL:       pnl,
		Status:    journal.StatusExecuted,
	})
	c.notifier.NotifyTrade(sig.Symbol, string(side), qty, sig.Price, sig.Reason)
	slog.Info("trade executed", "side", side, "qty", qty, "symbol", sig.Symbol, "price", sig.Price, "reason", sig.Reason, "pnl", pnl)
}

// ForceExitAll sells every open position at the venue's last price. A symbol
// whose price or order fails is logged and skipped; the rest still exit.
func (c *Coordinator) ForceExitAll(ctx context.Context) Report {
	positions := c.ledger.All()
	slog.Info("force exiting all positions", "count", len(positions))

	var report Report
	for _, pos := range positions {
		c.forceExit(ctx, pos, &report)
	}
	slog.Info("force exit complete", "closed", report.Executed, "remaining", c.ledger.Count())
	return report
}

func (c *Coordinator) forceExit(ctx context.Context, pos state.Position, report *Report) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("failed to force exit", "symbol", pos.Symbol, "panic", r)
		}
	}()

	price, err := c.venue.LastPrice(ctx, pos.Symbol)
	if err != nil {
		slog.Error("failed to force exit", "symbol", pos.Symbol, "stage", "last_price", "error", err)
		return
	}
	sig := strategy.Signal{
		Symbol: pos.Symbol,
		Action: strategy.Exit,
		Price:  price,
		Reason: strategy.ReasonForceExit,
	}
	report.Signals = append(report.Signals, sig)
	metrics.SignalsTotal.WithLabelValues(sig.Symbol, string(sig.Action), sig.Reason).Inc()

	if err := c.ExecuteSignal(ctx, sig); err != nil {
		slog.Error("failed to force exit", "symbol", pos.Symbol, "stage", "order", "error", err)
		return
	}
	report.Executed++
}

func (c *Coordinator) nextClientOrderID() string {
	seq := atomic.AddUint64(&c.orderSeqNum, 1)
	return fmt.Sprintf("%s-%d", c.runID, seq)
}

func realizedPnL(entry, exit float64, qty int) float64 {
	pnl, _ := decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(int64(qty))).
		Float64()
	return pnl
}

type noopRecorder struct{}

func (noopRecorder) Record(journal.Trade) {}

type noopNotifier struct{}

func (noopNotifier) Notify(string)                                    {}
func (noopNotifier) NotifyTrade(string, string, int, float64, string) {}
