package risk

import (
	"log/slog"
	"math"
	"sync"

	"emabot/internal/metrics"
)

type Config struct {
	Capital          float64
	RiskPerTrade     float64
	MaxOpenPositions int
	DailyLossLimit   float64
	KillSwitch       bool
}

// State is the process-wide risk state. DailyPnL moves only when a closed
// trade is settled and returns to zero on ResetDaily.
type State struct {
	Config
	DailyPnL    float64
	DailyTrades int
}

type Gate struct {
	mu    sync.Mutex
	state State
}

func NewGate(cfg Config) *Gate {
	return &Gate{state: State{Config: cfg}}
}

// Size returns the share count whose loss at stop equals the per-trade risk
// amount. It returns 0 when entry and stop coincide.
func (g *Gate) Size(symbol string, entry, stop float64) int {
	g.mu.Lock()
	riskAmount := g.state.Capital * g.state.RiskPerTrade
	g.mu.Unlock()

	distance := math.Abs(entry - stop)
	if distance == 0 || riskAmount <= 0 {
		slog.Warn("position size infeasible", "symbol", symbol, "entry", entry, "stop", stop, "risk_amount", riskAmount)
		return 0
	}
	qty := int(math.Floor(riskAmount / distance))
	if qty < 1 {
		qty = 1
	}
	slog.Info("position sized", "symbol", symbol, "qty", qty, "risk_amount", riskAmount, "distance", distance)
	return qty
}

// Admit reports whether a new position may be opened while openCount
// positions are held. A refusal is a normal outcome, not an error.
func (g *Gate) Admit(openCount int) bool {
	g.mu.Lock()
	st := g.state
	g.mu.Unlock()

	reason := ""
	switch {
	case st.KillSwitch:
		reason = "kill_switch_enabled"
	case openCount >= st.MaxOpenPositions:
		reason = "max_positions_reached"
	case st.DailyPnL <= -(st.Capital * st.DailyLossLimit):
		reason = "daily_loss_limit"
	}
	if reason != "" {
		metrics.RiskRejections.WithLabelValues(reason).Inc()
		slog.Info("risk rejected", "reason", reason, "open", openCount, "max", st.MaxOpenPositions, "daily_pnl", st.DailyPnL)
		return false
	}
	return true
}

// Settle books the realized P&L of a closed trade.
func (g *Gate) Settle(pnl float64) {
	g.mu.Lock()
	g.state.DailyPnL += pnl
	g.state.DailyTrades++
	total := g.state.DailyPnL
	g.mu.Unlock()

	metrics.DailyPnL.Set(total)
	slog.Info("daily pnl updated", "pnl", pnl, "daily_pnl", total)
}

// ResetDaily is the daily rollover hook. The engine never calls it.
func (g *Gate) ResetDaily() {
	g.mu.Lock()
	prev := g.state.DailyPnL
	g.state.DailyPnL = 0
	g.state.DailyTrades = 0
	g.mu.Unlock()

	metrics.DailyPnL.Set(0)
	slog.Info("daily risk state reset", "previous_daily_pnl", prev)
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}
