package strategy

import (
	"emabot/internal/md"
	"emabot/internal/state"
)

// EMA returns the exponential moving average of values aligned index for
// index with the input, seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || period <= 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

type EMACrossover struct {
	FastPeriod    int
	SlowPeriod    int
	StopLossPct   float64
	TakeProfitPct float64
}

// Evaluate returns an exit or entry signal for symbol, or nil when there is
// nothing to do. pos is the currently open position for symbol, if any.
//
// Fewer than SlowPeriod bars yields nil. Threshold exits are checked before
// crossovers, and a stop-loss breach wins over a take-profit breach.
func (s EMACrossover) Evaluate(symbol string, bars []md.Bar, pos *state.Position) *Signal {
	if len(bars) < s.SlowPeriod || len(bars) < 2 {
		return nil
	}
	price := bars[len(bars)-1].Close

	if pos != nil {
		if reason, ok := s.thresholdExit(pos.EntryPrice, price); ok {
			return &Signal{Symbol: symbol, Action: Exit, Price: price, Reason: reason}
		}
	}

	closes := md.Closes(bars)
	fast := EMA(closes, s.FastPeriod)
	slow := EMA(closes, s.SlowPeriod)
	last := len(closes) - 1
	curFast, curSlow := fast[last], slow[last]
	prevFast, prevSlow := fast[last-1], slow[last-1]
	snapshot := &Indicators{FastEMA: curFast, SlowEMA: curSlow}

	switch {
	case prevFast <= prevSlow && curFast > curSlow:
		if pos == nil {
			return &Signal{Symbol: symbol, Action: Enter, Price: price, Reason: ReasonBullishCrossover, Indicators: snapshot}
		}
	case prevFast >= prevSlow && curFast < curSlow:
		if pos != nil {
			return &Signal{Symbol: symbol, Action: Exit, Price: price, Reason: ReasonBearishCrossover, Indicators: snapshot}
		}
	}
	return nil
}

// StopPrice is the stop-loss level for a long entry at entry.
func (s EMACrossover) StopPrice(entry float64) float64 {
	return entry * (1 - s.StopLossPct)
}

func (s EMACrossover) thresholdExit(entry, price float64) (string, bool) {
	if price <= s.StopPrice(entry) {
		return ReasonStopLoss, true
	}
	if price >= entry*(1+s.TakeProfitPct) {
		return ReasonTakeProfit, true
	}
	return "", false
}
