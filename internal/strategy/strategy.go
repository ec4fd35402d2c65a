package strategy

type Action string

const (
	Enter Action = "ENTER"
	Exit  Action = "EXIT"
)

const (
	ReasonBullishCrossover = "EMA Bullish Crossover"
	ReasonBearishCrossover = "EMA Bearish Crossover"
	ReasonStopLoss         = "Stop Loss"
	ReasonTakeProfit       = "Take Profit"
	ReasonForceExit        = "Force Exit - Market Close"
)

// Indicators is the EMA state a signal was derived from.
type Indicators struct {
	FastEMA float64 `json:"fast_ema"`
	SlowEMA float64 `json:"slow_ema"`
}

// Signal is produced at most once per symbol per cycle and consumed
// immediately by the engine.
type Signal struct {
	Symbol     string
	Action     Action
	Price      float64
	Reason     string
	Indicators *Indicators
}
