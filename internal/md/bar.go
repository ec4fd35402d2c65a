package md

import (
	"context"
	"time"
)

// Bar is one OHLCV sample. Sources return bars in ascending Timestamp order.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Source supplies historical bars for a symbol. An empty slice with a nil
// error means the source has no data for the symbol.
type Source interface {
	Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) ([]Bar, error)
}

func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return closes
}
