package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"emabot/internal/md"
)

// SimulatedVenue confirms every order without routing it anywhere and
// quotes the latest close from its bar source.
type SimulatedVenue struct {
	prices   md.Source
	interval time.Duration
	seq      atomic.Uint64
}

func NewSimulatedVenue(prices md.Source, interval time.Duration) *SimulatedVenue {
	return &SimulatedVenue{prices: prices, interval: interval}
}

func (v *SimulatedVenue) Submit(ctx context.Context, req OrderRequest) (OrderRef, error) {
	if err := ctx.Err(); err != nil {
		return OrderRef{}, err
	}
	if req.Qty <= 0 {
		return OrderRef{}, fmt.Errorf("simulated order for %s: invalid quantity %d", req.Symbol, req.Qty)
	}
	id := fmt.Sprintf("SIM-%s-%s-%d", req.Symbol, req.Side, v.seq.Add(1))
	slog.Info("simulated order", "order_id", id, "side", req.Side, "symbol", req.Symbol, "qty", req.Qty)
	return OrderRef{ID: id, ClientOrderID: req.ClientOrderID, Status: "filled"}, nil
}

func (v *SimulatedVenue) LastPrice(ctx context.Context, symbol string) (float64, error) {
	bars, err := v.prices.Fetch(ctx, symbol, v.interval, v.interval)
	if err != nil {
		return 0, fmt.Errorf("last price %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("last price %s: %w", symbol, ErrNoPrice)
	}
	return bars[len(bars)-1].Close, nil
}
