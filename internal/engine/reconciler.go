package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"emabot/internal/broker"
	"emabot/internal/state"
)

// PositionReader is the part of a live venue reconciliation needs.
type PositionReader interface {
	Positions(ctx context.Context) ([]broker.Position, error)
	Account(ctx context.Context) (broker.Account, error)
}

type Drift struct {
	Symbol    string
	LedgerQty int
	VenueQty  int
}

// Reconcile compares the ledger with the venue's reported positions and logs
// every mismatch. It never mutates the ledger; drift is for an operator to
// resolve.
func Reconcile(ctx context.Context, venue PositionReader, ledger *state.Ledger) ([]Drift, error) {
	positions, err := venue.Positions(ctx)
	if err != nil {
		var apiErr *alpaca.APIError
		if errors.As(err, &apiErr) {
			slog.Error("reconcile positions failed", "status", apiErr.StatusCode, "error", apiErr.Message)
		} else {
			slog.Error("reconcile positions failed", "error", err)
		}
		return nil, err
	}

	venueQty := make(map[string]int, len(positions))
	for _, pos := range positions {
		venueQty[pos.Symbol] = pos.Qty
	}

	var drift []Drift
	for _, pos := range ledger.All() {
		qty, ok := venueQty[pos.Symbol]
		delete(venueQty, pos.Symbol)
		if ok && qty == pos.Quantity {
			continue
		}
		drift = append(drift, Drift{Symbol: pos.Symbol, LedgerQty: pos.Quantity, VenueQty: qty})
	}
	untracked := make([]string, 0, len(venueQty))
	for symbol := range venueQty {
		untracked = append(untracked, symbol)
	}
	sort.Strings(untracked)
	for _, symbol := range untracked {
		drift = append(drift, Drift{Symbol: symbol, VenueQty: venueQty[symbol]})
	}
	for _, d := range drift {
		slog.Warn("position drift", "symbol", d.Symbol, "ledger_qty", d.LedgerQty, "venue_qty", d.VenueQty)
	}

	account, err := venue.Account(ctx)
	if err != nil {
		slog.Error("reconcile account failed", "error", err)
	} else {
		slog.Info("account", "equity", account.Equity, "buying_power", account.BuyingPower, "drift", len(drift))
	}
	return drift, nil
}
