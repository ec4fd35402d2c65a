package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

var ErrPositionExists = errors.New("position already open")

type Position struct {
	Symbol     string    `json:"symbol"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   int       `json:"quantity"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Ledger holds at most one open position per symbol. It is the only owner of
// position state; callers get copies.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewLedger() *Ledger {
	return &Ledger{positions: map[string]Position{}}
}

// Add opens a position. Adding a symbol that is already open is rejected,
// never overwritten.
func (l *Ledger) Add(symbol string, entryPrice float64, quantity int, openedAt time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.positions[symbol]; ok {
		slog.Error("ledger add rejected", "symbol", symbol, "reason", "position_exists", "existing_qty", existing.Quantity, "existing_entry", existing.EntryPrice)
		return fmt.Errorf("add %s: %w", symbol, ErrPositionExists)
	}
	l.positions[symbol] = Position{
		Symbol:     symbol,
		EntryPrice: entryPrice,
		Quantity:   quantity,
		OpenedAt:   openedAt,
	}
	return nil
}

func (l *Ledger) Remove(symbol string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, symbol)
}

func (l *Ledger) Get(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}

// All returns a copy of the open positions ordered by open time, then symbol.
func (l *Ledger) All() []Position {
	l.mu.RLock()
	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, pos)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func (l *Ledger) Save(path string) error {
	data, err := json.MarshalIndent(l.All(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the ledger contents with the checkpoint at path.
func (l *Ledger) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var positions []Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return err
	}

	loaded := make(map[string]Position, len(positions))
	for _, pos := range positions {
		if _, dup := loaded[pos.Symbol]; dup {
			return fmt.Errorf("checkpoint %s: duplicate symbol %s: %w", path, pos.Symbol, ErrPositionExists)
		}
		loaded[pos.Symbol] = pos
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = loaded
	return nil
}
