// Package journal appends executed trades to a CSV file.
package journal

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const StatusExecuted = "EXECUTED"

var header = []string{"timestamp", "symbol", "action", "quantity", "price", "reason", "pnl", "status"}

type Trade struct {
	Timestamp time.Time
	Symbol    string
	Side      string
	Quantity  int
	Price     float64
	Reason    string
	PnL       float64
	Status    string
}

// CSVRecorder is safe for concurrent use. Write failures are logged and
// swallowed so trading never blocks on the journal.
type CSVRecorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewCSVRecorder(path string) (*CSVRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	r := &CSVRecorder{file: file, writer: csv.NewWriter(file)}
	if info.Size() == 0 {
		if err := r.write(header); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write trade journal header: %w", err)
		}
	}
	return r, nil
}

func (r *CSVRecorder) Record(trade Trade) {
	if trade.Timestamp.IsZero() {
		trade.Timestamp = time.Now()
	}
	if trade.Status == "" {
		trade.Status = StatusExecuted
	}
	row := []string{
		trade.Timestamp.Format(time.RFC3339),
		trade.Symbol,
		trade.Side,
		strconv.Itoa(trade.Quantity),
		decimal.NewFromFloat(trade.Price).StringFixed(2),
		trade.Reason,
		decimal.NewFromFloat(trade.PnL).StringFixed(2),
		trade.Status,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.write(row); err != nil {
		slog.Error("failed to record trade", "symbol", trade.Symbol, "side", trade.Side, "error", err)
		return
	}
	slog.Info("trade logged", "side", trade.Side, "qty", trade.Quantity, "symbol", trade.Symbol, "price", trade.Price, "reason", trade.Reason)
}

func (r *CSVRecorder) write(row []string) error {
	if r.file == nil {
		return os.ErrClosed
	}
	if err := r.writer.Write(row); err != nil {
		return err
	}
	r.writer.Flush()
	return r.writer.Error()
}

func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	r.writer.Flush()
	err := r.file.Close()
	r.file = nil
	return err
}
