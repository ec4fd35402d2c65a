package engine

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"emabot/internal/strategy"
)

const (
	ResultNoData         = "no_data"
	ResultNoSignal       = "no_signal"
	ResultRiskRejected   = "risk_rejected"
	ResultEntryClosed    = "entry_closed"
	ResultSizingRejected = "sizing_rejected"
	ResultOrderFailed    = "order_failed"
	ResultOrderSubmitted = "order_submitted"
	ResultError          = "error"
)

type Decision struct {
	RunID         string          `json:"run_id"`
	Timestamp     time.Time       `json:"timestamp"`
	BarTime       time.Time       `json:"bar_time,omitempty"`
	Symbol        string          `json:"symbol"`
	Close         float64         `json:"close,omitempty"`
	FastEMA       float64         `json:"fast_ema,omitempty"`
	SlowEMA       float64         `json:"slow_ema,omitempty"`
	Action        strategy.Action `json:"action,omitempty"`
	Reason        string          `json:"reason,omitempty"`
	Qty           int             `json:"qty,omitempty"`
	Result        string          `json:"result"`
	RejectReason  string          `json:"reject_reason,omitempty"`
	OrderID       string          `json:"order_id,omitempty"`
	ClientOrderID string          `json:"client_order_id,omitempty"`
}

// DecisionLogger appends one JSON object per line. A nil logger discards.
type DecisionLogger struct {
	runID  string
	file   *os.File
	writer *bufio.Writer
	mu     sync.Mutex
}

func NewDecisionLogger(path string, runID string) (*DecisionLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &DecisionLogger{
		runID:  runID,
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

func (d *DecisionLogger) RunID() string {
	if d == nil {
		return ""
	}
	return d.runID
}

func (d *DecisionLogger) Append(decision Decision) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	decision.RunID = d.runID
	payload, err := json.Marshal(decision)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal decision: %v\n", err)
		return
	}
	if _, err := d.writer.Write(append(payload, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write decision: %v\n", err)
		return
	}
	if err := d.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush decision log: %v\n", err)
	}
}

func (d *DecisionLogger) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writer.Flush(); err != nil {
		_ = d.file.Close()
		return err
	}
	return d.file.Close()
}
