package engine

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"emabot/internal/strategy"
)

func TestDecisionLoggerAppendsStampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "decisions.ndjson")
	logger, err := NewDecisionLogger(path, "run-42")
	if err != nil {
		t.Fatalf("new decision logger: %v", err)
	}

	logger.Append(Decision{Timestamp: time.Now().UTC(), Symbol: "AAPL", Result: ResultNoSignal})
	logger.Append(Decision{Timestamp: time.Now().UTC(), Symbol: "MSFT", Action: strategy.Enter, Qty: 10, Result: ResultOrderSubmitted})
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	var got []Decision
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var d Decision
		if err := json.Unmarshal(scanner.Bytes(), &d); err != nil {
			t.Fatalf("decode %q: %v", scanner.Text(), err)
		}
		got = append(got, d)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(got))
	}
	if got[0].RunID != "run-42" || got[1].RunID != "run-42" {
		t.Fatalf("expected run id on every line, got %q and %q", got[0].RunID, got[1].RunID)
	}
	if got[1].Action != strategy.Enter || got[1].Result != ResultOrderSubmitted {
		t.Fatalf("unexpected second decision: %+v", got[1])
	}
}

func TestNilDecisionLoggerDiscards(t *testing.T) {
	var logger *DecisionLogger
	logger.Append(Decision{Symbol: "AAPL"})
	if logger.RunID() != "" {
		t.Fatalf("expected empty run id")
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
