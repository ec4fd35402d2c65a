package md

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRingBufferKeepsMostRecent(t *testing.T) {
	buffer := NewRingBuffer(3)
	for i := 1; i <= 5; i++ {
		buffer.Add(Bar{Close: float64(i)})
	}

	values := Closes(buffer.Values())
	expected := []float64{3, 4, 5}
	if len(values) != len(expected) {
		t.Fatalf("expected %d values, got %d", len(expected), len(values))
	}
	for i := range expected {
		if values[i] != expected[i] {
			t.Fatalf("expected %v, got %v", expected, values)
		}
	}
	last, ok := buffer.Last()
	if !ok || last.Close != 5 {
		t.Fatalf("expected last close 5, got %v ok=%v", last.Close, ok)
	}
}

func TestRingBufferPartial(t *testing.T) {
	buffer := NewRingBuffer(5)
	if _, ok := buffer.Last(); ok {
		t.Fatalf("expected empty buffer to have no last bar")
	}
	buffer.Add(Bar{Close: 1})

	if buffer.Len() != 1 {
		t.Fatalf("expected len 1, got %d", buffer.Len())
	}
}

func TestSyntheticSourceBarsAreOrderedAndRounded(t *testing.T) {
	source := NewSyntheticSource(42)
	bars, err := source.Fetch(context.Background(), "AAPL", 5*time.Minute, 2*time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(bars) != 24 {
		t.Fatalf("expected 24 bars, got %d", len(bars))
	}
	for i, bar := range bars {
		if i > 0 && !bars[i-1].Timestamp.Before(bar.Timestamp) {
			t.Fatalf("bars not ascending at %d", i)
		}
		if decimal.NewFromFloat(bar.Close).Exponent() < -2 {
			t.Fatalf("close %v not rounded to 2 decimals", bar.Close)
		}
		if bar.Low > bar.High {
			t.Fatalf("low %v above high %v", bar.Low, bar.High)
		}
	}
}

func TestTimeFrameRejectsSubMinute(t *testing.T) {
	if _, err := TimeFrame(30 * time.Second); err == nil {
		t.Fatalf("expected error for sub-minute interval")
	}
	if _, err := TimeFrame(5 * time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
