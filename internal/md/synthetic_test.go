package md

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestSyntheticSourceContinuesWalkAcrossFetches(t *testing.T) {
	source := NewSyntheticSource(42)
	now := time.Date(2024, 3, 4, 10, 2, 0, 0, time.UTC)
	source.now = func() time.Time { return now }
	ctx := context.Background()
	interval := 5 * time.Minute

	first, err := source.Fetch(ctx, "AAPL", interval, 5*24*time.Hour)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	lastClose := first[len(first)-1].Close

	// A last-price style fetch sees the same bar the cycle just evaluated.
	quote, err := source.Fetch(ctx, "AAPL", interval, interval)
	if err != nil || len(quote) != 1 {
		t.Fatalf("quote fetch: %v, %d bars", err, len(quote))
	}
	if quote[0] != first[len(first)-1] {
		t.Fatalf("expected quote %+v to equal last bar %+v", quote[0], first[len(first)-1])
	}

	for step := 0; step < 50; step++ {
		now = now.Add(interval)
		next, err := source.Fetch(ctx, "AAPL", interval, 5*24*time.Hour)
		if err != nil {
			t.Fatalf("fetch step %d: %v", step, err)
		}
		if len(next) != len(first) {
			t.Fatalf("step %d: expected %d bars, got %d", step, len(first), len(next))
		}
		if next[len(next)-2].Close != lastClose {
			t.Fatalf("step %d: history rewritten, expected %v got %v", step, lastClose, next[len(next)-2].Close)
		}
		newClose := next[len(next)-1].Close
		// One walk step of at most 1 plus open/close noise of 0.5 either side.
		if diff := math.Abs(newClose - lastClose); diff > 2.01 {
			t.Fatalf("step %d: close jumped %v -> %v", step, lastClose, newClose)
		}
		lastClose = newClose
	}
}

func TestSyntheticSourceSymbolsAreIndependent(t *testing.T) {
	source := NewSyntheticSource(7)
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return now }

	aapl, _ := source.Fetch(context.Background(), "AAPL", 5*time.Minute, time.Hour)
	msft, _ := source.Fetch(context.Background(), "MSFT", 5*time.Minute, time.Hour)
	again, _ := source.Fetch(context.Background(), "AAPL", 5*time.Minute, time.Hour)

	if len(aapl) != 12 || len(msft) != 12 {
		t.Fatalf("expected 12 bars each, got %d and %d", len(aapl), len(msft))
	}
	for i := range aapl {
		if aapl[i] != again[i] {
			t.Fatalf("bar %d changed between fetches at the same time", i)
		}
	}
}

func TestSyntheticSourceExtendsHistoryBackwards(t *testing.T) {
	source := NewSyntheticSource(3)
	now := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
	source.now = func() time.Time { return now }

	short, _ := source.Fetch(context.Background(), "AAPL", 5*time.Minute, 5*time.Minute)
	long, _ := source.Fetch(context.Background(), "AAPL", 5*time.Minute, time.Hour)

	if len(long) != 12 {
		t.Fatalf("expected 12 bars, got %d", len(long))
	}
	if long[len(long)-1] != short[0] {
		t.Fatalf("expected newest bar to be kept when history grows")
	}
	for i := 1; i < len(long); i++ {
		if !long[i-1].Timestamp.Before(long[i].Timestamp) {
			t.Fatalf("bars not ascending at %d", i)
		}
	}
}
