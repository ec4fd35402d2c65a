package engine

import (
	"testing"
	"time"

	"emabot/internal/config"
)

func TestMarketHoursRegularIsInclusive(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	hours := MarketHours{Open: config.Clock{Hour: 9, Minute: 30}, Close: config.Clock{Hour: 16}, Location: ny}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before open", time.Date(2024, 3, 4, 9, 29, 59, 0, ny), false},
		{"at open", time.Date(2024, 3, 4, 9, 30, 0, 0, ny), true},
		{"midday", time.Date(2024, 3, 4, 12, 0, 0, 0, ny), true},
		{"at close", time.Date(2024, 3, 4, 16, 0, 0, 0, ny), true},
		{"after close", time.Date(2024, 3, 4, 16, 0, 1, 0, ny), false},
		// 14:45 UTC is 09:45 in New York before the DST switch.
		{"converted from utc", time.Date(2024, 3, 4, 14, 45, 0, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hours.IsOpen(tc.now); got != tc.want {
				t.Fatalf("IsOpen(%s): expected %v, got %v", tc.now, tc.want, got)
			}
		})
	}
}

func TestMarketHoursSimulationOverride(t *testing.T) {
	hours := MarketHours{Open: config.Clock{Hour: 9, Minute: 30}, Close: config.Clock{Hour: 16}, Location: time.UTC, Simulation: true}
	night := time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)
	if !hours.IsOpen(night) {
		t.Fatalf("expected simulation to force market open")
	}
	if hours.Regular(night) {
		t.Fatalf("expected 23:00 outside regular hours")
	}
}

func TestMarketHoursEntryCutoff(t *testing.T) {
	cutoff := config.Clock{Hour: 15, Minute: 15}
	hours := MarketHours{Open: config.Clock{Hour: 9, Minute: 30}, Close: config.Clock{Hour: 16}, Location: time.UTC, EntryCutoff: &cutoff}

	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"morning", time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC), true},
		{"just before cutoff", time.Date(2024, 3, 4, 15, 14, 59, 0, time.UTC), true},
		{"at cutoff", time.Date(2024, 3, 4, 15, 15, 0, 0, time.UTC), false},
		{"at close", time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC), false},
		{"after close", time.Date(2024, 3, 4, 16, 0, 1, 0, time.UTC), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := hours.AcceptsEntries(tc.now); got != tc.want {
				t.Fatalf("AcceptsEntries(%s): expected %v, got %v", tc.now, tc.want, got)
			}
		})
	}

	hours.EntryCutoff = nil
	if !hours.AcceptsEntries(time.Date(2024, 3, 4, 15, 30, 0, 0, time.UTC)) {
		t.Fatalf("expected entries without a cutoff")
	}
}
