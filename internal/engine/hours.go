package engine

import (
	"log/slog"
	"time"

	"emabot/internal/config"
)

// MarketHours gates cycles on the regular session. Simulation forces the
// market open and says so in the log on every check.
type MarketHours struct {
	Open       config.Clock
	Close      config.Clock
	Location   *time.Location
	Simulation bool
	// EntryCutoff, when set, closes the entry window from the cutoff until
	// Close so no position opens after the daily force exit.
	EntryCutoff *config.Clock
}

func (h MarketHours) IsOpen(now time.Time) bool {
	regular := h.Regular(now)
	if h.Simulation {
		slog.Info("simulation mode: market treated as open", "regular_hours", regular, "now", now.Format(time.Kitchen))
		return true
	}
	return regular
}

// Regular reports whether now falls inside [Open, Close] on its own day in
// the market timezone.
func (h MarketHours) Regular(now time.Time) bool {
	now = h.local(now)
	open := h.Open.On(now)
	closeAt := h.Close.On(now)
	return !now.Before(open) && !now.After(closeAt)
}

// AcceptsEntries reports whether a new position may be opened at now. Exits
// are never restricted.
func (h MarketHours) AcceptsEntries(now time.Time) bool {
	if h.EntryCutoff == nil {
		return true
	}
	now = h.local(now)
	return now.Before(h.EntryCutoff.On(now)) || now.After(h.Close.On(now))
}

func (h MarketHours) local(now time.Time) time.Time {
	if h.Location != nil {
		return now.In(h.Location)
	}
	return now
}
