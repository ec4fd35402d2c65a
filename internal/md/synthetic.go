package md

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SyntheticSource generates random-walk candles so the pipeline can run in
// simulation mode without market data credentials. Each symbol keeps one
// walk: later fetches extend it, so consecutive cycles and last-price quotes
// see a continuous series. The output is not fit for trading decisions.
type SyntheticSource struct {
	mu    sync.Mutex
	rng   *rand.Rand
	now   func() time.Time
	walks map[string]*walk
}

// walk is the generated history of one symbol. firstMid and lastMid are the
// unrounded walk prices behind the oldest and newest bar.
type walk struct {
	interval time.Duration
	bars     []Bar
	firstMid float64
	lastMid  float64
	keep     int
}

const minSyntheticPrice = 1.0

func NewSyntheticSource(seed int64) *SyntheticSource {
	return &SyntheticSource{
		rng:   rand.New(rand.NewSource(seed)),
		now:   time.Now,
		walks: make(map[string]*walk),
	}
}

func (s *SyntheticSource) Fetch(ctx context.Context, symbol string, interval, lookback time.Duration) ([]Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if interval <= 0 || lookback < interval {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := int(lookback / interval)
	end := s.now().Truncate(interval)

	w, ok := s.walks[symbol]
	if !ok || w.interval != interval {
		mid := s.uniform(100, 500)
		w = &walk{interval: interval, bars: []Bar{s.candle(mid, end)}, firstMid: mid, lastMid: mid}
		s.walks[symbol] = w
	}

	for last := w.bars[len(w.bars)-1].Timestamp; last.Before(end); last = last.Add(interval) {
		w.lastMid = s.step(w.lastMid)
		w.bars = append(w.bars, s.candle(w.lastMid, last.Add(interval)))
	}
	if missing := count - len(w.bars); missing > 0 {
		older := make([]Bar, missing)
		first := w.bars[0].Timestamp
		for i := missing - 1; i >= 0; i-- {
			w.firstMid = s.step(w.firstMid)
			first = first.Add(-interval)
			older[i] = s.candle(w.firstMid, first)
		}
		w.bars = append(older, w.bars...)
	}

	w.keep = max(w.keep, count)
	if extra := len(w.bars) - w.keep; extra > 0 {
		w.bars = append([]Bar(nil), w.bars[extra:]...)
		w.firstMid = (w.bars[0].Open + w.bars[0].Close) / 2
	}

	bars := w.bars
	for len(bars) > 0 && bars[len(bars)-1].Timestamp.After(end) {
		bars = bars[:len(bars)-1]
	}
	if len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	return append([]Bar(nil), bars...), nil
}

func (s *SyntheticSource) step(mid float64) float64 {
	return max(mid+s.uniform(-1, 1), minSyntheticPrice)
}

func (s *SyntheticSource) candle(mid float64, ts time.Time) Bar {
	open := mid + s.uniform(-0.5, 0.5)
	closePrice := mid + s.uniform(-0.5, 0.5)
	high := max(open, closePrice) + s.uniform(0, 0.3)
	low := min(open, closePrice) - s.uniform(0, 0.3)
	return Bar{
		Timestamp: ts,
		Open:      round2(open),
		High:      round2(high),
		Low:       round2(low),
		Close:     round2(closePrice),
		Volume:    1000 + s.rng.Int63n(9001),
	}
}

func (s *SyntheticSource) uniform(lo, hi float64) float64 {
	return lo + s.rng.Float64()*(hi-lo)
}

func round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}
