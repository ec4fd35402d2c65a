// Package scheduler runs named jobs on interval and wall-clock triggers from
// a single polling loop.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"emabot/internal/config"
	"emabot/internal/metrics"
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultErrorBackoff = 60 * time.Second
)

type State string

const (
	Stopped State = "stopped"
	Running State = "running"
)

// Job is one unit of scheduled work. Jobs receive a context that is not
// cancelled by shutdown, so a started job always runs to completion.
type Job func(ctx context.Context) error

type Options struct {
	PollInterval time.Duration
	ErrorBackoff time.Duration
}

type trigger interface {
	start(now time.Time)
	due(now time.Time) bool
	fired(now time.Time)
}

type entry struct {
	name    string
	trigger trigger
	job     Job
}

type Scheduler struct {
	mu      sync.Mutex
	state   State
	entries []*entry
	poll    time.Duration
	backoff time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

func New(opts Options) *Scheduler {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = DefaultErrorBackoff
	}
	return &Scheduler{
		state:   Stopped,
		poll:    opts.PollInterval,
		backoff: opts.ErrorBackoff,
		now:     time.Now,
		sleep:   WaitForContext,
	}
}

// Every runs job each time interval has elapsed since its last firing. The
// first firing is one interval after Run starts.
func (s *Scheduler) Every(interval time.Duration, name string, job Job) {
	s.add(name, &intervalTrigger{interval: interval}, job)
}

// DailyAt runs job once per calendar day in loc, at the first poll at or after
// clock. Starting after clock on a given day skips that day.
func (s *Scheduler) DailyAt(clock config.Clock, loc *time.Location, name string, job Job) {
	if loc == nil {
		loc = time.Local
	}
	s.add(name, &dailyTrigger{clock: clock, loc: loc}, job)
}

func (s *Scheduler) add(name string, trig trigger, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{name: name, trigger: trig, job: job})
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run polls the triggers until ctx is cancelled and then returns nil. A job
// error or panic is logged and followed by the error backoff instead of the
// poll interval.
func (s *Scheduler) Run(ctx context.Context) error {
	start := s.now()
	s.mu.Lock()
	for _, e := range s.entries {
		e.trigger.start(start)
	}
	s.state = Running
	entries := append([]*entry(nil), s.entries...)
	s.mu.Unlock()
	defer s.setState(Stopped)

	slog.Info("scheduler started", "jobs", len(entries), "poll", s.poll)
	for {
		if ctx.Err() != nil {
			break
		}
		delay := s.poll
		if failed := s.runPending(ctx, entries); failed {
			slog.Info("backing off after job failure", "delay", s.backoff)
			delay = s.backoff
		}
		if err := s.sleep(ctx, delay); err != nil {
			break
		}
	}
	slog.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runPending(ctx context.Context, entries []*entry) bool {
	failed := false
	for _, e := range entries {
		now := s.now()
		if !e.trigger.due(now) {
			continue
		}
		e.trigger.fired(now)
		if err := s.runJob(ctx, e); err != nil {
			metrics.SchedulerJobErrors.WithLabelValues(e.name).Inc()
			slog.Error("scheduled job failed", "job", e.name, "error", err)
			failed = true
		}
	}
	return failed
}

func (s *Scheduler) runJob(ctx context.Context, e *entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.name, r)
		}
	}()
	return e.job(context.WithoutCancel(ctx))
}

// WaitForContext sleeps for delay or until ctx is done, whichever is first.
func WaitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type intervalTrigger struct {
	interval time.Duration
	last     time.Time
}

func (t *intervalTrigger) start(now time.Time) { t.last = now }

func (t *intervalTrigger) due(now time.Time) bool {
	return now.Sub(t.last) >= t.interval
}

func (t *intervalTrigger) fired(now time.Time) { t.last = now }

type dailyTrigger struct {
	clock config.Clock
	loc   *time.Location
	last  string
}

func (t *dailyTrigger) start(now time.Time) {
	local := now.In(t.loc)
	if !local.Before(t.clock.On(local)) {
		t.last = dayKey(local)
	}
}

func (t *dailyTrigger) due(now time.Time) bool {
	local := now.In(t.loc)
	return dayKey(local) != t.last && !local.Before(t.clock.On(local))
}

func (t *dailyTrigger) fired(now time.Time) { t.last = dayKey(now.In(t.loc)) }

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}
