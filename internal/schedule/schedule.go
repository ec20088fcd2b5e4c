// Package schedule runs periodic collection passes on a cron spec.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"kolmeter/internal/logging"
)

// Job is one scheduled pass.
type Job func(ctx context.Context)

// Scheduler fires jobs on cron specs. A job whose previous pass is still
// running is skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	entries map[string]cron.EntryID
}

// New creates a scheduler in UTC. Jobs receive a context derived from ctx that
// is canceled by Stop.
func New(ctx context.Context) *Scheduler {
	ctx, cancel := context.WithCancel(ctx)
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithLogger(cron.PrintfLogger(logging.Logger()))),
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers job under name. spec accepts five-field cron lines and
// descriptors such as "@every 6h" or "@daily".
func (s *Scheduler) Add(name, spec string, job Job) error {
	id, err := s.cron.AddFunc(spec, guard(s.ctx, name, job))
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.entries[name] = id
	logging.Info("schedule_added", map[string]any{"job": name, "spec": spec})
	return nil
}

// Start begins firing jobs in the background.
func (s *Scheduler) Start() {
	logging.Info("schedule_start", map[string]any{"jobs": len(s.entries)})
	s.cron.Start()
}

// Stop cancels running jobs and returns a context done once they returned.
func (s *Scheduler) Stop() context.Context {
	logging.Info("schedule_stop", nil)
	s.cancel()
	return s.cron.Stop()
}

// NextRun reports when name fires next, or false if unknown or not started.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	if !e.Valid() || e.Next.IsZero() {
		return time.Time{}, false
	}
	return e.Next, true
}

// Next parses spec and returns its first activation after from.
func Next(spec string, from time.Time) (time.Time, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", spec, err)
	}
	return sched.Next(from), nil
}

func guard(ctx context.Context, name string, job Job) func() {
	var running atomic.Bool
	return func() {
		if !running.CompareAndSwap(false, true) {
			logging.Warn("schedule_skip_overlap", map[string]any{"job": name})
			return
		}
		defer running.Store(false)
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		logging.Info("schedule_fire", map[string]any{"job": name})
		job(ctx)
		logging.Info("schedule_done", map[string]any{"job": name, "took_ms": time.Since(start).Milliseconds()})
	}
}
