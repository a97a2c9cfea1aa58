// Package cron runs background workers that fire trigger handlers on
// wall-clock schedules. One worker serves one (expression, handler)
// pair; a worker that is not running during a scheduled fire simply
// misses it, there is no catch-up.
package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// parser accepts standard five-field expressions, an optional leading
// seconds field, and descriptors such as "@hourly" and "@every 10s".
var parser = robfig.NewParser(
	robfig.SecondOptional | robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow | robfig.Descriptor,
)

// Parse compiles a cron expression into a schedule.
func Parse(expr string) (robfig.Schedule, error) {
	return parser.Parse(expr)
}

// IsValid reports whether expr is a syntactically valid cron
// expression.
func IsValid(expr string) bool {
	_, err := parser.Parse(expr)
	return err == nil
}

// Job is one scheduled unit of work: a handler invocation bound to a
// cron expression by the trigger registry.
type Job struct {
	// Schedule is the cron expression.
	Schedule string
	// Name identifies the trigger for logging.
	Name string
	// Run performs one invocation against a fresh handle.
	Run func(ctx context.Context) error
}

// Scheduler owns the background workers. Zero value is not usable; use
// NewScheduler.
type Scheduler struct {
	mu      sync.Mutex
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	running bool
}

// NewScheduler creates a stopped scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{}
}

// Start validates every job's schedule and spawns one worker per job.
// Starting an already-running scheduler is an error.
func (s *Scheduler) Start(ctx context.Context, jobs []Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	schedules := make([]robfig.Schedule, len(jobs))
	for i, job := range jobs {
		sched, err := parser.Parse(job.Schedule)
		if err != nil {
			return fmt.Errorf("invalid schedule %q for trigger %q: %w", job.Schedule, job.Name, err)
		}
		schedules[i] = sched
	}

	workerCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for i, job := range jobs {
		s.wg.Add(1)
		go s.run(workerCtx, job, schedules[i])
	}

	slog.Info("Cron scheduler started", "workers", len(jobs))
	return nil
}

// Stop signals every worker to terminate after its current invocation
// and waits for full termination. Idempotent; safe without a prior
// Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	slog.Info("Cron scheduler stopped")
}

// run is one worker loop: compute next fire, sleep, invoke, repeat.
func (s *Scheduler) run(ctx context.Context, job Job, sched robfig.Schedule) {
	defer s.wg.Done()

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.invoke(ctx, job)
	}
}

// invoke runs one firing. A failing or panicking handler must not take
// the worker down; the fault is logged and the next fire proceeds.
func (s *Scheduler) invoke(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Cron handler panicked", "trigger", job.Name, "panic", r)
		}
	}()

	if err := job.Run(ctx); err != nil {
		slog.Error("Cron handler failed", "trigger", job.Name, "schedule", job.Schedule, "error", err)
	}
}
