// Package scheduler runs the periodic background tasks: the stuck-job reaper,
// the queue metrics refresh and the health supervisor. Each task owns its own
// ticker so a slow task never delays another.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Task is one periodic job.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// RunAtStart runs the task once before the first tick.
	RunAtStart bool
}

// Scheduler drives a fixed set of tasks until its context ends.
type Scheduler struct {
	tasks  []Task
	logger *slog.Logger
	wg     sync.WaitGroup
}

// New validates tasks and returns a Scheduler.
func New(tasks ...Task) (*Scheduler, error) {
	for _, t := range tasks {
		if t.Name == "" {
			return nil, fmt.Errorf("scheduler: task name is required")
		}
		if t.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: task %s: interval must be positive, got %s", t.Name, t.Interval)
		}
		if t.Run == nil {
			return nil, fmt.Errorf("scheduler: task %s: run function is required", t.Name)
		}
	}
	return &Scheduler{
		tasks:  tasks,
		logger: slog.With("component", "scheduler"),
	}, nil
}

// Start launches one goroutine per task and returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

// Wait blocks until every task loop has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()

	log := s.logger.With("task", t.Name)
	log.Info("starting task", "interval", t.Interval)

	if t.RunAtStart {
		s.runOnce(ctx, t, log)
	}

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("task stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, t, log)
		}
	}
}

// runOnce executes a task and logs its failure. A panicking task is logged and
// stays scheduled.
func (s *Scheduler) runOnce(ctx context.Context, t Task, log *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in scheduled task", "error", r)
		}
	}()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Error("scheduled task failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	log.Debug("scheduled task finished", "duration_ms", time.Since(start).Milliseconds())
}
