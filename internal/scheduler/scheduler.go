package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval with the scheduled tick time.
type TickFunc func(ctx context.Context, at time.Time) error

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	// Align snaps ticks to multiples of Interval on the wall clock.
	Align bool
	// Immediate runs the job once as soon as the scheduler starts.
	Immediate bool
	Tick      TickFunc
}

// Scheduler drives a set of periodic jobs, each on its own goroutine.
type Scheduler struct {
	logger zerolog.Logger

	mu   sync.Mutex
	jobs []Job
}

// New constructs an empty Scheduler.
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{logger: logger.With().Str("component", "scheduler").Logger()}
}

// Add registers a job. It must be called before Run.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name)
	}
	if job.Tick == nil {
		return fmt.Errorf("job %s: tick function is required", job.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs lists registered job names.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.Name)
	}
	return names
}

// Run blocks, executing every job on its interval until ctx is cancelled.
// Tick errors are logged and never stop a job.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	jobs := append([]Job(nil), s.jobs...)
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, job := range jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			s.runJob(ctx, job)
		}(job)
	}
	wg.Wait()
	return ctx.Err()
}

func (s *Scheduler) runJob(ctx context.Context, job Job) {
	logger := s.logger.With().Str("job", job.Name).Logger()

	if job.Immediate {
		s.execute(ctx, logger, job, time.Now().UTC())
	}

	next := nextTick(time.Now().UTC(), job.Interval, job.Align)
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = nextTick(time.Now().UTC(), job.Interval, job.Align)
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		logger.Debug().Time("next_tick", next).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.execute(ctx, logger, job, next)
		next = next.Add(job.Interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, logger zerolog.Logger, job Job, at time.Time) {
	started := time.Now()
	if err := job.Tick(ctx, at); err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error().Err(err).Time("tick", at).Msg("job execution failed")
		return
	}
	logger.Debug().Time("tick", at).Dur("took", time.Since(started)).Msg("job executed")
}

func nextTick(now time.Time, interval time.Duration, align bool) time.Time {
	if !align {
		return now.Add(interval)
	}
	tick := now.Truncate(interval)
	if !tick.After(now) {
		tick = tick.Add(interval)
	}
	return tick
}
