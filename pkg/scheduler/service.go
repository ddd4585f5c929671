// Package scheduler re-indexes schematic records on a cron schedule and
// sweeps expired working memory between runs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/sipeed/hybridmem/pkg/logger"
)

// Job is the scheduled work, typically a records re-index.
type Job func(ctx context.Context) error

// Sweeper drops expired entries and reports how many went.
type Sweeper interface {
	Sweep() int
}

type Service struct {
	schedule string
	tick     time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	job      Job
	sweeper  Sweeper
	lastRun  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	runCount int
}

type Option func(*Service)

// WithTick sets how often the schedule is checked. Defaults to a minute,
// the resolution of cron expressions.
func WithTick(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.tick = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService validates schedule. An empty schedule disables the job but
// still sweeps on every tick.
func NewService(schedule string, opts ...Option) (*Service, error) {
	cron := gronx.New()
	if schedule != "" && !cron.IsValid(schedule) {
		return nil, fmt.Errorf("invalid cron expression %q", schedule)
	}
	s := &Service{
		schedule: schedule,
		tick:     time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) SetJob(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.job = job
}

func (s *Service) SetSweeper(sw Sweeper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeper = sw
}

// NextRun returns when the job is next due after now.
func (s *Service) NextRun() (time.Time, error) {
	if s.schedule == "" {
		return time.Time{}, fmt.Errorf("no schedule configured")
	}
	return gronx.NextTickAfter(s.schedule, s.now(), false)
}

// Start launches the loop. It is a no-op when already running.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.runLoop(ctx, s.done)

	logger.InfoCF("scheduler", "Scheduler started", map[string]interface{}{
		"schedule": s.schedule,
		"tick":     s.tick.String(),
	})
	return nil
}

// Stop halts the loop and waits for an in-flight run to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	logger.InfoC("scheduler", "Scheduler stopped")
}

// Wait blocks until the loop exits, for callers that cancel through ctx.
func (s *Service) Wait() {
	s.mu.RLock()
	done := s.done
	s.mu.RUnlock()
	if done != nil {
		<-done
	}
}

func (s *Service) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.check(ctx)
		}
	}
}

func (s *Service) check(ctx context.Context) {
	s.mu.RLock()
	sweeper := s.sweeper
	s.mu.RUnlock()

	if sweeper != nil {
		if n := sweeper.Sweep(); n > 0 {
			logger.DebugCF("scheduler", "Swept expired entries", map[string]interface{}{
				"removed": n,
			})
		}
	}

	if s.schedule == "" {
		return
	}
	now := s.now()
	cron := gronx.New()
	due, err := cron.IsDue(s.schedule, now)
	if err != nil {
		logger.ErrorCF("scheduler", "Schedule check failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	minute := now.Truncate(time.Minute)
	s.mu.RLock()
	ranThisMinute := s.lastRun.Equal(minute)
	s.mu.RUnlock()
	if !due || ranThisMinute {
		return
	}

	s.mu.Lock()
	s.lastRun = minute
	s.mu.Unlock()
	s.RunOnce(ctx)
}

// RunOnce runs the job immediately and logs the outcome.
func (s *Service) RunOnce(ctx context.Context) error {
	s.mu.Lock()
	job := s.job
	s.runCount++
	s.mu.Unlock()

	if job == nil {
		return nil
	}

	start := time.Now()
	if err := job(ctx); err != nil {
		logger.ErrorCF("scheduler", "Scheduled job failed", map[string]interface{}{
			"error": err.Error(),
		})
		return err
	}
	logger.InfoCF("scheduler", "Scheduled job completed", map[string]interface{}{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}

// Runs reports how many times the job has been started.
func (s *Service) Runs() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runCount
}
