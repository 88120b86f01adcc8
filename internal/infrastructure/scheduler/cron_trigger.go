package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronTrigger fires the daily portfolio sweeps on a cron schedule
type CronTrigger struct {
	schedule  cron.Schedule
	scheduler *Scheduler
	logger    *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewCronTrigger creates a cron trigger from a standard 5-field cron
// expression
func NewCronTrigger(spec string, scheduler *Scheduler, logger *zap.Logger) (*CronTrigger, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: bad cron expression %q: %v", ErrInvalidConfig, spec, err)
	}
	return &CronTrigger{
		schedule:  schedule,
		scheduler: scheduler,
		logger:    logger,
	}, nil
}

// Start starts the cron trigger
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Sweep cron trigger started",
		zap.Time("next_run", c.schedule.Next(time.Now())),
	)

	return nil
}

// Stop stops the cron trigger
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Sweep cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runLoop sleeps until each scheduled activation and triggers the sweeps
func (c *CronTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		next := c.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			c.trigger(next)
		}
	}
}

// trigger submits all daily sweeps for the activation's business day
func (c *CronTrigger) trigger(firedAt time.Time) {
	asOf := time.Date(firedAt.Year(), firedAt.Month(), firedAt.Day(), 0, 0, 0, 0, time.UTC)

	c.logger.Info("Triggering daily sweeps", zap.Time("as_of", asOf))
	if err := c.scheduler.ScheduleDailySweeps(asOf); err != nil {
		c.logger.Error("Failed to schedule daily sweeps", zap.Error(err))
	}
}

// TriggerManualSweep allows operational tooling to run a single sweep
// immediately
func (c *CronTrigger) TriggerManualSweep(sweepType SweepType, asOf time.Time) error {
	return c.scheduler.ScheduleSweep(sweepType, asOf)
}
