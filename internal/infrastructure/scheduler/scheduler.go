package scheduler

import (
	"context"
	"sync"
	"time"

	applogger "github.com/lendcore/backend/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobStatus represents the status of a scheduled job
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusRunning JobStatus = "RUNNING"
	JobStatusSuccess JobStatus = "SUCCESS"
	JobStatusFailed  JobStatus = "FAILED"
)

// SweepType represents one kind of daily portfolio sweep
type SweepType string

const (
	SweepTypeObligationTransitions SweepType = "OBLIGATION_TRANSITIONS"
	SweepTypeInterestAccruals      SweepType = "INTEREST_ACCRUALS"
	SweepTypeFacilityMaturities    SweepType = "FACILITY_MATURITIES"
	SweepTypeCollateralRefresh     SweepType = "COLLATERAL_REFRESH"
)

// AllSweepTypes returns all sweep types in their daily execution order.
// ScheduleDailySweeps chains the day's jobs in this order, so obligation
// transitions land before interest is accrued on the moved balances.
func AllSweepTypes() []SweepType {
	return []SweepType{
		SweepTypeObligationTransitions,
		SweepTypeInterestAccruals,
		SweepTypeFacilityMaturities,
		SweepTypeCollateralRefresh,
	}
}

// Job represents a scheduled sweep job
type Job struct {
	ID          uuid.UUID
	SweepType   SweepType
	AsOf        time.Time
	Status      JobStatus
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	RetryCount  int
	MaxRetries  int
	NextRetryAt *time.Time

	// next is submitted once this job completes, chaining the daily sweeps
	next *Job
}

// NewJob creates a new job instance
func NewJob(sweepType SweepType, asOf time.Time, maxRetries int) *Job {
	return &Job{
		ID:         uuid.New(),
		SweepType:  sweepType,
		AsOf:       asOf,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
	}
}

// Start marks the job as running
func (j *Job) Start() {
	now := time.Now()
	j.Status = JobStatusRunning
	j.StartedAt = &now
	j.Error = ""
}

// Complete marks the job as successful
func (j *Job) Complete() {
	now := time.Now()
	j.Status = JobStatusSuccess
	j.CompletedAt = &now
}

// Fail marks the job as failed
func (j *Job) Fail(err string) {
	now := time.Now()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.Error = err
}

// ShouldRetry returns true if the job should be retried
func (j *Job) ShouldRetry() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// ScheduleRetry schedules the job for retry
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	j.Status = JobStatusPending
	nextRetry := time.Now().Add(delay)
	j.NextRetryAt = &nextRetry
	j.Error = ""
}

// JobExecutor is the interface for executing sweep jobs
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) error
}

// SchedulerConfig holds scheduler configuration
type SchedulerConfig struct {
	Enabled           bool
	MaxConcurrentJobs int
	JobTimeout        time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
}

// DefaultSchedulerConfig returns default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Enabled:           true,
		MaxConcurrentJobs: 3,
		JobTimeout:        30 * time.Minute,
		RetryAttempts:     3,
		RetryDelay:        5 * time.Minute,
	}
}

// Scheduler manages scheduled sweep jobs over a worker pool
type Scheduler struct {
	config   SchedulerConfig
	executor JobExecutor
	logger   *zap.Logger

	jobs      chan *Job
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewScheduler creates a new scheduler instance
func NewScheduler(config SchedulerConfig, executor JobExecutor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		config:   config,
		executor: executor,
		logger:   logger,
		jobs:     make(chan *Job, 100),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	// Start worker pool
	for i := 0; i < s.config.MaxConcurrentJobs; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i)
	}

	s.logger.Info("Sweep scheduler started",
		zap.Int("workers", s.config.MaxConcurrentJobs),
		zap.Duration("job_timeout", s.config.JobTimeout),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	// Closing under the same lock SubmitJob sends under, so a late retry
	// re-submission can never hit a closed channel
	close(s.jobs)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Sweep scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Sweep scheduler stop timed out")
		return ctx.Err()
	}
}

// SubmitJob submits a job for execution
func (s *Scheduler) SubmitJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return ErrSchedulerNotRunning
	}

	select {
	case s.jobs <- job:
		s.logger.Debug("Job submitted",
			zap.String("job_id", job.ID.String()),
			zap.String("sweep_type", string(job.SweepType)),
		)
		return nil
	default:
		return ErrJobQueueFull
	}
}

// worker processes jobs from the queue
func (s *Scheduler) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()

	s.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
			return
		case job, ok := <-s.jobs:
			if !ok {
				s.logger.Debug("Job channel closed", zap.Int("worker_id", workerID))
				return
			}
			s.processJob(ctx, job, workerID)
		}
	}
}

// processJob executes a single job
func (s *Scheduler) processJob(ctx context.Context, job *Job, workerID int) {
	ctx, log := applogger.WithJobID(ctx, s.logger, job.ID.String())

	job.Start()
	log.Info("Processing sweep job",
		zap.Int("worker_id", workerID),
		zap.String("sweep_type", string(job.SweepType)),
		zap.Time("as_of", job.AsOf),
	)

	// Create context with timeout
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	// Execute the job
	err := s.executor.Execute(jobCtx, job)
	if err != nil {
		job.Fail(err.Error())
		log.Error("Sweep job failed",
			zap.Int("worker_id", workerID),
			zap.String("sweep_type", string(job.SweepType)),
			zap.Error(err),
		)

		// Check if should retry
		if job.ShouldRetry() {
			job.ScheduleRetry(s.config.RetryDelay)
			log.Info("Sweep job scheduled for retry",
				zap.Int("retry_count", job.RetryCount),
				zap.Int("max_retries", job.MaxRetries),
			)
			s.requeueWhenDue(ctx, job)
			return
		}
		if job.next != nil {
			log.Warn("Dropping follow-up sweeps after permanent failure",
				zap.String("next_sweep_type", string(job.next.SweepType)),
			)
		}
		return
	}

	job.Complete()
	log.Info("Sweep job completed successfully",
		zap.Int("worker_id", workerID),
		zap.String("sweep_type", string(job.SweepType)),
	)

	if job.next != nil {
		if err := s.SubmitJob(job.next); err != nil {
			log.Error("Failed to submit follow-up sweep",
				zap.String("sweep_type", string(job.next.SweepType)),
				zap.Error(err),
			)
		}
	}
}

// requeueWhenDue puts a retrying job back on the queue once NextRetryAt has
// elapsed, instead of spinning it through the workers before it is due.
func (s *Scheduler) requeueWhenDue(ctx context.Context, job *Job) {
	var wait time.Duration
	if job.NextRetryAt != nil {
		wait = time.Until(*job.NextRetryAt)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
		}
		if err := s.SubmitJob(job); err != nil {
			s.logger.Warn("Failed to re-queue job for retry",
				zap.String("job_id", job.ID.String()),
				zap.Error(err),
			)
		}
	}()
}

// ScheduleDailySweeps submits the day's sweeps as a single chain: each sweep
// is queued only after the previous one completes, preserving the order of
// AllSweepTypes even with multiple workers.
func (s *Scheduler) ScheduleDailySweeps(asOf time.Time) error {
	var head, tail *Job
	for _, sweepType := range AllSweepTypes() {
		job := NewJob(sweepType, asOf, s.config.RetryAttempts)
		if head == nil {
			head = job
		} else {
			tail.next = job
		}
		tail = job
	}
	return s.SubmitJob(head)
}

// ScheduleSweep submits a single sweep type for the given business day
func (s *Scheduler) ScheduleSweep(sweepType SweepType, asOf time.Time) error {
	job := NewJob(sweepType, asOf, s.config.RetryAttempts)
	return s.SubmitJob(job)
}
