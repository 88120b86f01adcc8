package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FacilitySweeps is the facility-level sweep surface of the application layer
type FacilitySweeps interface {
	ProcessMaturities(ctx context.Context, now time.Time) error
	RefreshCollateralizations(ctx context.Context) error
}

// InterestSweeps is the accrual sweep surface of the application layer
type InterestSweeps interface {
	ProcessAccruals(ctx context.Context, now time.Time) error
}

// ObligationSweeps is the obligation sweep surface of the application layer
type ObligationSweeps interface {
	ProcessTransitions(ctx context.Context, now time.Time) error
}

// CreditSweepExecutor dispatches sweep jobs to the credit application
// services
type CreditSweepExecutor struct {
	facilities  FacilitySweeps
	interest    InterestSweeps
	obligations ObligationSweeps
	logger      *zap.Logger
}

// NewCreditSweepExecutor creates a new CreditSweepExecutor
func NewCreditSweepExecutor(
	facilities FacilitySweeps,
	interest InterestSweeps,
	obligations ObligationSweeps,
	logger *zap.Logger,
) *CreditSweepExecutor {
	return &CreditSweepExecutor{
		facilities:  facilities,
		interest:    interest,
		obligations: obligations,
		logger:      logger,
	}
}

// Execute runs one sweep job against the matching application service
func (e *CreditSweepExecutor) Execute(ctx context.Context, job *Job) error {
	e.logger.Debug("Executing sweep",
		zap.String("sweep_type", string(job.SweepType)),
		zap.Time("as_of", job.AsOf),
	)

	switch job.SweepType {
	case SweepTypeObligationTransitions:
		return e.obligations.ProcessTransitions(ctx, job.AsOf)
	case SweepTypeInterestAccruals:
		return e.interest.ProcessAccruals(ctx, job.AsOf)
	case SweepTypeFacilityMaturities:
		return e.facilities.ProcessMaturities(ctx, job.AsOf)
	case SweepTypeCollateralRefresh:
		return e.facilities.RefreshCollateralizations(ctx)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidSweepType, job.SweepType)
	}
}
