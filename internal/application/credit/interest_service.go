package credit

import (
	"context"
	"errors"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InterestService drives the interest accrual engine: daily accruals, cycle
// postings and backdated reversals
type InterestService struct {
	facilityRepo   credit.CreditFacilityRepository
	cycleRepo      credit.InterestAccrualCycleRepository
	obligationRepo credit.ObligationRepository
	ledger         credit.Ledger
	logger         *zap.Logger
}

// NewInterestService creates a new InterestService
func NewInterestService(
	facilityRepo credit.CreditFacilityRepository,
	cycleRepo credit.InterestAccrualCycleRepository,
	obligationRepo credit.ObligationRepository,
	ledger credit.Ledger,
	logger *zap.Logger,
) *InterestService {
	return &InterestService{
		facilityRepo:   facilityRepo,
		cycleRepo:      cycleRepo,
		obligationRepo: obligationRepo,
		ledger:         ledger,
		logger:         logger,
	}
}

// AccrueInterest records every accrual sub-period ending on or before asOf,
// computed from the facility's current disbursed outstanding balance, so a
// cycle that fell behind catches up in one sweep. When the accruals exhaust
// the cycle it also posts the cycle and rolls the facility over to the next
// one.
func (s *InterestService) AccrueInterest(ctx context.Context, cycleID uuid.UUID, asOf time.Time) error {
	cycle, err := s.cycleRepo.FindByID(ctx, cycleID)
	if err != nil {
		return err
	}

	outstanding, err := s.disbursedOutstanding(ctx, cycle.FacilityID)
	if err != nil {
		return err
	}

	accrued := 0
	for {
		period := cycle.NextAccrualPeriod()
		if period == nil || credit.DateOf(period.End).After(credit.DateOf(asOf)) {
			break
		}
		res := cycle.RecordAccrual(outstanding)
		if !res.WasExecuted() {
			break
		}
		accrued++

		s.logger.Debug("Interest accrued",
			zap.String("cycle_id", cycleID.String()),
			zap.String("amount", res.Value.Amount.String()),
			zap.Time("effective_date", res.Value.EffectiveDate),
		)
	}
	if accrued == 0 {
		return nil
	}
	if err := s.cycleRepo.Save(ctx, cycle); err != nil {
		return err
	}

	if cycle.AccrualCycleData() != nil {
		return s.ConcludeCycle(ctx, cycle.FacilityID, asOf)
	}
	return nil
}

// ProcessAccruals sweeps every cycle with an accrual period ending on or
// before the given day, then starts the next cycle on facilities whose last
// cycle concluded without a successor
func (s *InterestService) ProcessAccruals(ctx context.Context, now time.Time) error {
	ids, err := s.cycleRepo.FindDueForAccrual(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.AccrueInterest(ctx, id, now); err != nil {
			s.logger.Error("Interest accrual failed",
				zap.String("cycle_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return s.startPendingCycles(ctx, now)
}

// startPendingCycles opens the next accrual cycle on active facilities that
// have none in progress. The rollover inside ConcludeCycle rejects a period
// starting after its sweep day, so the start lands here on a later sweep.
func (s *InterestService) startPendingCycles(ctx context.Context, now time.Time) error {
	facilityIDs, err := s.facilityRepo.FindActiveIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range facilityIDs {
		if err := s.startNextCycle(ctx, id, now); err != nil {
			s.logger.Error("Interest accrual cycle start failed",
				zap.String("facility_id", id.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (s *InterestService) startNextCycle(ctx context.Context, facilityID uuid.UUID, now time.Time) error {
	facility, err := s.loadFacilityWithCycles(ctx, facilityID)
	if err != nil {
		return err
	}

	started, err := facility.StartInterestAccrualCycle(now)
	if err != nil {
		if errors.Is(err, credit.ErrCycleInProgress) || errors.Is(err, credit.ErrCycleFutureStartDate) {
			return nil
		}
		return err
	}
	if !started.WasExecuted() {
		return nil
	}

	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return err
	}
	for _, staged := range facility.StagedCycles() {
		if err := s.cycleRepo.Save(ctx, staged); err != nil {
			return err
		}
	}
	facility.ClearStagedCycles()

	s.logger.Info("Interest accrual cycle started",
		zap.String("facility_id", facilityID.String()),
		zap.Int("cycle_idx", started.Value.Cycle.CycleIdx),
	)
	return nil
}

// ConcludeCycle posts the facility's fully accrued in-progress cycle to the
// ledger, creates the interest obligation it references and starts the next
// cycle. A facility past its final cycle starts nothing further.
func (s *InterestService) ConcludeCycle(ctx context.Context, facilityID uuid.UUID, now time.Time) error {
	facility, err := s.loadFacilityWithCycles(ctx, facilityID)
	if err != nil {
		return err
	}
	inProgress, err := facility.InProgressCycle()
	if err != nil {
		return err
	}

	posted, err := facility.RecordInterestAccrualCycle()
	if err != nil {
		return err
	}
	if posted.WasExecuted() {
		if err := s.ledger.PostInterest(ctx, posted.Value.Posting); err != nil {
			return err
		}
		if posted.Value.NewObligation != nil {
			obligation, err := credit.NewObligation(*posted.Value.NewObligation)
			if err != nil {
				return err
			}
			if err := s.obligationRepo.Save(ctx, obligation); err != nil {
				return err
			}
		}
		if err := s.cycleRepo.Save(ctx, inProgress); err != nil {
			return err
		}

		s.logger.Info("Interest accrual cycle posted",
			zap.String("facility_id", facilityID.String()),
			zap.String("total", posted.Value.Posting.Total.String()),
		)
	}

	started, err := facility.StartInterestAccrualCycle(now)
	if err != nil && !errors.Is(err, credit.ErrCycleFutureStartDate) {
		return err
	}
	if started.WasExecuted() {
		s.logger.Info("Interest accrual cycle started",
			zap.String("facility_id", facilityID.String()),
			zap.Int("cycle_idx", started.Value.Cycle.CycleIdx),
		)
	}

	if err := s.facilityRepo.Save(ctx, facility); err != nil {
		return err
	}
	for _, staged := range facility.StagedCycles() {
		if err := s.cycleRepo.Save(ctx, staged); err != nil {
			return err
		}
	}
	facility.ClearStagedCycles()
	return nil
}

// RevertInterestFrom reverses, newest first, every accrual and cycle posting
// with an effective date on or after the given date, across all of the
// facility's cycles. Used when a backdated payment or disbursal invalidates
// already-booked interest.
func (s *InterestService) RevertInterestFrom(ctx context.Context, facilityID uuid.UUID, effectiveDate time.Time) (int, error) {
	cycles, err := s.cycleRepo.FindByFacility(ctx, facilityID)
	if err != nil {
		return 0, err
	}

	reverted := 0
	for i := len(cycles) - 1; i >= 0; i-- {
		cycle := cycles[i]
		res := cycle.RevertOnOrAfter(effectiveDate)
		if !res.WasExecuted() {
			continue
		}
		for _, record := range res.Value {
			if err := s.ledger.RevertInterest(ctx, record.Reversal); err != nil {
				return reverted, err
			}
			reverted++
		}
		if err := s.cycleRepo.Save(ctx, cycle); err != nil {
			return reverted, err
		}
	}

	if reverted > 0 {
		s.logger.Info("Interest reverted",
			zap.String("facility_id", facilityID.String()),
			zap.Time("effective_date", effectiveDate),
			zap.Int("reverted_entries", reverted),
		)
	}
	return reverted, nil
}

// disbursedOutstanding sums the outstanding balance of the facility's
// disbursal obligations, the base interest accrues on
func (s *InterestService) disbursedOutstanding(ctx context.Context, facilityID uuid.UUID) (decimal.Decimal, error) {
	obligations, err := s.obligationRepo.FindByFacility(ctx, facilityID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, o := range obligations {
		if o.ObligationType == credit.ObligationTypeDisbursal {
			total = total.Add(o.Outstanding())
		}
	}
	return total, nil
}

func (s *InterestService) loadFacilityWithCycles(ctx context.Context, facilityID uuid.UUID) (*credit.CreditFacility, error) {
	facility, err := s.facilityRepo.FindByID(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	cycles, err := s.cycleRepo.FindByFacility(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	for _, cycle := range cycles {
		facility.AttachCycle(cycle)
	}
	return facility, nil
}
