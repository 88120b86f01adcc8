package credit

import (
	"context"
	"testing"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newInterestServiceFixture() (*InterestService, *MockCreditFacilityRepository, *MockInterestAccrualCycleRepository, *MockObligationRepository, *MockLedger) {
	facilityRepo := new(MockCreditFacilityRepository)
	cycleRepo := new(MockInterestAccrualCycleRepository)
	obligationRepo := new(MockObligationRepository)
	ledger := new(MockLedger)
	service := NewInterestService(facilityRepo, cycleRepo, obligationRepo, ledger, testLogger())
	return service, facilityRepo, cycleRepo, obligationRepo, ledger
}

// firstCycle returns the cycle staged by activating the fixture facility
func firstCycle(t *testing.T, facility *credit.CreditFacility) *credit.InterestAccrualCycle {
	t.Helper()
	staged := facility.StagedCycles()
	require.Len(t, staged, 1)
	facility.ClearStagedCycles()
	return staged[0]
}

// accrueCycleFully walks the cycle's daily accruals to exhaustion
func accrueCycleFully(t *testing.T, cycle *credit.InterestAccrualCycle, outstanding decimal.Decimal) {
	t.Helper()
	for cycle.RecordAccrual(outstanding).WasExecuted() {
	}
}

func TestInterestService_AccrueInterest(t *testing.T) {
	t.Run("accrues on the disbursed outstanding balance", func(t *testing.T) {
		service, _, cycleRepo, obligationRepo, _ := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		principal := fixtureObligation(t, facility.ID)

		cycleRepo.On("FindByID", mock.Anything, cycle.ID).Return(cycle, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{principal}, nil)
		cycleRepo.On("Save", mock.Anything, cycle).Return(nil)

		err := service.AccrueInterest(context.Background(), cycle.ID, day(2024, time.January, 1))

		require.NoError(t, err)
		events := cycle.Events()
		last, ok := events[len(events)-1].(*credit.InterestAccruedEvent)
		require.True(t, ok)
		// 10000 at 12% for one day on a 365 basis
		assert.True(t, last.Amount.Equal(decimal.RequireFromString("3.29")))
		cycleRepo.AssertExpectations(t)
	})

	t.Run("catches up every sub-period behind the sweep day", func(t *testing.T) {
		service, _, cycleRepo, obligationRepo, _ := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		principal := fixtureObligation(t, facility.ID)

		cycleRepo.On("FindByID", mock.Anything, cycle.ID).Return(cycle, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{principal}, nil)
		cycleRepo.On("Save", mock.Anything, cycle).Return(nil)

		err := service.AccrueInterest(context.Background(), cycle.ID, day(2024, time.January, 3))

		require.NoError(t, err)
		accrued := 0
		for _, event := range cycle.Events() {
			if _, ok := event.(*credit.InterestAccruedEvent); ok {
				accrued++
			}
		}
		assert.Equal(t, 3, accrued)
		cycleRepo.AssertNumberOfCalls(t, "Save", 1)
	})

	t.Run("does nothing once the cycle is exhausted and posted", func(t *testing.T) {
		service, _, cycleRepo, obligationRepo, _ := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		accrueCycleFully(t, cycle, decimal.NewFromInt(10000))
		cycle.RecordAccrualCycle(facility.CustomerID, *cycle.AccrualCycleData())

		cycleRepo.On("FindByID", mock.Anything, cycle.ID).Return(cycle, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{}, nil)

		err := service.AccrueInterest(context.Background(), cycle.ID, day(2024, time.February, 1))

		require.NoError(t, err)
		cycleRepo.AssertNotCalled(t, "Save")
	})

	t.Run("the final accrual rolls the facility into the next cycle", func(t *testing.T) {
		service, facilityRepo, cycleRepo, obligationRepo, ledger := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		principal := fixtureObligation(t, facility.ID)

		cycleRepo.On("FindByID", mock.Anything, cycle.ID).Return(cycle, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{principal}, nil)
		cycleRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.InterestAccrualCycle")).Return(nil)
		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		cycleRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.InterestAccrualCycle{cycle}, nil)
		ledger.On("PostInterest", mock.Anything, mock.AnythingOfType("credit.InterestPosting")).Return(nil)
		obligationRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.Obligation")).Return(nil)
		facilityRepo.On("Save", mock.Anything, facility).Return(nil)

		// the daily sweep the morning after the January cycle ends
		err := service.AccrueInterest(context.Background(), cycle.ID, day(2024, time.February, 1))

		require.NoError(t, err)
		ledger.AssertNumberOfCalls(t, "PostInterest", 1)

		inProgress, err := facility.InProgressCycle()
		require.NoError(t, err)
		require.NotNil(t, inProgress)
		assert.Equal(t, 2, inProgress.CycleIdx)
	})
}

func TestInterestService_ConcludeCycle(t *testing.T) {
	t.Run("posts the cycle, creates the interest obligation and starts the next cycle", func(t *testing.T) {
		service, facilityRepo, cycleRepo, obligationRepo, ledger := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		accrueCycleFully(t, cycle, decimal.NewFromInt(10000))

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		cycleRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.InterestAccrualCycle{cycle}, nil)
		ledger.On("PostInterest", mock.Anything, mock.AnythingOfType("credit.InterestPosting")).Return(nil)
		obligationRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.Obligation")).Return(nil)
		cycleRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.InterestAccrualCycle")).Return(nil)
		facilityRepo.On("Save", mock.Anything, facility).Return(nil)

		err := service.ConcludeCycle(context.Background(), facility.ID, day(2024, time.February, 1))

		require.NoError(t, err)
		// the posted January cycle plus the newly started February cycle
		cycleRepo.AssertNumberOfCalls(t, "Save", 2)
		obligationRepo.AssertNumberOfCalls(t, "Save", 1)
		assert.Empty(t, facility.StagedCycles())

		inProgress, err := facility.InProgressCycle()
		require.NoError(t, err)
		require.NotNil(t, inProgress)
		assert.Equal(t, 2, inProgress.CycleIdx)
	})

	t.Run("fails while the cycle still has accruals left", func(t *testing.T) {
		service, facilityRepo, cycleRepo, _, ledger := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		cycleRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.InterestAccrualCycle{cycle}, nil)

		err := service.ConcludeCycle(context.Background(), facility.ID, day(2024, time.January, 15))

		require.ErrorIs(t, err, credit.ErrAccrualNotCompletedYet)
		ledger.AssertNotCalled(t, "PostInterest")
	})
}

func TestInterestService_ProcessAccruals(t *testing.T) {
	t.Run("accrues every due cycle", func(t *testing.T) {
		service, facilityRepo, cycleRepo, obligationRepo, _ := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		principal := fixtureObligation(t, facility.ID)

		asOf := day(2024, time.January, 2)
		cycleRepo.On("FindDueForAccrual", mock.Anything, asOf).Return([]uuid.UUID{cycle.ID}, nil)
		cycleRepo.On("FindByID", mock.Anything, cycle.ID).Return(cycle, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{principal}, nil)
		cycleRepo.On("Save", mock.Anything, cycle).Return(nil)
		facilityRepo.On("FindActiveIDs", mock.Anything).Return([]uuid.UUID{}, nil)

		err := service.ProcessAccruals(context.Background(), asOf)

		require.NoError(t, err)
		cycleRepo.AssertExpectations(t)
	})

	t.Run("starts the cycle a same-day conclusion left pending", func(t *testing.T) {
		service, facilityRepo, cycleRepo, _, _ := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		accrueCycleFully(t, cycle, decimal.NewFromInt(10000))
		facility.AttachCycle(cycle)
		posted, err := facility.RecordInterestAccrualCycle()
		require.NoError(t, err)
		require.True(t, posted.WasExecuted())

		asOf := day(2024, time.February, 1)
		cycleRepo.On("FindDueForAccrual", mock.Anything, asOf).Return([]uuid.UUID{}, nil)
		facilityRepo.On("FindActiveIDs", mock.Anything).Return([]uuid.UUID{facility.ID}, nil)
		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		cycleRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.InterestAccrualCycle{cycle}, nil)
		facilityRepo.On("Save", mock.Anything, facility).Return(nil)
		cycleRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.InterestAccrualCycle")).Return(nil)

		err = service.ProcessAccruals(context.Background(), asOf)

		require.NoError(t, err)
		facilityRepo.AssertExpectations(t)

		inProgress, err := facility.InProgressCycle()
		require.NoError(t, err)
		require.NotNil(t, inProgress)
		assert.Equal(t, 2, inProgress.CycleIdx)
	})
}

func TestInterestService_RevertInterestFrom(t *testing.T) {
	t.Run("reverses accruals and postings from the cutoff, newest first", func(t *testing.T) {
		service, _, cycleRepo, _, ledger := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		accrueCycleFully(t, cycle, decimal.NewFromInt(10000))
		cycle.RecordAccrualCycle(facility.CustomerID, *cycle.AccrualCycleData())

		cycleRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.InterestAccrualCycle{cycle}, nil)
		ledger.On("RevertInterest", mock.Anything, mock.AnythingOfType("credit.InterestReversal")).Return(nil)
		cycleRepo.On("Save", mock.Anything, cycle).Return(nil)

		reverted, err := service.RevertInterestFrom(context.Background(), facility.ID, day(2024, time.January, 30))

		require.NoError(t, err)
		// the cycle posting plus the Jan 31 and Jan 30 accruals
		assert.Equal(t, 3, reverted)
		ledger.AssertNumberOfCalls(t, "RevertInterest", 3)
	})

	t.Run("reports zero when nothing falls on or after the cutoff", func(t *testing.T) {
		service, _, cycleRepo, _, ledger := newInterestServiceFixture()
		facility := fixtureActiveFacility(t)
		cycle := firstCycle(t, facility)
		accrueCycleFully(t, cycle, decimal.NewFromInt(10000))
		cycle.RecordAccrualCycle(facility.CustomerID, *cycle.AccrualCycleData())

		cycleRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.InterestAccrualCycle{cycle}, nil)

		reverted, err := service.RevertInterestFrom(context.Background(), facility.ID, day(2024, time.February, 10))

		require.NoError(t, err)
		assert.Equal(t, 0, reverted)
		ledger.AssertNotCalled(t, "RevertInterest")
		cycleRepo.AssertNotCalled(t, "Save")
	})
}
