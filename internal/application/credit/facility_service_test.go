package credit

import (
	"context"
	"testing"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newFacilityServiceFixture() (*FacilityService, *MockCreditFacilityRepository, *MockInterestAccrualCycleRepository, *MockObligationRepository, *MockLedger, *MockPriceOracle, *MockCollateralBalances) {
	facilityRepo := new(MockCreditFacilityRepository)
	cycleRepo := new(MockInterestAccrualCycleRepository)
	obligationRepo := new(MockObligationRepository)
	ledger := new(MockLedger)
	prices := new(MockPriceOracle)
	collateral := new(MockCollateralBalances)
	service := NewFacilityService(facilityRepo, cycleRepo, obligationRepo, ledger, prices, collateral, testLogger())
	return service, facilityRepo, cycleRepo, obligationRepo, ledger, prices, collateral
}

// ============================================
// CreateFacility Tests
// ============================================

func TestFacilityService_CreateFacility(t *testing.T) {
	t.Run("creates a pending facility", func(t *testing.T) {
		service, facilityRepo, _, _, _, _, _ := newFacilityServiceFixture()
		facilityRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.CreditFacility")).Return(nil)

		resp, err := service.CreateFacility(context.Background(), CreateFacilityRequest{
			CustomerID:        uuid.New(),
			CollateralID:      uuid.New(),
			ApprovalProcessID: uuid.New(),
			Amount:            decimal.NewFromInt(100000),
			Terms:             fixtureTerms(),
			AccountIDs:        fixtureAccountIDs(),
		})

		require.NoError(t, err)
		assert.Equal(t, "PENDING_COLLATERALIZATION", resp.Status)
		assert.Equal(t, 0, resp.Version)
		facilityRepo.AssertExpectations(t)
	})

	t.Run("rejects invalid terms without touching the repository", func(t *testing.T) {
		service, facilityRepo, _, _, _, _, _ := newFacilityServiceFixture()

		terms := fixtureTerms()
		terms.Duration.Months = 0
		_, err := service.CreateFacility(context.Background(), CreateFacilityRequest{
			CustomerID:        uuid.New(),
			CollateralID:      uuid.New(),
			ApprovalProcessID: uuid.New(),
			Amount:            decimal.NewFromInt(100000),
			Terms:             terms,
			AccountIDs:        fixtureAccountIDs(),
		})

		require.Error(t, err)
		facilityRepo.AssertNotCalled(t, "Save")
	})
}

func TestFacilityService_ListFacilities(t *testing.T) {
	service, facilityRepo, _, _, _, _, _ := newFacilityServiceFixture()
	facility := fixtureFacility(t)
	filter := credit.CreditFacilityFilter{Filter: shared.Filter{Page: 1, PageSize: 10}}

	repoPage := shared.NewPaginated([]*credit.CreditFacility{facility}, 11, 1, 10)
	facilityRepo.On("FindAll", mock.Anything, filter).Return(&repoPage, nil)

	page, err := service.ListFacilities(context.Background(), filter)

	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, facility.ID, page.Items[0].ID)
	assert.Equal(t, int64(11), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	facilityRepo.AssertExpectations(t)
}

// ============================================
// Activation Tests
// ============================================

func TestFacilityService_ActivateFacility(t *testing.T) {
	t.Run("books the activation and persists the first cycle", func(t *testing.T) {
		service, facilityRepo, cycleRepo, _, ledger, prices, collateral := newFacilityServiceFixture()
		facility := fixtureFacility(t)
		require.True(t, facility.ConcludeApprovalProcess(true).WasExecuted())

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		prices.On("CollateralPrice", mock.Anything).Return(priceUSD(50000), nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)
		ledger.On("ExecuteActivation", mock.Anything, mock.AnythingOfType("credit.FacilityActivation")).Return(nil)
		facilityRepo.On("Save", mock.Anything, facility).Return(nil)
		cycleRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.InterestAccrualCycle")).Return(nil)

		resp, err := service.ActivateFacility(context.Background(), facility.ID, day(2024, time.January, 1))

		require.NoError(t, err)
		assert.Equal(t, "ACTIVE", resp.Status)
		require.NotNil(t, resp.MaturesAt)
		assert.Equal(t, day(2024, time.April, 1), *resp.MaturesAt)
		assert.Empty(t, facility.StagedCycles())
		ledger.AssertExpectations(t)
		cycleRepo.AssertNumberOfCalls(t, "Save", 1)
	})

	t.Run("does not touch the ledger when activation is denied", func(t *testing.T) {
		service, facilityRepo, _, _, ledger, prices, collateral := newFacilityServiceFixture()
		facility := fixtureFacility(t)
		require.True(t, facility.ConcludeApprovalProcess(false).WasExecuted())

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		prices.On("CollateralPrice", mock.Anything).Return(priceUSD(50000), nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)

		_, err := service.ActivateFacility(context.Background(), facility.ID, day(2024, time.January, 1))

		require.ErrorIs(t, err, credit.ErrApprovalDenied)
		ledger.AssertNotCalled(t, "ExecuteActivation")
		facilityRepo.AssertNotCalled(t, "Save")
	})

	t.Run("returns the current state without side effects when already active", func(t *testing.T) {
		service, facilityRepo, _, _, ledger, prices, collateral := newFacilityServiceFixture()
		facility := fixtureActiveFacility(t)
		facility.ClearStagedCycles()

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		prices.On("CollateralPrice", mock.Anything).Return(priceUSD(50000), nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)

		resp, err := service.ActivateFacility(context.Background(), facility.ID, day(2024, time.January, 2))

		require.NoError(t, err)
		assert.Equal(t, "ACTIVE", resp.Status)
		ledger.AssertNotCalled(t, "ExecuteActivation")
		facilityRepo.AssertNotCalled(t, "Save")
	})
}

// ============================================
// Disbursal Tests
// ============================================

func TestFacilityService_InitiateDisbursal(t *testing.T) {
	t.Run("creates and saves a disbursal obligation", func(t *testing.T) {
		service, facilityRepo, _, obligationRepo, _, _, _ := newFacilityServiceFixture()
		facility := fixtureActiveFacility(t)

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		obligationRepo.On("Save", mock.Anything, mock.AnythingOfType("*credit.Obligation")).Return(nil)

		id, err := service.InitiateDisbursal(context.Background(), facility.ID, decimal.NewFromInt(25000), day(2024, time.January, 5))

		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)
		obligationRepo.AssertExpectations(t)
	})

	t.Run("rejects disbursals on an inactive facility", func(t *testing.T) {
		service, facilityRepo, _, obligationRepo, _, _, _ := newFacilityServiceFixture()
		facility := fixtureFacility(t)

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)

		_, err := service.InitiateDisbursal(context.Background(), facility.ID, decimal.NewFromInt(25000), day(2024, time.January, 5))

		require.ErrorIs(t, err, credit.ErrNotActivated)
		obligationRepo.AssertNotCalled(t, "Save")
	})
}

// ============================================
// Collateralization Tests
// ============================================

func TestFacilityService_UpdateCollateralization(t *testing.T) {
	t.Run("persists a ratio change", func(t *testing.T) {
		service, facilityRepo, _, _, _, prices, collateral := newFacilityServiceFixture()
		facility := fixtureActiveFacility(t)
		facility.ClearStagedCycles()

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		prices.On("CollateralPrice", mock.Anything).Return(priceUSD(40000), nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)
		facilityRepo.On("Save", mock.Anything, facility).Return(nil)

		changed, err := service.UpdateCollateralization(context.Background(), facility.ID)

		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, credit.CollateralizationUnderMarginCall, facility.CollateralizationState())
		facilityRepo.AssertExpectations(t)
	})

	t.Run("skips the save when nothing changed", func(t *testing.T) {
		service, facilityRepo, _, _, _, prices, collateral := newFacilityServiceFixture()
		facility := fixtureActiveFacility(t)
		facility.ClearStagedCycles()

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		prices.On("CollateralPrice", mock.Anything).Return(priceUSD(50000), nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)

		changed, err := service.UpdateCollateralization(context.Background(), facility.ID)

		require.NoError(t, err)
		assert.False(t, changed)
		facilityRepo.AssertNotCalled(t, "Save")
	})
}

func TestFacilityService_RefreshCollateralizations(t *testing.T) {
	service, facilityRepo, _, _, _, prices, collateral := newFacilityServiceFixture()
	facility := fixtureActiveFacility(t)
	facility.ClearStagedCycles()

	facilityRepo.On("FindActiveIDs", mock.Anything).Return([]uuid.UUID{facility.ID}, nil)
	facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
	prices.On("CollateralPrice", mock.Anything).Return(priceUSD(40000), nil)
	collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)
	facilityRepo.On("Save", mock.Anything, facility).Return(nil)

	err := service.RefreshCollateralizations(context.Background())

	require.NoError(t, err)
	facilityRepo.AssertExpectations(t)
}

// ============================================
// Maturity and Completion Tests
// ============================================

func TestFacilityService_ProcessMaturities(t *testing.T) {
	service, facilityRepo, _, _, _, _, _ := newFacilityServiceFixture()
	facility := fixtureActiveFacility(t)
	facility.ClearStagedCycles()

	asOf := day(2024, time.April, 1)
	facilityRepo.On("FindMaturedCandidateIDs", mock.Anything, asOf).Return([]uuid.UUID{facility.ID}, nil)
	facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
	facilityRepo.On("Save", mock.Anything, facility).Return(nil)

	err := service.ProcessMaturities(context.Background(), asOf)

	require.NoError(t, err)
	assert.Equal(t, credit.FacilityStatusMatured, facility.Status())
	facilityRepo.AssertExpectations(t)
}

func TestFacilityService_CompleteFacility(t *testing.T) {
	t.Run("closes a settled facility and releases collateral", func(t *testing.T) {
		service, facilityRepo, _, obligationRepo, ledger, _, collateral := newFacilityServiceFixture()
		facility := fixtureActiveFacility(t)
		facility.ClearStagedCycles()

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{}, nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)
		ledger.On("ExecuteCompletion", mock.Anything, mock.AnythingOfType("credit.FacilityCompletion")).Return(nil)
		facilityRepo.On("Save", mock.Anything, facility).Return(nil)

		resp, err := service.CompleteFacility(context.Background(), facility.ID, day(2024, time.April, 2))

		require.NoError(t, err)
		assert.Equal(t, "CLOSED", resp.Status)
		ledger.AssertExpectations(t)
	})

	t.Run("refuses completion with outstanding obligations", func(t *testing.T) {
		service, facilityRepo, _, obligationRepo, ledger, _, collateral := newFacilityServiceFixture()
		facility := fixtureActiveFacility(t)
		facility.ClearStagedCycles()
		obligation := fixtureObligation(t, facility.ID)

		facilityRepo.On("FindByID", mock.Anything, facility.ID).Return(facility, nil)
		obligationRepo.On("FindByFacility", mock.Anything, facility.ID).Return([]*credit.Obligation{obligation}, nil)
		collateral.On("CollateralBalance", mock.Anything, facility.CollateralID).Return(btc("3"), nil)

		_, err := service.CompleteFacility(context.Background(), facility.ID, day(2024, time.April, 2))

		require.ErrorIs(t, err, credit.ErrOutstandingAmount)
		ledger.AssertNotCalled(t, "ExecuteCompletion")
	})
}

// ============================================
// Balances Tests
// ============================================

func TestFacilityService_GetFacilityBalances(t *testing.T) {
	service, _, _, obligationRepo, _, _, _ := newFacilityServiceFixture()
	facilityID := uuid.New()
	obligation := fixtureObligation(t, facilityID)
	obligation.Transition(day(2024, time.February, 1))

	obligationRepo.On("FindByFacility", mock.Anything, facilityID).Return([]*credit.Obligation{obligation}, nil)

	balances, err := service.GetFacilityBalances(context.Background(), facilityID)

	require.NoError(t, err)
	assert.True(t, balances.TotalInitialDisbursed.Equal(decimal.NewFromInt(10000)))
	assert.True(t, balances.DisbursedDue.Equal(decimal.NewFromInt(10000)))
	assert.True(t, balances.DisbursedOverdue.IsZero())
	assert.True(t, balances.TotalOutstanding.Equal(decimal.NewFromInt(10000)))
}
