package credit

import (
	"context"
	"testing"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// ============================================
// Mock Repositories and Ports
// ============================================

type MockCreditFacilityRepository struct {
	mock.Mock
}

func (m *MockCreditFacilityRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.CreditFacility, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credit.CreditFacility), args.Error(1)
}

func (m *MockCreditFacilityRepository) FindAll(ctx context.Context, filter credit.CreditFacilityFilter) (*shared.Paginated[*credit.CreditFacility], error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.Paginated[*credit.CreditFacility]), args.Error(1)
}

func (m *MockCreditFacilityRepository) FindActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockCreditFacilityRepository) FindMaturedCandidateIDs(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockCreditFacilityRepository) Save(ctx context.Context, facility *credit.CreditFacility) error {
	args := m.Called(ctx, facility)
	return args.Error(0)
}

type MockInterestAccrualCycleRepository struct {
	mock.Mock
}

func (m *MockInterestAccrualCycleRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.InterestAccrualCycle, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credit.InterestAccrualCycle), args.Error(1)
}

func (m *MockInterestAccrualCycleRepository) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*credit.InterestAccrualCycle, error) {
	args := m.Called(ctx, facilityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credit.InterestAccrualCycle), args.Error(1)
}

func (m *MockInterestAccrualCycleRepository) FindDueForAccrual(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockInterestAccrualCycleRepository) Save(ctx context.Context, cycle *credit.InterestAccrualCycle) error {
	args := m.Called(ctx, cycle)
	return args.Error(0)
}

type MockObligationRepository struct {
	mock.Mock
}

func (m *MockObligationRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.Obligation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credit.Obligation), args.Error(1)
}

func (m *MockObligationRepository) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*credit.Obligation, error) {
	args := m.Called(ctx, facilityID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*credit.Obligation), args.Error(1)
}

func (m *MockObligationRepository) FindDueForTransition(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockObligationRepository) Save(ctx context.Context, obligation *credit.Obligation) error {
	args := m.Called(ctx, obligation)
	return args.Error(0)
}

type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) ExecuteActivation(ctx context.Context, activation credit.FacilityActivation) error {
	args := m.Called(ctx, activation)
	return args.Error(0)
}

func (m *MockLedger) ExecuteReallocation(ctx context.Context, reallocation credit.LedgerReallocation) error {
	args := m.Called(ctx, reallocation)
	return args.Error(0)
}

func (m *MockLedger) ExecutePaymentAllocation(ctx context.Context, allocation credit.PaymentAllocation) error {
	args := m.Called(ctx, allocation)
	return args.Error(0)
}

func (m *MockLedger) PostInterest(ctx context.Context, posting credit.InterestPosting) error {
	args := m.Called(ctx, posting)
	return args.Error(0)
}

func (m *MockLedger) RevertInterest(ctx context.Context, reversal credit.InterestReversal) error {
	args := m.Called(ctx, reversal)
	return args.Error(0)
}

func (m *MockLedger) ExecuteCompletion(ctx context.Context, completion credit.FacilityCompletion) error {
	args := m.Called(ctx, completion)
	return args.Error(0)
}

type MockPriceOracle struct {
	mock.Mock
}

func (m *MockPriceOracle) CollateralPrice(ctx context.Context) (valueobject.Money, error) {
	args := m.Called(ctx)
	return args.Get(0).(valueobject.Money), args.Error(1)
}

type MockCollateralBalances struct {
	mock.Mock
}

func (m *MockCollateralBalances) CollateralBalance(ctx context.Context, collateralID uuid.UUID) (valueobject.Quantity, error) {
	args := m.Called(ctx, collateralID)
	return args.Get(0).(valueobject.Quantity), args.Error(1)
}

// ============================================
// Fixtures
// ============================================

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func btc(value string) valueobject.Quantity {
	return valueobject.MustNewQuantity(decimal.RequireFromString(value), "BTC")
}

func priceUSD(amount float64) valueobject.Money {
	return valueobject.NewMoneyUSDFromFloat(amount)
}

func fixtureTerms() credit.FacilityTerms {
	return credit.FacilityTerms{
		AnnualRate:           decimal.RequireFromString("0.12"),
		DayCountBasis:        365,
		Duration:             credit.FacilityDuration{Months: 3},
		AccrualInterval:      credit.IntervalEndOfDay,
		AccrualCycleInterval: credit.IntervalEndOfMonth,
		OneTimeFeeRate:       decimal.RequireFromString("0.01"),
		OverdueDuration:      &credit.ObligationDuration{Days: 14},
		LiquidationDuration:  &credit.ObligationDuration{Days: 60},
		InitialCVL:           decimal.NewFromInt(140),
		MarginCallCVL:        decimal.NewFromInt(125),
		LiquidationCVL:       decimal.NewFromInt(105),
	}
}

func fixtureAccountIDs() credit.FacilityAccountIDs {
	obligationAccounts := func() credit.ObligationAccountIDs {
		return credit.ObligationAccountIDs{
			NotYetDueAccountID: uuid.New(),
			DueAccountID:       uuid.New(),
			OverdueAccountID:   uuid.New(),
			DefaultedAccountID: uuid.New(),
		}
	}
	return credit.FacilityAccountIDs{
		FacilityAccountID:           uuid.New(),
		CollateralAccountID:         uuid.New(),
		FeeIncomeAccountID:          uuid.New(),
		InterestIncomeAccountID:     uuid.New(),
		PaymentHoldingAccountID:     uuid.New(),
		DisbursedReceivableAccounts: obligationAccounts(),
		InterestReceivableAccounts:  obligationAccounts(),
	}
}

func fixtureFacility(t *testing.T) *credit.CreditFacility {
	t.Helper()
	facility, err := credit.NewCreditFacility(credit.NewCreditFacilityParams{
		CustomerID:        uuid.New(),
		CollateralID:      uuid.New(),
		ApprovalProcessID: uuid.New(),
		Amount:            decimal.NewFromInt(100000),
		Terms:             fixtureTerms(),
		AccountIDs:        fixtureAccountIDs(),
	})
	require.NoError(t, err)
	return facility
}

// fixtureActiveFacility approves and activates a facility on Jan 1 2024 with
// 3 BTC of collateral priced at 50000
func fixtureActiveFacility(t *testing.T) *credit.CreditFacility {
	t.Helper()
	facility := fixtureFacility(t)
	require.True(t, facility.ConcludeApprovalProcess(true).WasExecuted())

	res, err := facility.Activate(day(2024, time.January, 1), valueobject.NewMoneyUSDFromFloat(50000), btc("3"))
	require.NoError(t, err)
	require.True(t, res.WasExecuted())
	return facility
}

// fixtureObligation creates a 10000 disbursal obligation effective Jan 1 2024,
// due Feb 1, overdue Feb 15, defaulted Apr 1
func fixtureObligation(t *testing.T, facilityID uuid.UUID) *credit.Obligation {
	t.Helper()
	overdue := day(2024, time.February, 15)
	defaulted := day(2024, time.April, 1)
	obligation, err := credit.NewObligation(credit.NewObligationParams{
		ObligationID:   uuid.New(),
		FacilityID:     facilityID,
		BeneficiaryID:  uuid.New(),
		ObligationType: credit.ObligationTypeDisbursal,
		Amount:         decimal.NewFromInt(10000),
		EffectiveDate:  day(2024, time.January, 1),
		DueDate:        day(2024, time.February, 1),
		OverdueDate:    &overdue,
		DefaultedDate:  &defaulted,
		AccountIDs:     fixtureAccountIDs().DisbursedReceivableAccounts,
	})
	require.NoError(t, err)
	return obligation
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}
