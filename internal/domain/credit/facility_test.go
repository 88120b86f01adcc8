package credit

import (
	"testing"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFacilityAccountIDs() FacilityAccountIDs {
	return FacilityAccountIDs{
		FacilityAccountID:           uuid.New(),
		CollateralAccountID:         uuid.New(),
		FeeIncomeAccountID:          uuid.New(),
		InterestIncomeAccountID:     uuid.New(),
		PaymentHoldingAccountID:     uuid.New(),
		DisbursedReceivableAccounts: testObligationAccountIDs(),
		InterestReceivableAccounts:  testObligationAccountIDs(),
	}
}

func createTestFacility(t *testing.T) *CreditFacility {
	t.Helper()
	f, err := NewCreditFacility(NewCreditFacilityParams{
		CustomerID:        uuid.New(),
		CollateralID:      uuid.New(),
		ApprovalProcessID: uuid.New(),
		Amount:            decimal.NewFromInt(100000),
		Terms:             defaultTestTerms(),
		AccountIDs:        testFacilityAccountIDs(),
	})
	require.NoError(t, err)
	return f
}

// createActiveFacility approves and activates a facility on 2024-01-01
func createActiveFacility(t *testing.T) *CreditFacility {
	t.Helper()
	f := createTestFacility(t)
	f.ConcludeApprovalProcess(true)
	res, err := f.Activate(day(2024, time.January, 1), valueobject.NewMoneyUSDFromFloat(50000), btc("3"))
	require.NoError(t, err)
	require.True(t, res.WasExecuted())
	return f
}

// ============================================
// NewCreditFacility Tests
// ============================================

func TestNewCreditFacility(t *testing.T) {
	t.Run("creates facility with valid inputs", func(t *testing.T) {
		f := createTestFacility(t)

		assert.Equal(t, FacilityStatusPendingCollateralization, f.Status())
		assert.False(t, f.IsActivated())

		events := f.GetNewEvents()
		require.Len(t, events, 1)
		assert.Equal(t, "CreditFacilityInitialized", events[0].EventType())
	})

	t.Run("fails with zero amount", func(t *testing.T) {
		_, err := NewCreditFacility(NewCreditFacilityParams{
			CustomerID:        uuid.New(),
			CollateralID:      uuid.New(),
			ApprovalProcessID: uuid.New(),
			Amount:            decimal.Zero,
			Terms:             defaultTestTerms(),
			AccountIDs:        testFacilityAccountIDs(),
		})
		require.Error(t, err)
	})

	t.Run("fails with invalid terms", func(t *testing.T) {
		terms := defaultTestTerms()
		terms.Duration = FacilityDuration{}
		_, err := NewCreditFacility(NewCreditFacilityParams{
			CustomerID:        uuid.New(),
			CollateralID:      uuid.New(),
			ApprovalProcessID: uuid.New(),
			Amount:            decimal.NewFromInt(100000),
			Terms:             terms,
			AccountIDs:        testFacilityAccountIDs(),
		})
		require.Error(t, err)
	})
}

// ============================================
// Approval Tests
// ============================================

func TestCreditFacility_ConcludeApprovalProcess(t *testing.T) {
	t.Run("records the first conclusion", func(t *testing.T) {
		f := createTestFacility(t)
		res := f.ConcludeApprovalProcess(true)
		require.True(t, res.WasExecuted())
		assert.True(t, res.Value)
	})

	t.Run("ignores repeat conclusions", func(t *testing.T) {
		f := createTestFacility(t)
		f.ConcludeApprovalProcess(false)

		res := f.ConcludeApprovalProcess(true)
		assert.Equal(t, shared.OutcomeIgnored, res.Outcome)
	})
}

// ============================================
// Activation Tests
// ============================================

func TestCreditFacility_Activate(t *testing.T) {
	price := valueobject.NewMoneyUSDFromFloat(50000)

	t.Run("activates an approved, collateralized facility", func(t *testing.T) {
		f := createTestFacility(t)
		f.ConcludeApprovalProcess(true)

		res, err := f.Activate(day(2024, time.January, 1), price, btc("3"))
		require.NoError(t, err)
		require.True(t, res.WasExecuted())

		assert.True(t, f.IsActivated())
		assert.Equal(t, FacilityStatusActive, f.Status())
		require.NotNil(t, f.MaturesAt)
		assert.Equal(t, day(2024, time.April, 1), *f.MaturesAt)

		activation := res.Value.Activation
		assert.True(t, activation.FacilityAmount.Equal(decimal.NewFromInt(100000)))
		assert.True(t, activation.StructuringFee.Equal(decimal.NewFromInt(1000)))
		assert.Equal(t, day(2024, time.January, 1), activation.EffectiveDate)

		// Activation opens the first accrual cycle
		assert.Equal(t, day(2024, time.January, 1), res.Value.FirstAccrualPeriod.Start)
		cycle, err := f.InProgressCycle()
		require.NoError(t, err)
		require.NotNil(t, cycle)
		assert.Equal(t, 1, cycle.CycleIdx)
		assert.Equal(t, day(2024, time.January, 31), cycle.Period.End)
		require.Len(t, f.StagedCycles(), 1)
	})

	t.Run("fails while approval is pending", func(t *testing.T) {
		f := createTestFacility(t)
		_, err := f.Activate(day(2024, time.January, 1), price, btc("3"))
		require.ErrorIs(t, err, ErrApprovalInProgress)
	})

	t.Run("fails when approval was denied", func(t *testing.T) {
		f := createTestFacility(t)
		f.ConcludeApprovalProcess(false)
		_, err := f.Activate(day(2024, time.January, 1), price, btc("3"))
		require.ErrorIs(t, err, ErrApprovalDenied)
	})

	t.Run("fails below the initial CVL threshold", func(t *testing.T) {
		f := createTestFacility(t)
		f.ConcludeApprovalProcess(true)
		_, err := f.Activate(day(2024, time.January, 1), price, btc("2"))
		require.ErrorIs(t, err, ErrBelowMarginLimit)
	})

	t.Run("is idempotent once activated", func(t *testing.T) {
		f := createActiveFacility(t)
		res, err := f.Activate(day(2024, time.January, 2), price, btc("3"))
		require.NoError(t, err)
		assert.Equal(t, shared.OutcomeIgnored, res.Outcome)
	})
}

func TestCreditFacility_CheckDisbursalDate(t *testing.T) {
	f := createActiveFacility(t)

	assert.True(t, f.CheckDisbursalDate(day(2024, time.February, 1)))
	assert.True(t, f.CheckDisbursalDate(day(2024, time.March, 31)))
	assert.False(t, f.CheckDisbursalDate(day(2024, time.April, 1)))

	inactive := createTestFacility(t)
	assert.False(t, inactive.CheckDisbursalDate(day(2024, time.February, 1)))
}

func TestCreditFacility_InitiateDisbursal(t *testing.T) {
	t.Run("builds a disbursal obligation due at maturity", func(t *testing.T) {
		f := createActiveFacility(t)

		params, err := f.InitiateDisbursal(decimal.NewFromInt(40000), day(2024, time.January, 15))
		require.NoError(t, err)

		assert.Equal(t, ObligationTypeDisbursal, params.ObligationType)
		assert.Equal(t, f.ID, params.FacilityID)
		assert.Equal(t, f.CustomerID, params.BeneficiaryID)
		assert.True(t, params.Amount.Equal(decimal.NewFromInt(40000)))
		assert.Equal(t, day(2024, time.January, 15), params.EffectiveDate)
		assert.Equal(t, day(2024, time.April, 1), params.DueDate)
		require.NotNil(t, params.OverdueDate)
		assert.Equal(t, day(2024, time.April, 15), *params.OverdueDate)
		require.NotNil(t, params.DefaultedDate)
		assert.Equal(t, day(2024, time.May, 31), *params.DefaultedDate)
		assert.Equal(t, f.AccountIDs.DisbursedReceivableAccounts, params.AccountIDs)
	})

	t.Run("fails past maturity", func(t *testing.T) {
		f := createActiveFacility(t)
		_, err := f.InitiateDisbursal(decimal.NewFromInt(40000), day(2024, time.April, 1))
		require.Error(t, err)
	})

	t.Run("fails before activation", func(t *testing.T) {
		f := createTestFacility(t)
		_, err := f.InitiateDisbursal(decimal.NewFromInt(40000), day(2024, time.January, 15))
		require.ErrorIs(t, err, ErrNotActivated)
	})
}

// ============================================
// Accrual Cycle Orchestration Tests
// ============================================

// concludeCurrentCycle accrues the in-progress cycle to its end and posts it
func concludeCurrentCycle(t *testing.T, f *CreditFacility, outstanding decimal.Decimal) {
	t.Helper()
	cycle, err := f.InProgressCycle()
	require.NoError(t, err)
	require.NotNil(t, cycle)
	accrueFully(t, cycle, outstanding)

	res, err := f.RecordInterestAccrualCycle()
	require.NoError(t, err)
	require.True(t, res.WasExecuted())
}

func TestCreditFacility_StartInterestAccrualCycle(t *testing.T) {
	outstanding := decimal.NewFromInt(100000)

	t.Run("fails before activation", func(t *testing.T) {
		f := createTestFacility(t)
		_, err := f.StartInterestAccrualCycle(day(2024, time.February, 1))
		require.ErrorIs(t, err, ErrNotActivated)
	})

	t.Run("fails while the current cycle is uncompleted", func(t *testing.T) {
		f := createActiveFacility(t)
		_, err := f.StartInterestAccrualCycle(day(2024, time.February, 1))
		require.ErrorIs(t, err, ErrCycleInProgress)
	})

	t.Run("starts the follow-up cycle after conclusion", func(t *testing.T) {
		f := createActiveFacility(t)
		concludeCurrentCycle(t, f, outstanding)

		res, err := f.StartInterestAccrualCycle(day(2024, time.February, 1))
		require.NoError(t, err)
		require.True(t, res.WasExecuted())

		cycle := res.Value.Cycle
		assert.Equal(t, 2, cycle.CycleIdx)
		assert.Equal(t, day(2024, time.February, 1), cycle.Period.Start)
		assert.Equal(t, day(2024, time.February, 29), cycle.Period.End)
	})

	t.Run("rejects a start before the period begins", func(t *testing.T) {
		f := createActiveFacility(t)
		concludeCurrentCycle(t, f, outstanding)

		_, err := f.StartInterestAccrualCycle(day(2024, time.January, 31))
		require.ErrorIs(t, err, ErrCycleFutureStartDate)
	})

	t.Run("reports AlreadyApplied once the facility is fully amortized", func(t *testing.T) {
		f := createActiveFacility(t)
		// Cycles: Jan, Feb, Mar, then the single day of Apr 1 (maturity)
		for month := 0; month < 4; month++ {
			concludeCurrentCycle(t, f, outstanding)
			res, err := f.StartInterestAccrualCycle(day(2024, time.June, 1))
			require.NoError(t, err)
			if !res.WasExecuted() {
				assert.Equal(t, shared.OutcomeAlreadyApplied, res.Outcome)
				return
			}
		}
		t.Fatal("expected the cycle schedule to exhaust at maturity")
	})
}

func TestCreditFacility_RecordInterestAccrualCycle(t *testing.T) {
	outstanding := decimal.NewFromInt(100000)

	t.Run("concludes a fully accrued cycle and yields an interest obligation", func(t *testing.T) {
		f := createActiveFacility(t)
		cycle, err := f.InProgressCycle()
		require.NoError(t, err)
		accrueFully(t, cycle, outstanding)

		res, err := f.RecordInterestAccrualCycle()
		require.NoError(t, err)
		require.True(t, res.WasExecuted())
		require.NotNil(t, res.Value.NewObligation)
		assert.Equal(t, ObligationTypeInterest, res.Value.NewObligation.ObligationType)
		assert.Equal(t, f.CustomerID, res.Value.NewObligation.BeneficiaryID)

		// The facility recorded the conclusion
		in, err := f.InProgressCycle()
		require.NoError(t, err)
		assert.Nil(t, in)
	})

	t.Run("fails while the cycle is not fully accrued", func(t *testing.T) {
		f := createActiveFacility(t)
		_, err := f.RecordInterestAccrualCycle()
		require.ErrorIs(t, err, ErrAccrualNotCompletedYet)
	})

	t.Run("reports AlreadyApplied without an in-progress cycle", func(t *testing.T) {
		f := createActiveFacility(t)
		concludeCurrentCycle(t, f, outstanding)

		res, err := f.RecordInterestAccrualCycle()
		require.NoError(t, err)
		assert.Equal(t, shared.OutcomeAlreadyApplied, res.Outcome)
	})

	t.Run("fails when the in-progress cycle is not attached", func(t *testing.T) {
		f := createActiveFacility(t)
		rebuilt := CreditFacilityFromHistory(f.Events())

		_, err := rebuilt.RecordInterestAccrualCycle()
		require.ErrorIs(t, err, ErrObligationAccrualCycleMissing)
	})
}

// ============================================
// Collateralization Tests
// ============================================

func TestCreditFacility_UpdateCollateralization(t *testing.T) {
	buffer := decimal.NewFromInt(5)

	t.Run("pre-activation upgrade to fully collateralized", func(t *testing.T) {
		f := createTestFacility(t)

		changed := f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(50000), buffer, btc("3"))
		assert.True(t, changed)
		assert.Equal(t, CollateralizationFullyCollateralized, f.CollateralizationState())
		assert.Equal(t, FacilityStatusPendingApproval, f.Status())
	})

	t.Run("unchanged CVL and state records nothing", func(t *testing.T) {
		f := createTestFacility(t)
		f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(50000), buffer, btc("3"))
		before := len(f.Events())

		changed := f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(50000), buffer, btc("3"))
		assert.False(t, changed)
		assert.Len(t, f.Events(), before)
	})

	t.Run("active facility downgrades below margin call", func(t *testing.T) {
		f := createActiveFacility(t)
		f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(50000), buffer, btc("3"))

		// 3 BTC * 40000 = 120000 -> CVL 120, under the margin call threshold of 125
		changed := f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(40000), buffer, btc("3"))
		assert.True(t, changed)
		assert.Equal(t, CollateralizationUnderMarginCall, f.CollateralizationState())
	})

	t.Run("recovery inside the buffer does not flap the state", func(t *testing.T) {
		f := createActiveFacility(t)
		f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(40000), buffer, btc("3"))
		require.Equal(t, CollateralizationUnderMarginCall, f.CollateralizationState())

		// CVL 127.5: above margin call (125) but inside the 5 point buffer
		changed := f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(42500), buffer, btc("3"))
		assert.True(t, changed) // ratio changed, state did not
		assert.Equal(t, CollateralizationUnderMarginCall, f.CollateralizationState())

		// CVL 135 clears the buffer
		f.UpdateCollateralization(valueobject.NewMoneyUSDFromFloat(45000), buffer, btc("3"))
		assert.Equal(t, CollateralizationFullyCollateralized, f.CollateralizationState())
	})
}

// ============================================
// Maturity and Completion Tests
// ============================================

func TestCreditFacility_Mature(t *testing.T) {
	t.Run("records maturity once", func(t *testing.T) {
		f := createActiveFacility(t)

		res := f.Mature()
		require.True(t, res.WasExecuted())
		assert.Equal(t, day(2024, time.April, 1), res.Value)
		assert.Equal(t, FacilityStatusMatured, f.Status())

		again := f.Mature()
		assert.Equal(t, shared.OutcomeIgnored, again.Outcome)
	})

	t.Run("does nothing before activation", func(t *testing.T) {
		f := createTestFacility(t)
		res := f.Mature()
		assert.Equal(t, shared.OutcomeAlreadyApplied, res.Outcome)
	})
}

func TestCreditFacility_Complete(t *testing.T) {
	t.Run("completes when no balance remains", func(t *testing.T) {
		f := createActiveFacility(t)
		balances := NewObligationAggregator(nil)

		res, err := f.Complete(balances, btc("3"), day(2024, time.April, 2))
		require.NoError(t, err)
		require.True(t, res.WasExecuted())

		completion := res.Value
		assert.Equal(t, f.AccountIDs.CollateralAccountID, completion.CollateralAccountID)
		assert.Equal(t, day(2024, time.April, 2), completion.EffectiveDate)
		assert.Equal(t, FacilityStatusClosed, f.Status())
	})

	t.Run("fails while any bucket carries a balance", func(t *testing.T) {
		f := createActiveFacility(t)
		balances := NewObligationAggregator([]ObligationSummary{{
			ObligationID:   uuid.New(),
			ObligationType: ObligationTypeDisbursal,
			Status:         ObligationStatusDefaulted,
			InitialAmount:  decimal.NewFromInt(10000),
			Outstanding:    decimal.NewFromInt(10000),
		}})

		_, err := f.Complete(balances, btc("3"), day(2024, time.April, 2))
		require.ErrorIs(t, err, ErrOutstandingAmount)
	})

	t.Run("is idempotent once closed", func(t *testing.T) {
		f := createActiveFacility(t)
		_, err := f.Complete(NewObligationAggregator(nil), btc("3"), day(2024, time.April, 2))
		require.NoError(t, err)

		res, err := f.Complete(NewObligationAggregator(nil), btc("3"), day(2024, time.April, 3))
		require.NoError(t, err)
		assert.Equal(t, shared.OutcomeIgnored, res.Outcome)
	})
}

// ============================================
// Hydration Tests
// ============================================

func TestCreditFacilityFromHistory(t *testing.T) {
	t.Run("rebuilds the facility from its history", func(t *testing.T) {
		original := createActiveFacility(t)

		rebuilt := CreditFacilityFromHistory(original.Events())
		assert.Equal(t, original.ID, rebuilt.ID)
		assert.Equal(t, FacilityStatusActive, rebuilt.Status())
		require.NotNil(t, rebuilt.MaturesAt)
		assert.Equal(t, *original.MaturesAt, *rebuilt.MaturesAt)
		assert.Empty(t, rebuilt.GetNewEvents())
	})

	t.Run("attached cycles restore orchestration", func(t *testing.T) {
		original := createActiveFacility(t)
		cycle, err := original.InProgressCycle()
		require.NoError(t, err)

		rebuilt := CreditFacilityFromHistory(original.Events())
		rebuilt.AttachCycle(InterestAccrualCycleFromHistory(cycle.Events()))

		attached, err := rebuilt.InProgressCycle()
		require.NoError(t, err)
		require.NotNil(t, attached)
		assert.Equal(t, cycle.ID, attached.ID)
	})

	t.Run("panics on empty history", func(t *testing.T) {
		assert.Panics(t, func() { CreditFacilityFromHistory(nil) })
	})
}
