package credit

import (
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InterestInterval determines how accrual (sub-)periods are carved out of the
// calendar. All period arithmetic works on calendar dates (UTC midnight).
type InterestInterval string

const (
	IntervalEndOfDay   InterestInterval = "END_OF_DAY"
	IntervalEndOfMonth InterestInterval = "END_OF_MONTH"
)

// IsValid checks if the interval is a valid InterestInterval
func (i InterestInterval) IsValid() bool {
	return i == IntervalEndOfDay || i == IntervalEndOfMonth
}

// PeriodStartingAt returns the period that starts on the given day and runs
// to the interval boundary (same day for END_OF_DAY, last day of the month
// for END_OF_MONTH).
func (i InterestInterval) PeriodStartingAt(start time.Time) Period {
	start = DateOf(start)
	switch i {
	case IntervalEndOfDay:
		return Period{Start: start, End: start}
	case IntervalEndOfMonth:
		firstOfNext := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
		return Period{Start: start, End: firstOfNext.AddDate(0, 0, -1)}
	}
	panic("credit: unknown interest interval " + string(i))
}

// Period is an inclusive calendar date range [Start, End]
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Next returns the period immediately following this one for the interval
func (p Period) Next(interval InterestInterval) Period {
	return interval.PeriodStartingAt(p.End.AddDate(0, 0, 1))
}

// Truncate bounds the period to the given end date. Returns nil if the
// period starts after the bound (no period remains).
func (p Period) Truncate(end time.Time) *Period {
	end = DateOf(end)
	if p.Start.After(end) {
		return nil
	}
	if p.End.After(end) {
		p.End = end
	}
	return &p
}

// Days returns the number of calendar days covered by the period, inclusive
func (p Period) Days() int64 {
	return int64(p.End.Sub(p.Start).Hours()/24) + 1
}

// Contains reports whether the given day falls inside the period
func (p Period) Contains(day time.Time) bool {
	day = DateOf(day)
	return !day.Before(p.Start) && !day.After(p.End)
}

// DateOf truncates a timestamp to its UTC calendar date
func DateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FacilityDuration is the lifetime of a facility, in whole months
type FacilityDuration struct {
	Months int `json:"months"`
}

// MaturityDate returns the facility maturity date for the given activation time
func (d FacilityDuration) MaturityDate(activatedAt time.Time) time.Time {
	return DateOf(activatedAt).AddDate(0, d.Months, 0)
}

// ObligationDuration is a grace period measured in whole days
type ObligationDuration struct {
	Days int `json:"days"`
}

// EndDate returns the date the duration ends when started on the given day
func (d ObligationDuration) EndDate(from time.Time) time.Time {
	return DateOf(from).AddDate(0, 0, d.Days)
}

// CollateralizationState is the discrete classification of a facility's
// collateral coverage
type CollateralizationState string

const (
	CollateralizationNoCollateral        CollateralizationState = "NO_COLLATERAL"
	CollateralizationUnderLiquidation    CollateralizationState = "UNDER_LIQUIDATION_THRESHOLD"
	CollateralizationUnderMarginCall     CollateralizationState = "UNDER_MARGIN_CALL_THRESHOLD"
	CollateralizationFullyCollateralized CollateralizationState = "FULLY_COLLATERALIZED"
)

// String returns the string representation of CollateralizationState
func (s CollateralizationState) String() string {
	return string(s)
}

// FacilityTerms captures the commercial terms a credit facility is created
// with. The terms are snapshotted into the facility's Initialized event and
// into every accrual cycle, so changing defaults never rewrites history.
type FacilityTerms struct {
	AnnualRate           decimal.Decimal     `json:"annual_rate"`
	DayCountBasis        int64               `json:"day_count_basis"`
	Duration             FacilityDuration    `json:"duration"`
	AccrualInterval      InterestInterval    `json:"accrual_interval"`
	AccrualCycleInterval InterestInterval    `json:"accrual_cycle_interval"`
	OneTimeFeeRate       decimal.Decimal     `json:"one_time_fee_rate"`
	OverdueDuration      *ObligationDuration `json:"overdue_duration,omitempty"`
	LiquidationDuration  *ObligationDuration `json:"liquidation_duration,omitempty"`
	InitialCVL           decimal.Decimal     `json:"initial_cvl"`
	MarginCallCVL        decimal.Decimal     `json:"margin_call_cvl"`
	LiquidationCVL       decimal.Decimal     `json:"liquidation_cvl"`
}

// DefaultDayCountBasis is the simple-interest day-count denominator
const DefaultDayCountBasis int64 = 365

// Validate checks the terms for internal consistency
func (t FacilityTerms) Validate() error {
	if t.AnnualRate.IsNegative() {
		return shared.NewDomainError("INVALID_TERMS", "Annual rate cannot be negative")
	}
	if t.DayCountBasis <= 0 {
		return shared.NewDomainError("INVALID_TERMS", "Day count basis must be positive")
	}
	if t.Duration.Months <= 0 {
		return shared.NewDomainError("INVALID_TERMS", "Facility duration must be positive")
	}
	if !t.AccrualInterval.IsValid() || !t.AccrualCycleInterval.IsValid() {
		return shared.NewDomainError("INVALID_TERMS", "Accrual intervals are not valid")
	}
	if t.OneTimeFeeRate.IsNegative() {
		return shared.NewDomainError("INVALID_TERMS", "One-time fee rate cannot be negative")
	}
	if t.MarginCallCVL.GreaterThan(t.InitialCVL) {
		return shared.NewDomainError("INVALID_TERMS", "Margin call CVL cannot exceed initial CVL")
	}
	if t.LiquidationCVL.GreaterThan(t.MarginCallCVL) {
		return shared.NewDomainError("INVALID_TERMS", "Liquidation CVL cannot exceed margin call CVL")
	}
	return nil
}

// InterestForPeriod computes simple interest on the outstanding amount for
// the given number of days: rate x amount x (days / basis), rounded to cents.
func (t FacilityTerms) InterestForPeriod(outstanding decimal.Decimal, days int64) decimal.Decimal {
	basis := t.DayCountBasis
	if basis == 0 {
		basis = DefaultDayCountBasis
	}
	return t.AnnualRate.
		Mul(outstanding).
		Mul(decimal.NewFromInt(days)).
		Div(decimal.NewFromInt(basis)).
		Round(2)
}

// OneTimeFee computes the structuring fee charged on activation
func (t FacilityTerms) OneTimeFee(facilityAmount decimal.Decimal) decimal.Decimal {
	return t.OneTimeFeeRate.Mul(facilityAmount).Round(2)
}

// CVL computes the collateral-value-to-loan ratio, in percent, of the given
// collateral holding priced now against the facility amount
func CVL(collateral valueobject.Quantity, price valueobject.Money, facilityAmount decimal.Decimal) decimal.Decimal {
	if facilityAmount.IsZero() {
		return decimal.Zero
	}
	collateralValue := collateral.Amount().Mul(price.Amount())
	return collateralValue.Div(facilityAmount).Mul(decimal.NewFromInt(100)).Round(2)
}

// IsActivationAllowed reports whether the collateral coverage at the given
// price clears the initial CVL threshold
func (t FacilityTerms) IsActivationAllowed(collateral valueobject.Quantity, price valueobject.Money, facilityAmount decimal.Decimal) bool {
	return CVL(collateral, price, facilityAmount).GreaterThanOrEqual(t.InitialCVL)
}

// PreActivationCollateralization classifies collateral coverage before the
// facility is active. The full facility amount is the yardstick and no
// stabilization buffer applies.
func (t FacilityTerms) PreActivationCollateralization(cvl decimal.Decimal) CollateralizationState {
	switch {
	case cvl.IsZero():
		return CollateralizationNoCollateral
	case cvl.GreaterThanOrEqual(t.InitialCVL):
		return CollateralizationFullyCollateralized
	default:
		return CollateralizationUnderMarginCall
	}
}

// ActiveCollateralization classifies collateral coverage for an active or
// matured facility. Upgrades out of a distressed state must clear the margin
// call threshold plus the supplied buffer, so a CVL oscillating around the
// threshold does not flap the state.
func (t FacilityTerms) ActiveCollateralization(cvl decimal.Decimal, current CollateralizationState, upgradeBuffer decimal.Decimal) CollateralizationState {
	switch {
	case cvl.IsZero():
		return CollateralizationNoCollateral
	case cvl.LessThan(t.LiquidationCVL):
		return CollateralizationUnderLiquidation
	case cvl.LessThan(t.MarginCallCVL):
		return CollateralizationUnderMarginCall
	}
	if current == CollateralizationUnderMarginCall || current == CollateralizationUnderLiquidation {
		if cvl.LessThan(t.MarginCallCVL.Add(upgradeBuffer)) {
			return current
		}
	}
	return CollateralizationFullyCollateralized
}
