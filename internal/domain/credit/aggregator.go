package credit

import (
	"github.com/shopspring/decimal"
)

type receivableBucket struct {
	obligationType ObligationType
	status         ObligationStatus
}

// ObligationAggregator rolls a flat list of obligation summaries into the
// bucketed totals used for facility balance reporting and the completion
// precondition. It is a pure roll-up: no I/O, no aggregate mutation.
type ObligationAggregator struct {
	initialDisbursed decimal.Decimal
	initialInterest  decimal.Decimal
	outstanding      map[receivableBucket]decimal.Decimal
}

// NewObligationAggregator builds the aggregator from obligation summaries
func NewObligationAggregator(summaries []ObligationSummary) *ObligationAggregator {
	agg := &ObligationAggregator{
		initialDisbursed: decimal.Zero,
		initialInterest:  decimal.Zero,
		outstanding:      make(map[receivableBucket]decimal.Decimal),
	}
	for _, s := range summaries {
		switch s.ObligationType {
		case ObligationTypeInterest:
			agg.initialInterest = agg.initialInterest.Add(s.InitialAmount)
		default:
			agg.initialDisbursed = agg.initialDisbursed.Add(s.InitialAmount)
		}
		bucket := receivableBucket{obligationType: s.ObligationType, status: s.Status}
		agg.outstanding[bucket] = agg.outstanding[bucket].Add(s.Outstanding)
	}
	return agg
}

// TotalInitialDisbursed returns the sum of initial amounts of all
// disbursal-type obligations
func (a *ObligationAggregator) TotalInitialDisbursed() decimal.Decimal {
	return a.initialDisbursed
}

// TotalInitialInterest returns the sum of initial amounts of all
// interest-type obligations
func (a *ObligationAggregator) TotalInitialInterest() decimal.Decimal {
	return a.initialInterest
}

// DisbursedOutstanding returns the outstanding disbursal balance in the
// given status bucket
func (a *ObligationAggregator) DisbursedOutstanding(status ObligationStatus) decimal.Decimal {
	return a.outstanding[receivableBucket{obligationType: ObligationTypeDisbursal, status: status}]
}

// InterestOutstanding returns the outstanding interest balance in the given
// status bucket
func (a *ObligationAggregator) InterestOutstanding(status ObligationStatus) decimal.Decimal {
	return a.outstanding[receivableBucket{obligationType: ObligationTypeInterest, status: status}]
}

// TotalOutstanding returns the outstanding balance across every bucket
func (a *ObligationAggregator) TotalOutstanding() decimal.Decimal {
	total := decimal.Zero
	for _, amount := range a.outstanding {
		total = total.Add(amount)
	}
	return total
}

// AnyOutstandingOrDefaulted reports whether any bucket (not-yet-due, due,
// overdue or defaulted, either type) still carries a balance. This is the
// facility completion gate.
func (a *ObligationAggregator) AnyOutstandingOrDefaulted() bool {
	return !a.TotalOutstanding().IsZero()
}
