package credit

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObligationSummary is the flat, read-only view of an obligation consumed by
// the allocation and aggregation algorithms
type ObligationSummary struct {
	ObligationID   uuid.UUID
	ObligationType ObligationType
	Status         ObligationStatus
	InitialAmount  decimal.Decimal
	Outstanding    decimal.Decimal
	EffectiveDate  time.Time
	RecordedAt     time.Time
}

// CompareObligations implements the canonical total order over obligations:
// interest-type sorts strictly before disbursal-type; within a type, by
// effective date, then by creation timestamp. Payments are applied and
// ledger entries replayed in this order.
func CompareObligations(a, b ObligationSummary) int {
	if a.ObligationType != b.ObligationType {
		if a.ObligationType == ObligationTypeInterest {
			return -1
		}
		return 1
	}
	if !a.EffectiveDate.Equal(b.EffectiveDate) {
		if a.EffectiveDate.Before(b.EffectiveDate) {
			return -1
		}
		return 1
	}
	switch {
	case a.RecordedAt.Before(b.RecordedAt):
		return -1
	case a.RecordedAt.After(b.RecordedAt):
		return 1
	}
	return 0
}

// ObligationAllocation is one instruction of an allocation plan: apply
// Amount of the payment to the identified obligation
type ObligationAllocation struct {
	ObligationID   uuid.UUID       `json:"obligation_id"`
	ObligationType ObligationType  `json:"obligation_type"`
	Amount         decimal.Decimal `json:"amount"`
}

// PaymentAllocationPlan is the allocator's output: per-obligation
// instructions plus running totals split by obligation type, for the
// payment-record bookkeeping downstream
type PaymentAllocationPlan struct {
	Allocations    []ObligationAllocation
	DisbursalTotal decimal.Decimal
	InterestTotal  decimal.Decimal
	Remaining      decimal.Decimal
}

// PaymentAllocator distributes a payment across outstanding obligations.
// It is a pure algorithm: no I/O, no aggregate mutation.
type PaymentAllocator struct{}

// NewPaymentAllocator creates a new PaymentAllocator
func NewPaymentAllocator() *PaymentAllocator {
	return &PaymentAllocator{}
}

// Allocate sorts the obligations by the canonical order and greedily assigns
// min(remaining, outstanding) to each until the payment is exhausted or all
// obligations are satisfied
func (a *PaymentAllocator) Allocate(paymentAmount decimal.Decimal, obligations []ObligationSummary) (*PaymentAllocationPlan, error) {
	sorted := make([]ObligationSummary, len(obligations))
	copy(sorted, obligations)
	sort.SliceStable(sorted, func(i, j int) bool {
		return CompareObligations(sorted[i], sorted[j]) < 0
	})

	plan := &PaymentAllocationPlan{
		Allocations:    make([]ObligationAllocation, 0, len(sorted)),
		DisbursalTotal: decimal.Zero,
		InterestTotal:  decimal.Zero,
		Remaining:      paymentAmount,
	}

	for _, obligation := range sorted {
		if plan.Remaining.IsZero() {
			break
		}
		if !obligation.Outstanding.IsPositive() {
			continue
		}
		amount := decimal.Min(plan.Remaining, obligation.Outstanding)
		plan.Allocations = append(plan.Allocations, ObligationAllocation{
			ObligationID:   obligation.ObligationID,
			ObligationType: obligation.ObligationType,
			Amount:         amount,
		})
		switch obligation.ObligationType {
		case ObligationTypeInterest:
			plan.InterestTotal = plan.InterestTotal.Add(amount)
		default:
			plan.DisbursalTotal = plan.DisbursalTotal.Add(amount)
		}
		plan.Remaining = plan.Remaining.Sub(amount)
	}

	allocated := plan.DisbursalTotal.Add(plan.InterestTotal)
	if !allocated.Add(plan.Remaining).Equal(paymentAmount) {
		return nil, ErrInconsistentAllocation
	}

	return plan, nil
}
