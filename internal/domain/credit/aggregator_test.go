package credit

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestObligationAggregator(t *testing.T) {
	jan := day(2024, time.January, 1)

	t.Run("buckets outstanding balances by type and status", func(t *testing.T) {
		dueDisbursal := summary(ObligationTypeDisbursal, jan, 4000)
		overdueDisbursal := summary(ObligationTypeDisbursal, jan, 1500)
		overdueDisbursal.Status = ObligationStatusOverdue
		dueInterest := summary(ObligationTypeInterest, jan, 300)

		agg := NewObligationAggregator([]ObligationSummary{dueDisbursal, overdueDisbursal, dueInterest})

		assert.True(t, agg.TotalInitialDisbursed().Equal(decimal.NewFromInt(5500)))
		assert.True(t, agg.TotalInitialInterest().Equal(decimal.NewFromInt(300)))
		assert.True(t, agg.DisbursedOutstanding(ObligationStatusDue).Equal(decimal.NewFromInt(4000)))
		assert.True(t, agg.DisbursedOutstanding(ObligationStatusOverdue).Equal(decimal.NewFromInt(1500)))
		assert.True(t, agg.InterestOutstanding(ObligationStatusDue).Equal(decimal.NewFromInt(300)))
		assert.True(t, agg.InterestOutstanding(ObligationStatusOverdue).IsZero())
		assert.True(t, agg.TotalOutstanding().Equal(decimal.NewFromInt(5800)))
	})

	t.Run("initial totals survive repayment", func(t *testing.T) {
		partiallyPaid := summary(ObligationTypeDisbursal, jan, 4000)
		partiallyPaid.Outstanding = decimal.NewFromInt(1000)

		agg := NewObligationAggregator([]ObligationSummary{partiallyPaid})
		assert.True(t, agg.TotalInitialDisbursed().Equal(decimal.NewFromInt(4000)))
		assert.True(t, agg.TotalOutstanding().Equal(decimal.NewFromInt(1000)))
	})

	t.Run("empty input aggregates to zero", func(t *testing.T) {
		agg := NewObligationAggregator(nil)
		assert.True(t, agg.TotalOutstanding().IsZero())
		assert.False(t, agg.AnyOutstandingOrDefaulted())
	})

	t.Run("a defaulted balance blocks completion", func(t *testing.T) {
		defaulted := summary(ObligationTypeDisbursal, jan, 2000)
		defaulted.Status = ObligationStatusDefaulted

		agg := NewObligationAggregator([]ObligationSummary{defaulted})
		assert.True(t, agg.AnyOutstandingOrDefaulted())
	})

	t.Run("fully paid obligations do not block completion", func(t *testing.T) {
		paid := summary(ObligationTypeDisbursal, jan, 2000)
		paid.Status = ObligationStatusPaid
		paid.Outstanding = decimal.Zero

		agg := NewObligationAggregator([]ObligationSummary{paid})
		assert.False(t, agg.AnyOutstandingOrDefaulted())
		assert.True(t, agg.TotalInitialDisbursed().Equal(decimal.NewFromInt(2000)))
	})
}
