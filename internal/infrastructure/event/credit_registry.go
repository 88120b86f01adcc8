package event

import (
	"github.com/lendcore/backend/internal/domain/credit"
)

// NewCreditSerializer returns a serializer pre-loaded with the full credit
// event vocabulary. Hydration fails fast on any event type outside this set.
func NewCreditSerializer() *Serializer {
	s := NewSerializer()

	// Obligation stream
	s.Register("ObligationInitialized", &credit.ObligationInitializedEvent{})
	s.Register("ObligationDueRecorded", &credit.ObligationDueRecordedEvent{})
	s.Register("ObligationOverdueRecorded", &credit.ObligationOverdueRecordedEvent{})
	s.Register("ObligationDefaultedRecorded", &credit.ObligationDefaultedRecordedEvent{})
	s.Register("ObligationPaymentAllocated", &credit.ObligationPaymentAllocatedEvent{})
	s.Register("ObligationCompleted", &credit.ObligationCompletedEvent{})

	// CreditFacility stream
	s.Register("CreditFacilityInitialized", &credit.CreditFacilityInitializedEvent{})
	s.Register("ApprovalProcessConcluded", &credit.ApprovalProcessConcludedEvent{})
	s.Register("CreditFacilityActivated", &credit.CreditFacilityActivatedEvent{})
	s.Register("InterestAccrualCycleStarted", &credit.InterestAccrualCycleStartedEvent{})
	s.Register("InterestAccrualCycleConcluded", &credit.InterestAccrualCycleConcludedEvent{})
	s.Register("CollateralizationRatioChanged", &credit.CollateralizationRatioChangedEvent{})
	s.Register("CollateralizationStateChanged", &credit.CollateralizationStateChangedEvent{})
	s.Register("CreditFacilityMatured", &credit.CreditFacilityMaturedEvent{})
	s.Register("CreditFacilityCompleted", &credit.CreditFacilityCompletedEvent{})

	// InterestAccrualCycle stream
	s.Register("InterestAccrualCycleInitialized", &credit.InterestAccrualCycleInitializedEvent{})
	s.Register("InterestAccrued", &credit.InterestAccruedEvent{})
	s.Register("InterestAccrualsPosted", &credit.InterestAccrualsPostedEvent{})
	s.Register("AccruedInterestReverted", &credit.AccruedInterestRevertedEvent{})
	s.Register("PostedInterestAccrualsReverted", &credit.PostedInterestAccrualsRevertedEvent{})

	return s
}
