package credit

import "github.com/lendcore/backend/internal/domain/shared"

// Rejected preconditions surfaced to callers as typed domain errors.
// Invariant violations (corrupted event history) are not represented here;
// those panic during hydration or state derivation.
var (
	ErrApprovalInProgress            = shared.NewDomainError("APPROVAL_IN_PROGRESS", "Approval process has not concluded yet")
	ErrApprovalDenied                = shared.NewDomainError("APPROVAL_DENIED", "Approval process concluded negatively")
	ErrBelowMarginLimit              = shared.NewDomainError("BELOW_MARGIN_LIMIT", "Collateral coverage is below the activation threshold")
	ErrNotActivated                  = shared.NewDomainError("NOT_ACTIVATED", "Credit facility has not been activated")
	ErrCycleInProgress               = shared.NewDomainError("CYCLE_IN_PROGRESS", "In-progress interest accrual cycle is not completed yet")
	ErrCycleFutureStartDate          = shared.NewDomainError("CYCLE_FUTURE_START_DATE", "Interest accrual cycle would start in the future")
	ErrAccrualNotCompletedYet        = shared.NewDomainError("ACCRUAL_NOT_COMPLETED", "Interest accrual cycle has periods left to accrue")
	ErrUnrevertedCyclePosting        = shared.NewDomainError("UNREVERTED_CYCLE_POSTING", "Cycle posting must be reverted before individual accruals")
	ErrOutstandingAmount             = shared.NewDomainError("OUTSTANDING_AMOUNT", "Facility has outstanding or defaulted obligations")
	ErrInconsistentAllocation        = shared.NewDomainError("INCONSISTENT_ALLOCATION", "Payment allocation does not reconcile with the payment amount")
	ErrObligationAccrualCycleMissing = shared.NewDomainError("ACCRUAL_CYCLE_MISSING", "In-progress accrual cycle is not attached to the facility")
)
