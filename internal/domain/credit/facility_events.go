package credit

import (
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditFacilityEvent is the closed set of events a CreditFacility can record
type CreditFacilityEvent interface {
	shared.DomainEvent
	isCreditFacilityEvent()
}

const facilityAggregateType = "CreditFacility"

// CreditFacilityInitializedEvent is the first event of every facility
type CreditFacilityInitializedEvent struct {
	shared.BaseDomainEvent
	FacilityID        uuid.UUID          `json:"facility_id"`
	CustomerID        uuid.UUID          `json:"customer_id"`
	CollateralID      uuid.UUID          `json:"collateral_id"`
	ApprovalProcessID uuid.UUID          `json:"approval_process_id"`
	Amount            decimal.Decimal    `json:"amount"`
	Terms             FacilityTerms      `json:"terms"`
	AccountIDs        FacilityAccountIDs `json:"account_ids"`
}

func (e *CreditFacilityInitializedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *CreditFacilityInitializedEvent) EventType() string {
	return "CreditFacilityInitialized"
}

// NewCreditFacilityInitializedEvent creates a new CreditFacilityInitializedEvent
func NewCreditFacilityInitializedEvent(f *CreditFacility) *CreditFacilityInitializedEvent {
	return &CreditFacilityInitializedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("CreditFacilityInitialized", facilityAggregateType, f.ID),
		FacilityID:        f.ID,
		CustomerID:        f.CustomerID,
		CollateralID:      f.CollateralID,
		ApprovalProcessID: f.ApprovalProcessID,
		Amount:            f.Amount,
		Terms:             f.Terms,
		AccountIDs:        f.AccountIDs,
	}
}

// ApprovalProcessConcludedEvent records the outcome of the external approval
// process, exactly once per process
type ApprovalProcessConcludedEvent struct {
	shared.BaseDomainEvent
	FacilityID        uuid.UUID `json:"facility_id"`
	ApprovalProcessID uuid.UUID `json:"approval_process_id"`
	Approved          bool      `json:"approved"`
}

func (e *ApprovalProcessConcludedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *ApprovalProcessConcludedEvent) EventType() string {
	return "ApprovalProcessConcluded"
}

// NewApprovalProcessConcludedEvent creates a new ApprovalProcessConcludedEvent
func NewApprovalProcessConcludedEvent(f *CreditFacility, approved bool) *ApprovalProcessConcludedEvent {
	return &ApprovalProcessConcludedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent("ApprovalProcessConcluded", facilityAggregateType, f.ID),
		FacilityID:        f.ID,
		ApprovalProcessID: f.ApprovalProcessID,
		Approved:          approved,
	}
}

// CreditFacilityActivatedEvent records activation; activated_at and
// matures_at are set exactly once, from this event and the terms
type CreditFacilityActivatedEvent struct {
	shared.BaseDomainEvent
	FacilityID  uuid.UUID `json:"facility_id"`
	LedgerTxID  uuid.UUID `json:"ledger_tx_id"`
	ActivatedAt time.Time `json:"activated_at"`
	MaturesAt   time.Time `json:"matures_at"`
}

func (e *CreditFacilityActivatedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *CreditFacilityActivatedEvent) EventType() string {
	return "CreditFacilityActivated"
}

// NewCreditFacilityActivatedEvent creates a new CreditFacilityActivatedEvent
func NewCreditFacilityActivatedEvent(f *CreditFacility, txID uuid.UUID, activatedAt, maturesAt time.Time) *CreditFacilityActivatedEvent {
	return &CreditFacilityActivatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditFacilityActivated", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		LedgerTxID:      txID,
		ActivatedAt:     activatedAt,
		MaturesAt:       maturesAt,
	}
}

// InterestAccrualCycleStartedEvent records that the facility opened a new
// accrual cycle with the given monotonic index and period
type InterestAccrualCycleStartedEvent struct {
	shared.BaseDomainEvent
	FacilityID uuid.UUID `json:"facility_id"`
	CycleID    uuid.UUID `json:"cycle_id"`
	CycleIdx   int       `json:"cycle_idx"`
	Period     Period    `json:"period"`
}

func (e *InterestAccrualCycleStartedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *InterestAccrualCycleStartedEvent) EventType() string {
	return "InterestAccrualCycleStarted"
}

// NewInterestAccrualCycleStartedEvent creates a new InterestAccrualCycleStartedEvent
func NewInterestAccrualCycleStartedEvent(f *CreditFacility, cycleID uuid.UUID, cycleIdx int, period Period) *InterestAccrualCycleStartedEvent {
	return &InterestAccrualCycleStartedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InterestAccrualCycleStarted", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		CycleID:         cycleID,
		CycleIdx:        cycleIdx,
		Period:          period,
	}
}

// InterestAccrualCycleConcludedEvent records that a cycle posted its accrued
// interest. ObligationID is nil when the cycle total was zero.
type InterestAccrualCycleConcludedEvent struct {
	shared.BaseDomainEvent
	FacilityID   uuid.UUID  `json:"facility_id"`
	CycleID      uuid.UUID  `json:"cycle_id"`
	CycleIdx     int        `json:"cycle_idx"`
	LedgerTxID   uuid.UUID  `json:"ledger_tx_id"`
	ObligationID *uuid.UUID `json:"obligation_id,omitempty"`
}

func (e *InterestAccrualCycleConcludedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *InterestAccrualCycleConcludedEvent) EventType() string {
	return "InterestAccrualCycleConcluded"
}

// NewInterestAccrualCycleConcludedEvent creates a new InterestAccrualCycleConcludedEvent
func NewInterestAccrualCycleConcludedEvent(f *CreditFacility, cycle *InterestAccrualCycle, txID uuid.UUID, obligationID *uuid.UUID) *InterestAccrualCycleConcludedEvent {
	return &InterestAccrualCycleConcludedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InterestAccrualCycleConcluded", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		CycleID:         cycle.ID,
		CycleIdx:        cycle.CycleIdx,
		LedgerTxID:      txID,
		ObligationID:    obligationID,
	}
}

// CollateralizationRatioChangedEvent persists a change of the numeric CVL
type CollateralizationRatioChangedEvent struct {
	shared.BaseDomainEvent
	FacilityID uuid.UUID       `json:"facility_id"`
	CVL        decimal.Decimal `json:"cvl"`
}

func (e *CollateralizationRatioChangedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *CollateralizationRatioChangedEvent) EventType() string {
	return "CollateralizationRatioChanged"
}

// NewCollateralizationRatioChangedEvent creates a new CollateralizationRatioChangedEvent
func NewCollateralizationRatioChangedEvent(f *CreditFacility, cvl decimal.Decimal) *CollateralizationRatioChangedEvent {
	return &CollateralizationRatioChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CollateralizationRatioChanged", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		CVL:             cvl,
	}
}

// CollateralizationStateChangedEvent persists a change of the discrete
// collateralization state
type CollateralizationStateChangedEvent struct {
	shared.BaseDomainEvent
	FacilityID uuid.UUID              `json:"facility_id"`
	State      CollateralizationState `json:"state"`
	CVL        decimal.Decimal        `json:"cvl"`
}

func (e *CollateralizationStateChangedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *CollateralizationStateChangedEvent) EventType() string {
	return "CollateralizationStateChanged"
}

// NewCollateralizationStateChangedEvent creates a new CollateralizationStateChangedEvent
func NewCollateralizationStateChangedEvent(f *CreditFacility, state CollateralizationState, cvl decimal.Decimal) *CollateralizationStateChangedEvent {
	return &CollateralizationStateChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CollateralizationStateChanged", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		State:           state,
		CVL:             cvl,
	}
}

// CreditFacilityMaturedEvent records that the facility passed maturity
type CreditFacilityMaturedEvent struct {
	shared.BaseDomainEvent
	FacilityID uuid.UUID `json:"facility_id"`
	MaturedAt  time.Time `json:"matured_at"`
}

func (e *CreditFacilityMaturedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *CreditFacilityMaturedEvent) EventType() string {
	return "CreditFacilityMatured"
}

// NewCreditFacilityMaturedEvent creates a new CreditFacilityMaturedEvent
func NewCreditFacilityMaturedEvent(f *CreditFacility, maturedAt time.Time) *CreditFacilityMaturedEvent {
	return &CreditFacilityMaturedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditFacilityMatured", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		MaturedAt:       maturedAt,
	}
}

// CreditFacilityCompletedEvent records the terminal completion of the
// facility, at most once
type CreditFacilityCompletedEvent struct {
	shared.BaseDomainEvent
	FacilityID  uuid.UUID `json:"facility_id"`
	LedgerTxID  uuid.UUID `json:"ledger_tx_id"`
	CompletedAt time.Time `json:"completed_at"`
}

func (e *CreditFacilityCompletedEvent) isCreditFacilityEvent() {}

// EventType returns the event type name
func (e *CreditFacilityCompletedEvent) EventType() string {
	return "CreditFacilityCompleted"
}

// NewCreditFacilityCompletedEvent creates a new CreditFacilityCompletedEvent
func NewCreditFacilityCompletedEvent(f *CreditFacility, txID uuid.UUID, completedAt time.Time) *CreditFacilityCompletedEvent {
	return &CreditFacilityCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("CreditFacilityCompleted", facilityAggregateType, f.ID),
		FacilityID:      f.ID,
		LedgerTxID:      txID,
		CompletedAt:     completedAt,
	}
}
