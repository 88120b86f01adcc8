package credit

import (
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObligationEvent is the closed set of events an Obligation can record.
// Obligation state is always a fold over an ordered slice of these.
type ObligationEvent interface {
	shared.DomainEvent
	isObligationEvent()
}

const obligationAggregateType = "Obligation"

// ObligationInitializedEvent is the first event of every obligation
type ObligationInitializedEvent struct {
	shared.BaseDomainEvent
	ObligationID   uuid.UUID            `json:"obligation_id"`
	FacilityID     uuid.UUID            `json:"facility_id"`
	BeneficiaryID  uuid.UUID            `json:"beneficiary_id"`
	ObligationType ObligationType       `json:"obligation_type"`
	Amount         decimal.Decimal      `json:"amount"`
	EffectiveDate  time.Time            `json:"effective_date"`
	DueDate        time.Time            `json:"due_date"`
	OverdueDate    *time.Time           `json:"overdue_date,omitempty"`
	DefaultedDate  *time.Time           `json:"defaulted_date,omitempty"`
	AccountIDs     ObligationAccountIDs `json:"account_ids"`
}

func (e *ObligationInitializedEvent) isObligationEvent() {}

// EventType returns the event type name
func (e *ObligationInitializedEvent) EventType() string {
	return "ObligationInitialized"
}

// NewObligationInitializedEvent creates a new ObligationInitializedEvent
func NewObligationInitializedEvent(o *Obligation) *ObligationInitializedEvent {
	return &ObligationInitializedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ObligationInitialized", obligationAggregateType, o.ID),
		ObligationID:    o.ID,
		FacilityID:      o.FacilityID,
		BeneficiaryID:   o.BeneficiaryID,
		ObligationType:  o.ObligationType,
		Amount:          o.InitialAmount,
		EffectiveDate:   o.EffectiveDate,
		DueDate:         o.DueDate,
		OverdueDate:     o.OverdueDate,
		DefaultedDate:   o.DefaultedDate,
		AccountIDs:      o.AccountIDs,
	}
}

// ObligationDueRecordedEvent marks the not-yet-due to due transition
type ObligationDueRecordedEvent struct {
	shared.BaseDomainEvent
	ObligationID  uuid.UUID       `json:"obligation_id"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *ObligationDueRecordedEvent) isObligationEvent() {}

// EventType returns the event type name
func (e *ObligationDueRecordedEvent) EventType() string {
	return "ObligationDueRecorded"
}

// NewObligationDueRecordedEvent creates a new ObligationDueRecordedEvent
func NewObligationDueRecordedEvent(o *Obligation, txID uuid.UUID, amount decimal.Decimal, effectiveDate time.Time) *ObligationDueRecordedEvent {
	return &ObligationDueRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ObligationDueRecorded", obligationAggregateType, o.ID),
		ObligationID:    o.ID,
		LedgerTxID:      txID,
		Amount:          amount,
		EffectiveDate:   effectiveDate,
	}
}

// ObligationOverdueRecordedEvent marks the due to overdue transition
type ObligationOverdueRecordedEvent struct {
	shared.BaseDomainEvent
	ObligationID  uuid.UUID       `json:"obligation_id"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *ObligationOverdueRecordedEvent) isObligationEvent() {}

// EventType returns the event type name
func (e *ObligationOverdueRecordedEvent) EventType() string {
	return "ObligationOverdueRecorded"
}

// NewObligationOverdueRecordedEvent creates a new ObligationOverdueRecordedEvent
func NewObligationOverdueRecordedEvent(o *Obligation, txID uuid.UUID, amount decimal.Decimal, effectiveDate time.Time) *ObligationOverdueRecordedEvent {
	return &ObligationOverdueRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ObligationOverdueRecorded", obligationAggregateType, o.ID),
		ObligationID:    o.ID,
		LedgerTxID:      txID,
		Amount:          amount,
		EffectiveDate:   effectiveDate,
	}
}

// ObligationDefaultedRecordedEvent marks the transition into default
type ObligationDefaultedRecordedEvent struct {
	shared.BaseDomainEvent
	ObligationID  uuid.UUID       `json:"obligation_id"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *ObligationDefaultedRecordedEvent) isObligationEvent() {}

// EventType returns the event type name
func (e *ObligationDefaultedRecordedEvent) EventType() string {
	return "ObligationDefaultedRecorded"
}

// NewObligationDefaultedRecordedEvent creates a new ObligationDefaultedRecordedEvent
func NewObligationDefaultedRecordedEvent(o *Obligation, txID uuid.UUID, amount decimal.Decimal, effectiveDate time.Time) *ObligationDefaultedRecordedEvent {
	return &ObligationDefaultedRecordedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ObligationDefaultedRecorded", obligationAggregateType, o.ID),
		ObligationID:    o.ID,
		LedgerTxID:      txID,
		Amount:          amount,
		EffectiveDate:   effectiveDate,
	}
}

// ObligationPaymentAllocatedEvent records one payment allocation against the
// obligation. AllocationIdx is the 1-based sequence number of allocations.
type ObligationPaymentAllocatedEvent struct {
	shared.BaseDomainEvent
	ObligationID  uuid.UUID       `json:"obligation_id"`
	PaymentID     uuid.UUID       `json:"payment_id"`
	AllocationIdx int             `json:"allocation_idx"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *ObligationPaymentAllocatedEvent) isObligationEvent() {}

// EventType returns the event type name
func (e *ObligationPaymentAllocatedEvent) EventType() string {
	return "ObligationPaymentAllocated"
}

// NewObligationPaymentAllocatedEvent creates a new ObligationPaymentAllocatedEvent
func NewObligationPaymentAllocatedEvent(o *Obligation, allocation *PaymentAllocation) *ObligationPaymentAllocatedEvent {
	return &ObligationPaymentAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ObligationPaymentAllocated", obligationAggregateType, o.ID),
		ObligationID:    o.ID,
		PaymentID:       allocation.PaymentID,
		AllocationIdx:   allocation.AllocationIdx,
		LedgerTxID:      allocation.LedgerTxID,
		Amount:          allocation.Amount,
		EffectiveDate:   allocation.EffectiveDate,
	}
}

// ObligationCompletedEvent is appended exactly once, when outstanding hits zero
type ObligationCompletedEvent struct {
	shared.BaseDomainEvent
	ObligationID  uuid.UUID `json:"obligation_id"`
	EffectiveDate time.Time `json:"effective_date"`
}

func (e *ObligationCompletedEvent) isObligationEvent() {}

// EventType returns the event type name
func (e *ObligationCompletedEvent) EventType() string {
	return "ObligationCompleted"
}

// NewObligationCompletedEvent creates a new ObligationCompletedEvent
func NewObligationCompletedEvent(o *Obligation, effectiveDate time.Time) *ObligationCompletedEvent {
	return &ObligationCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("ObligationCompleted", obligationAggregateType, o.ID),
		ObligationID:    o.ID,
		EffectiveDate:   effectiveDate,
	}
}
