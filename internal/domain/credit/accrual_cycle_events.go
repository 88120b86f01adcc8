package credit

import (
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InterestAccrualCycleEvent is the closed set of events an
// InterestAccrualCycle can record
type InterestAccrualCycleEvent interface {
	shared.DomainEvent
	isInterestAccrualCycleEvent()
}

const accrualCycleAggregateType = "InterestAccrualCycle"

// InterestAccrualCycleInitializedEvent is the first event of every cycle
type InterestAccrualCycleInitializedEvent struct {
	shared.BaseDomainEvent
	CycleID    uuid.UUID                      `json:"cycle_id"`
	FacilityID uuid.UUID                      `json:"facility_id"`
	CycleIdx   int                            `json:"cycle_idx"`
	Period     Period                         `json:"period"`
	Terms      FacilityTerms                  `json:"terms"`
	AccountIDs InterestAccrualCycleAccountIDs `json:"account_ids"`
}

func (e *InterestAccrualCycleInitializedEvent) isInterestAccrualCycleEvent() {}

// EventType returns the event type name
func (e *InterestAccrualCycleInitializedEvent) EventType() string {
	return "InterestAccrualCycleInitialized"
}

// NewInterestAccrualCycleInitializedEvent creates a new InterestAccrualCycleInitializedEvent
func NewInterestAccrualCycleInitializedEvent(c *InterestAccrualCycle) *InterestAccrualCycleInitializedEvent {
	return &InterestAccrualCycleInitializedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InterestAccrualCycleInitialized", accrualCycleAggregateType, c.ID),
		CycleID:         c.ID,
		FacilityID:      c.FacilityID,
		CycleIdx:        c.CycleIdx,
		Period:          c.Period,
		Terms:           c.Terms,
		AccountIDs:      c.AccountIDs,
	}
}

// InterestAccruedEvent records one sub-period's simple interest
type InterestAccruedEvent struct {
	shared.BaseDomainEvent
	CycleID       uuid.UUID       `json:"cycle_id"`
	AccrualIdx    int             `json:"accrual_idx"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *InterestAccruedEvent) isInterestAccrualCycleEvent() {}

// EventType returns the event type name
func (e *InterestAccruedEvent) EventType() string {
	return "InterestAccrued"
}

// NewInterestAccruedEvent creates a new InterestAccruedEvent
func NewInterestAccruedEvent(c *InterestAccrualCycle, idx int, txID uuid.UUID, amount decimal.Decimal, effectiveDate time.Time) *InterestAccruedEvent {
	return &InterestAccruedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InterestAccrued", accrualCycleAggregateType, c.ID),
		CycleID:         c.ID,
		AccrualIdx:      idx,
		LedgerTxID:      txID,
		Amount:          amount,
		EffectiveDate:   effectiveDate,
	}
}

// InterestAccrualsPostedEvent records the cycle-level posting of all accrued
// interest. ObligationID is nil when the cycle total was zero.
type InterestAccrualsPostedEvent struct {
	shared.BaseDomainEvent
	CycleID       uuid.UUID       `json:"cycle_id"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	TxRef         string          `json:"tx_ref"`
	Total         decimal.Decimal `json:"total"`
	EffectiveDate time.Time       `json:"effective_date"`
	ObligationID  *uuid.UUID      `json:"obligation_id,omitempty"`
}

func (e *InterestAccrualsPostedEvent) isInterestAccrualCycleEvent() {}

// EventType returns the event type name
func (e *InterestAccrualsPostedEvent) EventType() string {
	return "InterestAccrualsPosted"
}

// NewInterestAccrualsPostedEvent creates a new InterestAccrualsPostedEvent
func NewInterestAccrualsPostedEvent(c *InterestAccrualCycle, data InterestAccrualCycleData, obligationID *uuid.UUID) *InterestAccrualsPostedEvent {
	return &InterestAccrualsPostedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("InterestAccrualsPosted", accrualCycleAggregateType, c.ID),
		CycleID:         c.ID,
		LedgerTxID:      data.TxID,
		TxRef:           data.TxRef,
		Total:           data.Total,
		EffectiveDate:   data.EffectiveDate,
		ObligationID:    obligationID,
	}
}

// AccruedInterestRevertedEvent backs out one accrual entry, re-stating its
// amount and effective date
type AccruedInterestRevertedEvent struct {
	shared.BaseDomainEvent
	CycleID       uuid.UUID       `json:"cycle_id"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	RevertedTxID  uuid.UUID       `json:"reverted_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *AccruedInterestRevertedEvent) isInterestAccrualCycleEvent() {}

// EventType returns the event type name
func (e *AccruedInterestRevertedEvent) EventType() string {
	return "AccruedInterestReverted"
}

// NewAccruedInterestRevertedEvent creates a new AccruedInterestRevertedEvent
func NewAccruedInterestRevertedEvent(c *InterestAccrualCycle, reversal InterestReversal) *AccruedInterestRevertedEvent {
	return &AccruedInterestRevertedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("AccruedInterestReverted", accrualCycleAggregateType, c.ID),
		CycleID:         c.ID,
		LedgerTxID:      reversal.TxID,
		RevertedTxID:    reversal.RevertedTxID,
		Amount:          reversal.Amount,
		EffectiveDate:   reversal.EffectiveDate,
	}
}

// PostedInterestAccrualsRevertedEvent backs out the cycle-level posting
type PostedInterestAccrualsRevertedEvent struct {
	shared.BaseDomainEvent
	CycleID       uuid.UUID       `json:"cycle_id"`
	LedgerTxID    uuid.UUID       `json:"ledger_tx_id"`
	RevertedTxID  uuid.UUID       `json:"reverted_tx_id"`
	Total         decimal.Decimal `json:"total"`
	EffectiveDate time.Time       `json:"effective_date"`
}

func (e *PostedInterestAccrualsRevertedEvent) isInterestAccrualCycleEvent() {}

// EventType returns the event type name
func (e *PostedInterestAccrualsRevertedEvent) EventType() string {
	return "PostedInterestAccrualsReverted"
}

// NewPostedInterestAccrualsRevertedEvent creates a new PostedInterestAccrualsRevertedEvent
func NewPostedInterestAccrualsRevertedEvent(c *InterestAccrualCycle, reversal InterestReversal) *PostedInterestAccrualsRevertedEvent {
	return &PostedInterestAccrualsRevertedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("PostedInterestAccrualsReverted", accrualCycleAggregateType, c.ID),
		CycleID:         c.ID,
		LedgerTxID:      reversal.TxID,
		RevertedTxID:    reversal.RevertedTxID,
		Total:           reversal.Amount,
		EffectiveDate:   reversal.EffectiveDate,
	}
}
