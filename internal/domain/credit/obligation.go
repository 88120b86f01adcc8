package credit

import (
	"fmt"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ObligationType distinguishes what the borrower owes the amount for
type ObligationType string

const (
	ObligationTypeDisbursal ObligationType = "DISBURSAL"
	ObligationTypeInterest  ObligationType = "INTEREST"
)

// IsValid checks if the type is a valid ObligationType
func (t ObligationType) IsValid() bool {
	return t == ObligationTypeDisbursal || t == ObligationTypeInterest
}

// String returns the string representation of ObligationType
func (t ObligationType) String() string {
	return string(t)
}

// ObligationStatus is the calendar-driven lifecycle status of an obligation.
// It is never stored; it is always derived from the event history.
type ObligationStatus string

const (
	ObligationStatusNotYetDue ObligationStatus = "NOT_YET_DUE"
	ObligationStatusDue       ObligationStatus = "DUE"
	ObligationStatusOverdue   ObligationStatus = "OVERDUE"
	ObligationStatusDefaulted ObligationStatus = "DEFAULTED"
	ObligationStatusPaid      ObligationStatus = "PAID"
)

// String returns the string representation of ObligationStatus
func (s ObligationStatus) String() string {
	return string(s)
}

// IsTerminal returns true if no further calendar transition can occur
func (s ObligationStatus) IsTerminal() bool {
	return s == ObligationStatusDefaulted || s == ObligationStatusPaid
}

// ObligationAccountIDs snapshots the receivable accounts an obligation's
// outstanding balance moves between as its status progresses
type ObligationAccountIDs struct {
	NotYetDueAccountID uuid.UUID `json:"not_yet_due_account_id"`
	DueAccountID       uuid.UUID `json:"due_account_id"`
	OverdueAccountID   uuid.UUID `json:"overdue_account_id"`
	DefaultedAccountID uuid.UUID `json:"defaulted_account_id"`
}

// Obligation is a single amount owed (disbursal principal or accrued
// interest) with its own due/overdue/defaulted schedule. All state is a pure
// fold over the aggregate's event history.
type Obligation struct {
	shared.EventSourcedRoot
	FacilityID     uuid.UUID
	BeneficiaryID  uuid.UUID
	ObligationType ObligationType
	InitialAmount  decimal.Decimal
	EffectiveDate  time.Time
	DueDate        time.Time
	OverdueDate    *time.Time
	DefaultedDate  *time.Time
	AccountIDs     ObligationAccountIDs

	events []ObligationEvent
}

// NewObligationParams carries everything needed to initialize an obligation.
// InterestAccrualCycle produces these when a cycle posts; disbursals build
// them directly.
type NewObligationParams struct {
	ObligationID   uuid.UUID // generated when zero
	FacilityID     uuid.UUID
	BeneficiaryID  uuid.UUID
	ObligationType ObligationType
	Amount         decimal.Decimal
	EffectiveDate  time.Time
	DueDate        time.Time
	OverdueDate    *time.Time
	DefaultedDate  *time.Time
	AccountIDs     ObligationAccountIDs
}

// NewObligation creates a new obligation, validating its parameters before
// any event is produced
func NewObligation(p NewObligationParams) (*Obligation, error) {
	if p.FacilityID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_FACILITY", "Facility ID cannot be empty")
	}
	if p.BeneficiaryID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_BENEFICIARY", "Beneficiary ID cannot be empty")
	}
	if !p.ObligationType.IsValid() {
		return nil, shared.NewDomainError("INVALID_OBLIGATION_TYPE", "Obligation type is not valid")
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Obligation amount must be positive")
	}
	effective := DateOf(p.EffectiveDate)
	due := DateOf(p.DueDate)
	if due.Before(effective) {
		return nil, shared.NewDomainError("INVALID_DUE_DATE", "Due date cannot precede the effective date")
	}
	overdue := normalizeOptionalDate(p.OverdueDate)
	if overdue != nil && overdue.Before(due) {
		return nil, shared.NewDomainError("INVALID_OVERDUE_DATE", "Overdue date cannot precede the due date")
	}
	defaulted := normalizeOptionalDate(p.DefaultedDate)
	if defaulted != nil {
		floor := due
		if overdue != nil {
			floor = *overdue
		}
		if defaulted.Before(floor) {
			return nil, shared.NewDomainError("INVALID_DEFAULTED_DATE", "Defaulted date cannot precede the overdue/due date")
		}
	}

	root := shared.NewEventSourcedRoot()
	if p.ObligationID != uuid.Nil {
		root.ID = p.ObligationID
	}
	o := &Obligation{
		EventSourcedRoot: root,
		FacilityID:       p.FacilityID,
		BeneficiaryID:    p.BeneficiaryID,
		ObligationType:   p.ObligationType,
		InitialAmount:    p.Amount,
		EffectiveDate:    effective,
		DueDate:          due,
		OverdueDate:      overdue,
		DefaultedDate:    defaulted,
	}
	o.AccountIDs = p.AccountIDs
	o.record(NewObligationInitializedEvent(o))

	return o, nil
}

// ObligationFromHistory rebuilds an obligation by folding its persisted
// event history. A history that does not begin with an Initialized event is
// corrupted and aborts.
func ObligationFromHistory(events []ObligationEvent) *Obligation {
	if len(events) == 0 {
		panic("credit: obligation history is empty")
	}
	init, ok := events[0].(*ObligationInitializedEvent)
	if !ok {
		panic(fmt.Sprintf("credit: obligation history does not start with Initialized, got %s", events[0].EventType()))
	}
	o := &Obligation{
		EventSourcedRoot: shared.HydratedEventSourcedRoot(init.ObligationID, init.OccurredAt(), len(events)),
		FacilityID:       init.FacilityID,
		BeneficiaryID:    init.BeneficiaryID,
		ObligationType:   init.ObligationType,
		InitialAmount:    init.Amount,
		EffectiveDate:    DateOf(init.EffectiveDate),
		DueDate:          DateOf(init.DueDate),
		OverdueDate:      normalizeOptionalDate(init.OverdueDate),
		DefaultedDate:    normalizeOptionalDate(init.DefaultedDate),
		AccountIDs:       init.AccountIDs,
		events:           events,
	}
	return o
}

// Events returns the full event history, including staged events
func (o *Obligation) Events() []ObligationEvent {
	return o.events
}

func (o *Obligation) record(event ObligationEvent) {
	o.events = append(o.events, event)
	o.RecordEvent(event)
}

// Status derives the current status by scanning the history in reverse for
// the most recent terminal marker
func (o *Obligation) Status() ObligationStatus {
	for i := len(o.events) - 1; i >= 0; i-- {
		switch o.events[i].(type) {
		case *ObligationCompletedEvent:
			return ObligationStatusPaid
		case *ObligationDefaultedRecordedEvent:
			return ObligationStatusDefaulted
		case *ObligationOverdueRecordedEvent:
			return ObligationStatusOverdue
		case *ObligationDueRecordedEvent:
			return ObligationStatusDue
		}
	}
	return ObligationStatusNotYetDue
}

// Outstanding re-derives the outstanding balance: initial amount minus the
// sum of all payment allocations. It is monotonically non-increasing.
func (o *Obligation) Outstanding() decimal.Decimal {
	outstanding := o.InitialAmount
	for _, event := range o.events {
		if allocated, ok := event.(*ObligationPaymentAllocatedEvent); ok {
			outstanding = outstanding.Sub(allocated.Amount)
		}
	}
	return outstanding
}

// ExpectedStatus is the pure calendar function: the status the obligation
// should be in on the given day, ignoring what has been recorded
func (o *Obligation) ExpectedStatus(now time.Time) ObligationStatus {
	if o.Status() == ObligationStatusPaid {
		return ObligationStatusPaid
	}
	day := DateOf(now)
	if o.DefaultedDate != nil && !day.Before(*o.DefaultedDate) {
		return ObligationStatusDefaulted
	}
	if o.OverdueDate != nil && !day.Before(*o.OverdueDate) {
		return ObligationStatusOverdue
	}
	if !day.Before(o.DueDate) {
		return ObligationStatusDue
	}
	return ObligationStatusNotYetDue
}

// IsStatusUpToDate reports whether the recorded status matches the calendar.
// The scheduler uses this to find obligations needing a transition.
func (o *Obligation) IsStatusUpToDate(now time.Time) bool {
	return o.Status() == o.ExpectedStatus(now)
}

// NextTransitionDate returns the next calendar date on which Transition
// would do something, or nil for terminal statuses
func (o *Obligation) NextTransitionDate() *time.Time {
	switch o.Status() {
	case ObligationStatusNotYetDue:
		due := o.DueDate
		return &due
	case ObligationStatusDue:
		if o.OverdueDate != nil {
			return o.OverdueDate
		}
		return o.DefaultedDate
	case ObligationStatusOverdue:
		return o.DefaultedDate
	}
	return nil
}

// ObligationTransition is the payload of an executed calendar transition
type ObligationTransition struct {
	NewStatus    ObligationStatus
	Reallocation LedgerReallocation
}

// Transition advances the obligation's calendar state machine by at most one
// step for the given day. Every arm is idempotent: when no condition is met
// the call reports AlreadyApplied and records nothing.
func (o *Obligation) Transition(day time.Time) shared.Idempotent[ObligationTransition] {
	day = DateOf(day)

	switch status := o.Status(); status {
	case ObligationStatusNotYetDue:
		if day.Before(o.DueDate) {
			return shared.AlreadyApplied[ObligationTransition]()
		}
		reallocation := LedgerReallocation{
			TxID:            uuid.New(),
			Amount:          o.Outstanding(),
			SourceAccountID: o.AccountIDs.NotYetDueAccountID,
			DestAccountID:   o.AccountIDs.DueAccountID,
			EffectiveDate:   o.DueDate,
		}
		o.record(NewObligationDueRecordedEvent(o, reallocation.TxID, reallocation.Amount, reallocation.EffectiveDate))
		return shared.Executed(ObligationTransition{NewStatus: ObligationStatusDue, Reallocation: reallocation})

	case ObligationStatusDue:
		if o.OverdueDate != nil {
			if day.Before(*o.OverdueDate) {
				return shared.AlreadyApplied[ObligationTransition]()
			}
			reallocation := LedgerReallocation{
				TxID:            uuid.New(),
				Amount:          o.Outstanding(),
				SourceAccountID: o.AccountIDs.DueAccountID,
				DestAccountID:   o.AccountIDs.OverdueAccountID,
				EffectiveDate:   *o.OverdueDate,
			}
			o.record(NewObligationOverdueRecordedEvent(o, reallocation.TxID, reallocation.Amount, reallocation.EffectiveDate))
			return shared.Executed(ObligationTransition{NewStatus: ObligationStatusOverdue, Reallocation: reallocation})
		}
		// No overdue date configured: default directly from due
		return o.transitionToDefaulted(day, status)

	case ObligationStatusOverdue:
		return o.transitionToDefaulted(day, status)
	}

	return shared.AlreadyApplied[ObligationTransition]()
}

func (o *Obligation) transitionToDefaulted(day time.Time, from ObligationStatus) shared.Idempotent[ObligationTransition] {
	if o.DefaultedDate == nil || day.Before(*o.DefaultedDate) {
		return shared.AlreadyApplied[ObligationTransition]()
	}
	reallocation := LedgerReallocation{
		TxID:            uuid.New(),
		Amount:          o.Outstanding(),
		SourceAccountID: o.receivableAccountFor(from),
		DestAccountID:   o.AccountIDs.DefaultedAccountID,
		EffectiveDate:   *o.DefaultedDate,
	}
	o.record(NewObligationDefaultedRecordedEvent(o, reallocation.TxID, reallocation.Amount, reallocation.EffectiveDate))
	return shared.Executed(ObligationTransition{NewStatus: ObligationStatusDefaulted, Reallocation: reallocation})
}

// receivableAccountFor resolves the receivable account holding the
// outstanding balance while the obligation is in the given status
func (o *Obligation) receivableAccountFor(status ObligationStatus) uuid.UUID {
	switch status {
	case ObligationStatusNotYetDue:
		return o.AccountIDs.NotYetDueAccountID
	case ObligationStatusDue:
		return o.AccountIDs.DueAccountID
	case ObligationStatusOverdue:
		return o.AccountIDs.OverdueAccountID
	case ObligationStatusDefaulted:
		return o.AccountIDs.DefaultedAccountID
	}
	panic(fmt.Sprintf("credit: no receivable account for obligation status %s", status))
}

// PaymentAllocationDetails carries the payment-side context for allocating
// against one obligation
type PaymentAllocationDetails struct {
	PaymentID               uuid.UUID
	PaymentHoldingAccountID uuid.UUID
	EffectiveDate           time.Time
}

// PaymentAllocation is the value recorded per allocation of a payment to an
// obligation. It pins the receivable account matching the obligation's
// status before the allocation event.
type PaymentAllocation struct {
	ID                      uuid.UUID       `json:"id"`
	PaymentID               uuid.UUID       `json:"payment_id"`
	BeneficiaryID           uuid.UUID       `json:"beneficiary_id"`
	ObligationID            uuid.UUID       `json:"obligation_id"`
	AllocationIdx           int             `json:"allocation_idx"`
	ObligationType          ObligationType  `json:"obligation_type"`
	ReceivableAccountID     uuid.UUID       `json:"receivable_account_id"`
	PaymentHoldingAccountID uuid.UUID       `json:"payment_holding_account_id"`
	LedgerTxID              uuid.UUID       `json:"ledger_tx_id"`
	EffectiveDate           time.Time       `json:"effective_date"`
	Amount                  decimal.Decimal `json:"amount"`
}

// AllocatePayment applies min(outstanding, amount) of a payment to this
// obligation. Idempotent per payment id; a fully paid obligation ignores
// further allocations. Appends a Completed marker when outstanding reaches
// zero.
func (o *Obligation) AllocatePayment(amount decimal.Decimal, details PaymentAllocationDetails) shared.Idempotent[*PaymentAllocation] {
	priorAllocations := 0
	for _, event := range o.events {
		if allocated, ok := event.(*ObligationPaymentAllocatedEvent); ok {
			if allocated.PaymentID == details.PaymentID {
				return shared.Ignored[*PaymentAllocation]()
			}
			priorAllocations++
		}
	}

	outstanding := o.Outstanding()
	if outstanding.IsZero() {
		return shared.Ignored[*PaymentAllocation]()
	}

	allocated := decimal.Min(outstanding, amount)
	allocation := &PaymentAllocation{
		ID:                      uuid.New(),
		PaymentID:               details.PaymentID,
		BeneficiaryID:           o.BeneficiaryID,
		ObligationID:            o.ID,
		AllocationIdx:           priorAllocations + 1,
		ObligationType:          o.ObligationType,
		ReceivableAccountID:     o.receivableAccountFor(o.Status()),
		PaymentHoldingAccountID: details.PaymentHoldingAccountID,
		LedgerTxID:              uuid.New(),
		EffectiveDate:           DateOf(details.EffectiveDate),
		Amount:                  allocated,
	}
	o.record(NewObligationPaymentAllocatedEvent(o, allocation))

	if o.Outstanding().IsZero() {
		o.record(NewObligationCompletedEvent(o, allocation.EffectiveDate))
	}

	return shared.Executed(allocation)
}

// Summary builds the flat view used by the payment allocator and the
// obligation aggregator
func (o *Obligation) Summary() ObligationSummary {
	return ObligationSummary{
		ObligationID:   o.ID,
		ObligationType: o.ObligationType,
		Status:         o.Status(),
		InitialAmount:  o.InitialAmount,
		Outstanding:    o.Outstanding(),
		EffectiveDate:  o.EffectiveDate,
		RecordedAt:     o.CreatedAt,
	}
}

func normalizeOptionalDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DateOf(*t)
	return &d
}
