package credit

import (
	"fmt"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FacilityStatus is the derived lifecycle status of a credit facility
type FacilityStatus string

const (
	FacilityStatusPendingCollateralization FacilityStatus = "PENDING_COLLATERALIZATION"
	FacilityStatusPendingApproval          FacilityStatus = "PENDING_APPROVAL"
	FacilityStatusActive                   FacilityStatus = "ACTIVE"
	FacilityStatusMatured                  FacilityStatus = "MATURED"
	FacilityStatusClosed                   FacilityStatus = "CLOSED"
)

// String returns the string representation of FacilityStatus
func (s FacilityStatus) String() string {
	return string(s)
}

// FacilityAccountIDs snapshots every ledger account the facility and its
// obligations post against
type FacilityAccountIDs struct {
	FacilityAccountID           uuid.UUID            `json:"facility_account_id"`
	CollateralAccountID         uuid.UUID            `json:"collateral_account_id"`
	FeeIncomeAccountID          uuid.UUID            `json:"fee_income_account_id"`
	InterestIncomeAccountID     uuid.UUID            `json:"interest_income_account_id"`
	PaymentHoldingAccountID     uuid.UUID            `json:"payment_holding_account_id"`
	DisbursedReceivableAccounts ObligationAccountIDs `json:"disbursed_receivable_accounts"`
	InterestReceivableAccounts  ObligationAccountIDs `json:"interest_receivable_accounts"`
}

// CreditFacility is the aggregate root orchestrating approval, activation,
// collateralization tracking and interest accrual cycles. It owns its
// accrual cycles as child aggregates: newly started cycles are staged in the
// arena until persisted, previously persisted ones are attached after
// hydration.
type CreditFacility struct {
	shared.EventSourcedRoot
	CustomerID        uuid.UUID
	CollateralID      uuid.UUID
	ApprovalProcessID uuid.UUID
	Amount            decimal.Decimal
	Terms             FacilityTerms
	AccountIDs        FacilityAccountIDs
	ActivatedAt       *time.Time
	MaturesAt         *time.Time

	events []CreditFacilityEvent

	cycles       map[uuid.UUID]*InterestAccrualCycle
	stagedCycles []uuid.UUID
}

// NewCreditFacilityParams carries everything needed to initialize a facility
type NewCreditFacilityParams struct {
	CustomerID        uuid.UUID
	CollateralID      uuid.UUID
	ApprovalProcessID uuid.UUID
	Amount            decimal.Decimal
	Terms             FacilityTerms
	AccountIDs        FacilityAccountIDs
}

// NewCreditFacility creates a new credit facility
func NewCreditFacility(p NewCreditFacilityParams) (*CreditFacility, error) {
	if p.CustomerID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_CUSTOMER", "Customer ID cannot be empty")
	}
	if p.CollateralID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_COLLATERAL", "Collateral ID cannot be empty")
	}
	if p.ApprovalProcessID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_APPROVAL_PROCESS", "Approval process ID cannot be empty")
	}
	if p.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Facility amount must be positive")
	}
	if err := p.Terms.Validate(); err != nil {
		return nil, err
	}

	f := &CreditFacility{
		EventSourcedRoot:  shared.NewEventSourcedRoot(),
		CustomerID:        p.CustomerID,
		CollateralID:      p.CollateralID,
		ApprovalProcessID: p.ApprovalProcessID,
		Amount:            p.Amount,
		Terms:             p.Terms,
		AccountIDs:        p.AccountIDs,
		cycles:            make(map[uuid.UUID]*InterestAccrualCycle),
	}
	f.record(NewCreditFacilityInitializedEvent(f))

	return f, nil
}

// CreditFacilityFromHistory rebuilds a facility by folding its persisted
// event history. Child cycles are attached separately via AttachCycle.
func CreditFacilityFromHistory(events []CreditFacilityEvent) *CreditFacility {
	if len(events) == 0 {
		panic("credit: credit facility history is empty")
	}
	init, ok := events[0].(*CreditFacilityInitializedEvent)
	if !ok {
		panic(fmt.Sprintf("credit: facility history does not start with Initialized, got %s", events[0].EventType()))
	}
	f := &CreditFacility{
		EventSourcedRoot:  shared.HydratedEventSourcedRoot(init.FacilityID, init.OccurredAt(), len(events)),
		CustomerID:        init.CustomerID,
		CollateralID:      init.CollateralID,
		ApprovalProcessID: init.ApprovalProcessID,
		Amount:            init.Amount,
		Terms:             init.Terms,
		AccountIDs:        init.AccountIDs,
		events:            events,
		cycles:            make(map[uuid.UUID]*InterestAccrualCycle),
	}
	for _, event := range events {
		if activated, ok := event.(*CreditFacilityActivatedEvent); ok {
			activatedAt := activated.ActivatedAt
			maturesAt := activated.MaturesAt
			f.ActivatedAt = &activatedAt
			f.MaturesAt = &maturesAt
		}
	}
	return f
}

// Events returns the full event history, including staged events
func (f *CreditFacility) Events() []CreditFacilityEvent {
	return f.events
}

func (f *CreditFacility) record(event CreditFacilityEvent) {
	f.events = append(f.events, event)
	f.RecordEvent(event)
}

// IsActivated reports whether an Activated event has been recorded
func (f *CreditFacility) IsActivated() bool {
	return f.ActivatedAt != nil
}

// Status derives the facility status from the event history, in priority
// order: completed, matured, activated, fully collateralized, pending
// collateralization
func (f *CreditFacility) Status() FacilityStatus {
	for i := len(f.events) - 1; i >= 0; i-- {
		switch f.events[i].(type) {
		case *CreditFacilityCompletedEvent:
			return FacilityStatusClosed
		case *CreditFacilityMaturedEvent:
			return FacilityStatusMatured
		}
	}
	if f.IsActivated() {
		return FacilityStatusActive
	}
	if f.CollateralizationState() == CollateralizationFullyCollateralized {
		return FacilityStatusPendingApproval
	}
	return FacilityStatusPendingCollateralization
}

// CollateralizationState derives the current discrete collateralization
// state from the event history
func (f *CreditFacility) CollateralizationState() CollateralizationState {
	for i := len(f.events) - 1; i >= 0; i-- {
		if changed, ok := f.events[i].(*CollateralizationStateChangedEvent); ok {
			return changed.State
		}
	}
	return CollateralizationNoCollateral
}

func (f *CreditFacility) lastRecordedCVL() decimal.Decimal {
	for i := len(f.events) - 1; i >= 0; i-- {
		if changed, ok := f.events[i].(*CollateralizationRatioChangedEvent); ok {
			return changed.CVL
		}
	}
	return decimal.Zero
}

func (f *CreditFacility) approvalConclusion() *ApprovalProcessConcludedEvent {
	for _, event := range f.events {
		if concluded, ok := event.(*ApprovalProcessConcludedEvent); ok {
			return concluded
		}
	}
	return nil
}

// ConcludeApprovalProcess records the outcome of the external approval
// process. Idempotent per process: repeat conclusions are ignored.
func (f *CreditFacility) ConcludeApprovalProcess(approved bool) shared.Idempotent[bool] {
	if f.approvalConclusion() != nil {
		return shared.Ignored[bool]()
	}
	f.record(NewApprovalProcessConcludedEvent(f, approved))
	return shared.Executed(approved)
}

// ActivationResult is the payload of an executed activation: the ledger
// instructions plus the first accrual sub-period of the first cycle
type ActivationResult struct {
	Activation         FacilityActivation
	FirstAccrualPeriod Period
}

// Activate transitions the facility into its active phase. Ignored when
// already activated. Rejects activation while approval is pending or denied,
// or while collateral coverage is below the initial CVL threshold. On
// success the first interest accrual cycle is started unconditionally.
func (f *CreditFacility) Activate(activatedAt time.Time, price valueobject.Money, collateral valueobject.Quantity) (shared.Idempotent[*ActivationResult], error) {
	if f.IsActivated() {
		return shared.Ignored[*ActivationResult](), nil
	}
	conclusion := f.approvalConclusion()
	if conclusion == nil {
		return shared.Ignored[*ActivationResult](), ErrApprovalInProgress
	}
	if !conclusion.Approved {
		return shared.Ignored[*ActivationResult](), ErrApprovalDenied
	}
	if !f.Terms.IsActivationAllowed(collateral, price, f.Amount) {
		return shared.Ignored[*ActivationResult](), ErrBelowMarginLimit
	}

	activated := DateOf(activatedAt)
	maturesAt := f.Terms.Duration.MaturityDate(activated)
	f.ActivatedAt = &activated
	f.MaturesAt = &maturesAt

	activation := FacilityActivation{
		TxID:                uuid.New(),
		TxRef:               fmt.Sprintf("%s-activate", f.ID),
		FacilityAccountID:   f.AccountIDs.FacilityAccountID,
		FeeIncomeAccountID:  f.AccountIDs.FeeIncomeAccountID,
		DisbursedReceivable: f.AccountIDs.DisbursedReceivableAccounts.NotYetDueAccountID,
		FacilityAmount:      f.Amount,
		StructuringFee:      f.Terms.OneTimeFee(f.Amount),
		EffectiveDate:       activated,
	}
	f.record(NewCreditFacilityActivatedEvent(f, activation.TxID, activated, maturesAt))

	// The first accrual cycle always fits inside a fresh facility; failing
	// to start it means the terms or history are corrupted.
	started, err := f.StartInterestAccrualCycle(activatedAt)
	if err != nil {
		panic(fmt.Sprintf("credit: starting first accrual cycle for facility %s: %v", f.ID, err))
	}
	if !started.WasExecuted() {
		panic(fmt.Sprintf("credit: first accrual cycle for facility %s not started: %s", f.ID, started.Outcome))
	}

	return shared.Executed(&ActivationResult{
		Activation:         activation,
		FirstAccrualPeriod: started.Value.FirstAccrualPeriod,
	}), nil
}

// CheckDisbursalDate reports whether a disbursal initiated at the given time
// is allowed: strictly before facility maturity
func (f *CreditFacility) CheckDisbursalDate(initiatedAt time.Time) bool {
	if !f.IsActivated() {
		return false
	}
	return DateOf(initiatedAt).Before(*f.MaturesAt)
}

// InitiateDisbursal builds the obligation parameters for disbursing part of
// the facility amount. The disbursal obligation falls due at maturity, with
// grace periods from the terms.
func (f *CreditFacility) InitiateDisbursal(amount decimal.Decimal, initiatedAt time.Time) (*NewObligationParams, error) {
	if !f.IsActivated() {
		return nil, ErrNotActivated
	}
	if !f.CheckDisbursalDate(initiatedAt) {
		return nil, shared.NewDomainError("DISBURSAL_PAST_MATURITY", "Disbursals must be initiated before facility maturity")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Disbursal amount must be positive")
	}

	dueDate := *f.MaturesAt
	var overdueDate, defaultedDate *time.Time
	if f.Terms.OverdueDuration != nil {
		d := f.Terms.OverdueDuration.EndDate(dueDate)
		overdueDate = &d
	}
	if f.Terms.LiquidationDuration != nil {
		d := f.Terms.LiquidationDuration.EndDate(dueDate)
		defaultedDate = &d
	}
	return &NewObligationParams{
		ObligationID:   uuid.New(),
		FacilityID:     f.ID,
		BeneficiaryID:  f.CustomerID,
		ObligationType: ObligationTypeDisbursal,
		Amount:         amount,
		EffectiveDate:  DateOf(initiatedAt),
		DueDate:        dueDate,
		OverdueDate:    overdueDate,
		DefaultedDate:  defaultedDate,
		AccountIDs:     f.AccountIDs.DisbursedReceivableAccounts,
	}, nil
}

// AttachCycle places a hydrated child cycle into the facility's arena
func (f *CreditFacility) AttachCycle(cycle *InterestAccrualCycle) {
	f.cycles[cycle.ID] = cycle
}

// StagedCycles returns newly created child cycles awaiting first persistence
func (f *CreditFacility) StagedCycles() []*InterestAccrualCycle {
	staged := make([]*InterestAccrualCycle, 0, len(f.stagedCycles))
	for _, id := range f.stagedCycles {
		staged = append(staged, f.cycles[id])
	}
	return staged
}

// ClearStagedCycles marks all staged cycles as persisted
func (f *CreditFacility) ClearStagedCycles() {
	f.stagedCycles = nil
}

// inProgressCycleID returns the id of the last started cycle that has not
// been concluded, or nil
func (f *CreditFacility) inProgressCycleID() *uuid.UUID {
	concluded := make(map[uuid.UUID]struct{})
	for i := len(f.events) - 1; i >= 0; i-- {
		switch e := f.events[i].(type) {
		case *InterestAccrualCycleConcludedEvent:
			concluded[e.CycleID] = struct{}{}
		case *InterestAccrualCycleStartedEvent:
			if _, done := concluded[e.CycleID]; !done {
				id := e.CycleID
				return &id
			}
			return nil
		}
	}
	return nil
}

// InProgressCycle returns the attached in-progress child cycle, nil when no
// cycle is in progress, or an error when the cycle exists but has not been
// attached
func (f *CreditFacility) InProgressCycle() (*InterestAccrualCycle, error) {
	id := f.inProgressCycleID()
	if id == nil {
		return nil, nil
	}
	cycle, ok := f.cycles[*id]
	if !ok {
		return nil, ErrObligationAccrualCycleMissing
	}
	return cycle, nil
}

func (f *CreditFacility) lastStartedCycle() *InterestAccrualCycleStartedEvent {
	for i := len(f.events) - 1; i >= 0; i-- {
		if started, ok := f.events[i].(*InterestAccrualCycleStartedEvent); ok {
			return started
		}
	}
	return nil
}

// AccrualCycleStarted is the payload of an executed cycle start
type AccrualCycleStarted struct {
	Cycle              *InterestAccrualCycle
	FirstAccrualPeriod Period
}

// StartInterestAccrualCycle opens the next accrual cycle. The next cycle
// period follows the last started cycle's period (or starts at activation),
// truncated to facility maturity; AlreadyApplied once no further period
// exists. Rejects a start while the in-progress cycle is not completed, or
// when the computed period would start after now.
func (f *CreditFacility) StartInterestAccrualCycle(now time.Time) (shared.Idempotent[*AccrualCycleStarted], error) {
	if !f.IsActivated() {
		return shared.Ignored[*AccrualCycleStarted](), ErrNotActivated
	}

	inProgress, err := f.InProgressCycle()
	if err != nil {
		return shared.Ignored[*AccrualCycleStarted](), err
	}
	if inProgress != nil && !inProgress.IsCompleted() {
		return shared.Ignored[*AccrualCycleStarted](), ErrCycleInProgress
	}

	var next Period
	lastStarted := f.lastStartedCycle()
	if lastStarted == nil {
		next = f.Terms.AccrualCycleInterval.PeriodStartingAt(*f.ActivatedAt)
	} else {
		next = lastStarted.Period.Next(f.Terms.AccrualCycleInterval)
	}
	period := next.Truncate(*f.MaturesAt)
	if period == nil {
		// Facility fully amortized on schedule
		return shared.AlreadyApplied[*AccrualCycleStarted](), nil
	}
	if period.Start.After(DateOf(now)) {
		return shared.Ignored[*AccrualCycleStarted](), ErrCycleFutureStartDate
	}

	cycleIdx := 1
	if lastStarted != nil {
		cycleIdx = lastStarted.CycleIdx + 1
	}
	cycle, err := NewInterestAccrualCycle(NewInterestAccrualCycleParams{
		FacilityID: f.ID,
		CycleIdx:   cycleIdx,
		Period:     *period,
		Terms:      f.Terms,
		AccountIDs: InterestAccrualCycleAccountIDs{
			InterestIncomeAccountID:    f.AccountIDs.InterestIncomeAccountID,
			InterestReceivableAccounts: f.AccountIDs.InterestReceivableAccounts,
		},
	})
	if err != nil {
		return shared.Ignored[*AccrualCycleStarted](), err
	}

	f.record(NewInterestAccrualCycleStartedEvent(f, cycle.ID, cycle.CycleIdx, cycle.Period))
	f.cycles[cycle.ID] = cycle
	f.stagedCycles = append(f.stagedCycles, cycle.ID)

	first := cycle.NextAccrualPeriod()
	if first == nil {
		panic(fmt.Sprintf("credit: new accrual cycle %s has no accrual period", cycle.ID))
	}
	return shared.Executed(&AccrualCycleStarted{Cycle: cycle, FirstAccrualPeriod: *first}), nil
}

// RecordInterestAccrualCycle concludes the in-progress cycle: the child
// posts its accrued totals (idempotent) and the facility records the
// conclusion, referencing the interest obligation when one was created
func (f *CreditFacility) RecordInterestAccrualCycle() (shared.Idempotent[*InterestPostingResult], error) {
	cycle, err := f.InProgressCycle()
	if err != nil {
		return shared.Ignored[*InterestPostingResult](), err
	}
	if cycle == nil {
		return shared.AlreadyApplied[*InterestPostingResult](), nil
	}

	data := cycle.AccrualCycleData()
	if data == nil {
		return shared.Ignored[*InterestPostingResult](), ErrAccrualNotCompletedYet
	}

	posted := cycle.RecordAccrualCycle(f.CustomerID, *data)
	if !posted.WasExecuted() {
		return shared.Ignored[*InterestPostingResult](), nil
	}

	var obligationID *uuid.UUID
	if posted.Value.NewObligation != nil {
		obligationID = &posted.Value.NewObligation.ObligationID
	}
	f.record(NewInterestAccrualCycleConcludedEvent(f, cycle, data.TxID, obligationID))

	return shared.Executed(posted.Value), nil
}

// UpdateCollateralization recomputes the CVL and the discrete
// collateralization state, persisting each only on change. Pre-activation
// phases compare against the full facility amount without a stabilization
// buffer; active and matured phases apply the upgrade buffer; a closed
// facility always reads NoCollateral. Returns true when anything changed.
func (f *CreditFacility) UpdateCollateralization(price valueobject.Money, upgradeBuffer decimal.Decimal, collateral valueobject.Quantity) bool {
	cvl := CVL(collateral, price, f.Amount)
	changed := false

	if !cvl.Equal(f.lastRecordedCVL()) {
		f.record(NewCollateralizationRatioChangedEvent(f, cvl))
		changed = true
	}

	current := f.CollateralizationState()
	var next CollateralizationState
	switch f.Status() {
	case FacilityStatusClosed:
		next = CollateralizationNoCollateral
	case FacilityStatusActive, FacilityStatusMatured:
		next = f.Terms.ActiveCollateralization(cvl, current, upgradeBuffer)
	default:
		next = f.Terms.PreActivationCollateralization(cvl)
	}

	if next != current {
		f.record(NewCollateralizationStateChangedEvent(f, next, cvl))
		changed = true
	}
	return changed
}

// Complete closes out the facility. Rejected while any obligation bucket
// still carries a balance; Ignored once completed. Returns the ledger
// instructions releasing the remaining collateral.
func (f *CreditFacility) Complete(balances *ObligationAggregator, collateral valueobject.Quantity, now time.Time) (shared.Idempotent[*FacilityCompletion], error) {
	if f.Status() == FacilityStatusClosed {
		return shared.Ignored[*FacilityCompletion](), nil
	}
	if balances.AnyOutstandingOrDefaulted() {
		return shared.Ignored[*FacilityCompletion](), ErrOutstandingAmount
	}

	completion := &FacilityCompletion{
		TxID:                uuid.New(),
		TxRef:               fmt.Sprintf("%s-completion", f.ID),
		Collateral:          collateral,
		CollateralAccountID: f.AccountIDs.CollateralAccountID,
		FacilityAccountID:   f.AccountIDs.FacilityAccountID,
		EffectiveDate:       DateOf(now),
	}
	f.record(NewCreditFacilityCompletedEvent(f, completion.TxID, completion.EffectiveDate))

	return shared.Executed(completion), nil
}

// Mature records that the facility passed its maturity date. Idempotent:
// nothing happens when already matured or closed.
func (f *CreditFacility) Mature() shared.Idempotent[time.Time] {
	switch f.Status() {
	case FacilityStatusClosed, FacilityStatusMatured:
		return shared.Ignored[time.Time]()
	}
	if !f.IsActivated() {
		return shared.AlreadyApplied[time.Time]()
	}
	maturedAt := *f.MaturesAt
	f.record(NewCreditFacilityMaturedEvent(f, maturedAt))
	return shared.Executed(maturedAt)
}
