package credit

import (
	"fmt"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InterestAccrualCycleAccountIDs snapshots the accounts a cycle posts
// against: the income account for posted interest and the receivable
// accounts handed to the interest obligation it produces
type InterestAccrualCycleAccountIDs struct {
	InterestIncomeAccountID    uuid.UUID            `json:"interest_income_account_id"`
	InterestReceivableAccounts ObligationAccountIDs `json:"interest_receivable_accounts"`
}

// InterestAccrualCycle is one billing cycle's worth of periodic interest
// computation, cycle-level posting and backdated reversal. It is a child
// aggregate owned by a CreditFacility.
type InterestAccrualCycle struct {
	shared.EventSourcedRoot
	FacilityID uuid.UUID
	CycleIdx   int
	Period     Period
	Terms      FacilityTerms
	AccountIDs InterestAccrualCycleAccountIDs

	events []InterestAccrualCycleEvent

	// revertedTxIDs cannot be answered from a single reverting event
	// without a scan, so it is rebuilt once during hydration and kept
	// current as reversal events are recorded.
	revertedTxIDs map[uuid.UUID]struct{}
}

// NewInterestAccrualCycleParams carries everything needed to initialize a cycle
type NewInterestAccrualCycleParams struct {
	CycleID    uuid.UUID // generated when zero
	FacilityID uuid.UUID
	CycleIdx   int
	Period     Period
	Terms      FacilityTerms
	AccountIDs InterestAccrualCycleAccountIDs
}

// NewInterestAccrualCycle creates a new accrual cycle
func NewInterestAccrualCycle(p NewInterestAccrualCycleParams) (*InterestAccrualCycle, error) {
	if p.FacilityID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_FACILITY", "Facility ID cannot be empty")
	}
	if p.CycleIdx <= 0 {
		return nil, shared.NewDomainError("INVALID_CYCLE_IDX", "Cycle index must be positive")
	}
	if p.Period.End.Before(p.Period.Start) {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Cycle period end cannot precede its start")
	}

	root := shared.NewEventSourcedRoot()
	if p.CycleID != uuid.Nil {
		root.ID = p.CycleID
	}
	c := &InterestAccrualCycle{
		EventSourcedRoot: root,
		FacilityID:       p.FacilityID,
		CycleIdx:         p.CycleIdx,
		Period:           Period{Start: DateOf(p.Period.Start), End: DateOf(p.Period.End)},
		Terms:            p.Terms,
		AccountIDs:       p.AccountIDs,
		revertedTxIDs:    make(map[uuid.UUID]struct{}),
	}
	c.record(NewInterestAccrualCycleInitializedEvent(c))

	return c, nil
}

// InterestAccrualCycleFromHistory rebuilds a cycle by folding its persisted
// event history, including the auxiliary reverted-tx set
func InterestAccrualCycleFromHistory(events []InterestAccrualCycleEvent) *InterestAccrualCycle {
	if len(events) == 0 {
		panic("credit: interest accrual cycle history is empty")
	}
	init, ok := events[0].(*InterestAccrualCycleInitializedEvent)
	if !ok {
		panic(fmt.Sprintf("credit: accrual cycle history does not start with Initialized, got %s", events[0].EventType()))
	}
	c := &InterestAccrualCycle{
		EventSourcedRoot: shared.HydratedEventSourcedRoot(init.CycleID, init.OccurredAt(), len(events)),
		FacilityID:       init.FacilityID,
		CycleIdx:         init.CycleIdx,
		Period:           init.Period,
		Terms:            init.Terms,
		AccountIDs:       init.AccountIDs,
		events:           events,
		revertedTxIDs:    make(map[uuid.UUID]struct{}),
	}
	for _, event := range events {
		switch e := event.(type) {
		case *AccruedInterestRevertedEvent:
			c.revertedTxIDs[e.RevertedTxID] = struct{}{}
		case *PostedInterestAccrualsRevertedEvent:
			c.revertedTxIDs[e.RevertedTxID] = struct{}{}
		}
	}
	return c
}

// Events returns the full event history, including staged events
func (c *InterestAccrualCycle) Events() []InterestAccrualCycleEvent {
	return c.events
}

func (c *InterestAccrualCycle) record(event InterestAccrualCycleEvent) {
	c.events = append(c.events, event)
	c.RecordEvent(event)
}

// lastAccrual returns the most recent InterestAccrued event, or nil
func (c *InterestAccrualCycle) lastAccrual() *InterestAccruedEvent {
	for i := len(c.events) - 1; i >= 0; i-- {
		if accrued, ok := c.events[i].(*InterestAccruedEvent); ok {
			return accrued
		}
	}
	return nil
}

func (c *InterestAccrualCycle) accrualCount() int {
	count := 0
	for _, event := range c.events {
		if _, ok := event.(*InterestAccruedEvent); ok {
			count++
		}
	}
	return count
}

// NextAccrualPeriod returns the next accrual sub-period, truncated to the
// cycle boundary, or nil once the cycle is fully accrued
func (c *InterestAccrualCycle) NextAccrualPeriod() *Period {
	var next Period
	if last := c.lastAccrual(); last != nil {
		next = c.Terms.AccrualInterval.PeriodStartingAt(last.EffectiveDate.AddDate(0, 0, 1))
	} else {
		next = c.Terms.AccrualInterval.PeriodStartingAt(c.Period.Start)
	}
	return next.Truncate(c.Period.End)
}

// AccrualEntry is the payload of an executed accrual
type AccrualEntry struct {
	TxID          uuid.UUID
	Amount        decimal.Decimal
	EffectiveDate time.Time
}

// RecordAccrual computes simple interest on the outstanding amount for the
// next accrual sub-period and appends an InterestAccrued entry. Reports
// AlreadyApplied once the cycle has no sub-period left.
func (c *InterestAccrualCycle) RecordAccrual(outstanding decimal.Decimal) shared.Idempotent[AccrualEntry] {
	period := c.NextAccrualPeriod()
	if period == nil {
		return shared.AlreadyApplied[AccrualEntry]()
	}

	interest := c.Terms.InterestForPeriod(outstanding, period.Days())
	accrual := AccrualEntry{
		TxID:          uuid.New(),
		Amount:        interest,
		EffectiveDate: period.End,
	}
	c.record(NewInterestAccruedEvent(c, c.accrualCount()+1, accrual.TxID, interest, period.End))

	return shared.Executed(accrual)
}

// InterestAccrualCycleData carries the cycle totals handed to
// RecordAccrualCycle once the cycle is fully accrued
type InterestAccrualCycleData struct {
	Total         decimal.Decimal
	TxID          uuid.UUID
	TxRef         string
	EffectiveDate time.Time
}

// AccrualCycleData is a non-mutating probe: it returns the cycle totals only
// when the period following the last accrual would fall outside the cycle
// boundary (i.e. the cycle is fully accrued), and nil otherwise
func (c *InterestAccrualCycle) AccrualCycleData() *InterestAccrualCycleData {
	if c.NextAccrualPeriod() != nil {
		return nil
	}
	last := c.lastAccrual()
	if last == nil {
		return nil
	}

	total := decimal.Zero
	for _, event := range c.events {
		if accrued, ok := event.(*InterestAccruedEvent); ok {
			total = total.Add(accrued.Amount)
		}
	}

	return &InterestAccrualCycleData{
		Total:         total,
		TxID:          uuid.New(),
		TxRef:         fmt.Sprintf("%s-interest-accrual-cycle-%d", c.FacilityID, c.CycleIdx),
		EffectiveDate: last.EffectiveDate,
	}
}

// InterestPostingResult is the payload of an executed cycle posting
type InterestPostingResult struct {
	Posting       InterestPosting
	NewObligation *NewObligationParams // nil when the cycle total was zero
}

// RecordAccrualCycle posts the cycle's accrued interest. Idempotent per
// cycle: a second call reports Ignored. A zero total posts a zero-amount
// event and creates no obligation; otherwise the posting references a new
// interest-type obligation due at cycle end, with overdue/liquidation dates
// derived from the terms' grace periods.
func (c *InterestAccrualCycle) RecordAccrualCycle(beneficiaryID uuid.UUID, data InterestAccrualCycleData) shared.Idempotent[*InterestPostingResult] {
	if c.cyclePosting() != nil {
		return shared.Ignored[*InterestPostingResult]()
	}

	result := &InterestPostingResult{
		Posting: InterestPosting{
			TxID:                        data.TxID,
			TxRef:                       data.TxRef,
			Total:                       data.Total,
			InterestIncomeAccountID:     c.AccountIDs.InterestIncomeAccountID,
			InterestReceivableAccountID: c.AccountIDs.InterestReceivableAccounts.NotYetDueAccountID,
			EffectiveDate:               data.EffectiveDate,
		},
	}

	if data.Total.IsZero() {
		c.record(NewInterestAccrualsPostedEvent(c, data, nil))
		return shared.Executed(result)
	}

	obligationID := uuid.New()
	dueDate := c.Period.End
	var overdueDate, defaultedDate *time.Time
	if c.Terms.OverdueDuration != nil {
		d := c.Terms.OverdueDuration.EndDate(dueDate)
		overdueDate = &d
	}
	if c.Terms.LiquidationDuration != nil {
		d := c.Terms.LiquidationDuration.EndDate(dueDate)
		defaultedDate = &d
	}
	result.NewObligation = &NewObligationParams{
		ObligationID:   obligationID,
		FacilityID:     c.FacilityID,
		BeneficiaryID:  beneficiaryID,
		ObligationType: ObligationTypeInterest,
		Amount:         data.Total,
		EffectiveDate:  data.EffectiveDate,
		DueDate:        dueDate,
		OverdueDate:    overdueDate,
		DefaultedDate:  defaultedDate,
		AccountIDs:     c.AccountIDs.InterestReceivableAccounts,
	}

	c.record(NewInterestAccrualsPostedEvent(c, data, &obligationID))
	return shared.Executed(result)
}

// cyclePosting returns the most recent posting event, or nil
func (c *InterestAccrualCycle) cyclePosting() *InterestAccrualsPostedEvent {
	for i := len(c.events) - 1; i >= 0; i-- {
		if posted, ok := c.events[i].(*InterestAccrualsPostedEvent); ok {
			return posted
		}
	}
	return nil
}

// HasUnrevertedCyclePosting reports whether a cycle posting exists whose tx
// has not been reverted
func (c *InterestAccrualCycle) HasUnrevertedCyclePosting() bool {
	posting := c.cyclePosting()
	if posting == nil {
		return false
	}
	_, reverted := c.revertedTxIDs[posting.LedgerTxID]
	return !reverted
}

// RevertedRecordKind tags entries of a composite reversal result
type RevertedRecordKind string

const (
	RevertedRecordPosting RevertedRecordKind = "CYCLE_POSTING"
	RevertedRecordAccrual RevertedRecordKind = "ACCRUAL"
)

// RevertedRecord is one reversal produced by the revert operations
type RevertedRecord struct {
	Kind     RevertedRecordKind
	Reversal InterestReversal
}

// RevertAccrual backs out the most recent not-yet-reverted accrual entry.
// The cycle posting (if any) must be reverted first. Reports Ignored once
// nothing remains to revert.
func (c *InterestAccrualCycle) RevertAccrual() (shared.Idempotent[RevertedRecord], error) {
	if c.HasUnrevertedCyclePosting() {
		return shared.Ignored[RevertedRecord](), ErrUnrevertedCyclePosting
	}
	accrued := c.latestUnrevertedAccrual()
	if accrued == nil {
		return shared.Ignored[RevertedRecord](), nil
	}
	record := c.revertAccrualEntry(accrued)
	return shared.Executed(record), nil
}

// RevertAccrualCycle backs out the most recent not-yet-reverted cycle
// posting. Reports Ignored when no unreverted posting exists.
func (c *InterestAccrualCycle) RevertAccrualCycle() shared.Idempotent[RevertedRecord] {
	posting := c.cyclePosting()
	if posting == nil {
		return shared.Ignored[RevertedRecord]()
	}
	if _, reverted := c.revertedTxIDs[posting.LedgerTxID]; reverted {
		return shared.Ignored[RevertedRecord]()
	}
	record := c.revertPostingEntry(posting)
	return shared.Executed(record)
}

// RevertOnOrAfter reverts everything effective on or after the cutoff: the
// cycle posting first (when it qualifies), then accruals newest to oldest,
// stopping at the first entry strictly before the cutoff. Reports Ignored
// when nothing matched.
func (c *InterestAccrualCycle) RevertOnOrAfter(effectiveDate time.Time) shared.Idempotent[[]RevertedRecord] {
	cutoff := DateOf(effectiveDate)
	var reverted []RevertedRecord

	if posting := c.cyclePosting(); posting != nil {
		if _, done := c.revertedTxIDs[posting.LedgerTxID]; !done && !DateOf(posting.EffectiveDate).Before(cutoff) {
			reverted = append(reverted, c.revertPostingEntry(posting))
		}
	}

	for {
		accrued := c.latestUnrevertedAccrual()
		if accrued == nil || DateOf(accrued.EffectiveDate).Before(cutoff) {
			break
		}
		reverted = append(reverted, c.revertAccrualEntry(accrued))
	}

	if len(reverted) == 0 {
		return shared.Ignored[[]RevertedRecord]()
	}
	return shared.Executed(reverted)
}

func (c *InterestAccrualCycle) latestUnrevertedAccrual() *InterestAccruedEvent {
	for i := len(c.events) - 1; i >= 0; i-- {
		if accrued, ok := c.events[i].(*InterestAccruedEvent); ok {
			if _, reverted := c.revertedTxIDs[accrued.LedgerTxID]; !reverted {
				return accrued
			}
		}
	}
	return nil
}

func (c *InterestAccrualCycle) revertAccrualEntry(accrued *InterestAccruedEvent) RevertedRecord {
	reversal := InterestReversal{
		TxID:          uuid.New(),
		RevertedTxID:  accrued.LedgerTxID,
		Amount:        accrued.Amount,
		EffectiveDate: accrued.EffectiveDate,
	}
	c.record(NewAccruedInterestRevertedEvent(c, reversal))
	c.revertedTxIDs[accrued.LedgerTxID] = struct{}{}
	return RevertedRecord{Kind: RevertedRecordAccrual, Reversal: reversal}
}

func (c *InterestAccrualCycle) revertPostingEntry(posting *InterestAccrualsPostedEvent) RevertedRecord {
	reversal := InterestReversal{
		TxID:          uuid.New(),
		RevertedTxID:  posting.LedgerTxID,
		Amount:        posting.Total,
		EffectiveDate: posting.EffectiveDate,
	}
	c.record(NewPostedInterestAccrualsRevertedEvent(c, reversal))
	c.revertedTxIDs[posting.LedgerTxID] = struct{}{}
	return RevertedRecord{Kind: RevertedRecordPosting, Reversal: reversal}
}

// IsCompleted reports whether the cycle has been posted or touched by any
// reversal - a coarse lock signal, distinct from the finer AccrualCycleData
// probe
func (c *InterestAccrualCycle) IsCompleted() bool {
	for _, event := range c.events {
		switch event.(type) {
		case *InterestAccrualsPostedEvent, *PostedInterestAccrualsRevertedEvent, *AccruedInterestRevertedEvent:
			return true
		}
	}
	return false
}
