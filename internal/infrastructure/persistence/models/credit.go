package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventModel is one row of the append-only credit event store. The unique
// (aggregate_id, version) index is what turns a concurrent double-append
// into a detectable conflict.
type EventModel struct {
	Seq           int64     `gorm:"primaryKey;autoIncrement"`
	AggregateID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_credit_events_stream,priority:1"`
	AggregateType string    `gorm:"type:varchar(64);not null;index"`
	Version       int       `gorm:"not null;uniqueIndex:idx_credit_events_stream,priority:2"`
	EventType     string    `gorm:"type:varchar(128);not null"`
	Payload       []byte    `gorm:"type:jsonb;not null"`
	OccurredAt    time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (EventModel) TableName() string {
	return "credit_events"
}

// CreditFacilityHeadModel is the query projection for a facility stream.
// It is rewritten from aggregate state on every save and exists only to
// answer list and sweep queries without folding event histories.
type CreditFacilityHeadModel struct {
	ID                     uuid.UUID  `gorm:"type:uuid;primaryKey"`
	CustomerID             uuid.UUID  `gorm:"type:uuid;not null;index"`
	CollateralID           uuid.UUID  `gorm:"type:uuid;not null;index"`
	Status                 string     `gorm:"type:varchar(32);not null;index"`
	CollateralizationState string     `gorm:"type:varchar(32);not null"`
	ActivatedAt            *time.Time
	MaturesAt              *time.Time `gorm:"index"`
	Version                int        `gorm:"not null"`
	CreatedAt              time.Time  `gorm:"not null"`
	UpdatedAt              time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CreditFacilityHeadModel) TableName() string {
	return "credit_facility_heads"
}

// InterestAccrualCycleHeadModel is the query projection for an accrual
// cycle stream
type InterestAccrualCycleHeadModel struct {
	ID                uuid.UUID  `gorm:"type:uuid;primaryKey"`
	FacilityID        uuid.UUID  `gorm:"type:uuid;not null;index"`
	CycleIdx          int        `gorm:"not null"`
	Completed         bool       `gorm:"not null"`
	NextAccrualEndsAt *time.Time `gorm:"index"`
	Version           int        `gorm:"not null"`
	CreatedAt         time.Time  `gorm:"not null"`
	UpdatedAt         time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InterestAccrualCycleHeadModel) TableName() string {
	return "interest_accrual_cycle_heads"
}

// ObligationHeadModel is the query projection for an obligation stream.
// NextTransitionAt is nil once the obligation reaches a terminal status.
type ObligationHeadModel struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey"`
	FacilityID       uuid.UUID  `gorm:"type:uuid;not null;index"`
	ObligationType   string     `gorm:"type:varchar(16);not null"`
	Status           string     `gorm:"type:varchar(16);not null;index"`
	NextTransitionAt *time.Time `gorm:"index"`
	Version          int        `gorm:"not null"`
	CreatedAt        time.Time  `gorm:"not null"`
	UpdatedAt        time.Time  `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ObligationHeadModel) TableName() string {
	return "obligation_heads"
}

// CollateralBalanceModel tracks the quantity of collateral pledged against
// a collateral account, fed from custody statements.
type CollateralBalanceModel struct {
	CollateralID uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Amount       decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	Unit         string          `gorm:"type:varchar(16);not null"`
	UpdatedAt    time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CollateralBalanceModel) TableName() string {
	return "collateral_balances"
}

// LedgerTransactionModel is the header row of one booked ledger transaction.
// TxID is the idempotency key: replaying an instruction with an already
// booked TxID inserts nothing.
type LedgerTransactionModel struct {
	TxID          uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TxRef         string     `gorm:"type:varchar(128)"`
	TxType        string     `gorm:"type:varchar(32);not null;index"`
	RevertedTxID  *uuid.UUID `gorm:"type:uuid"`
	EffectiveDate time.Time  `gorm:"not null"`
	CreatedAt     time.Time  `gorm:"not null;default:now()"`
}

// TableName returns the table name for GORM
func (LedgerTransactionModel) TableName() string {
	return "ledger_transactions"
}

// LedgerEntryModel is one debit or credit leg of a ledger transaction
type LedgerEntryModel struct {
	Seq       int64           `gorm:"primaryKey;autoIncrement"`
	TxID      uuid.UUID       `gorm:"type:uuid;not null;index"`
	AccountID uuid.UUID       `gorm:"type:uuid;not null;index"`
	Direction string          `gorm:"type:varchar(6);not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(30,8);not null"`
	Unit      string          `gorm:"type:varchar(16);not null"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "ledger_entries"
}
