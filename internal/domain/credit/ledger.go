package credit

import (
	"time"

	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// The domain core never calls the ledger. Mutating operations return the
// instruction values below; the orchestration layer hands them to the
// double-entry ledger collaborator.

// LedgerReallocation instructs the ledger to move an outstanding balance
// between two receivable accounts (e.g. not-yet-due to due)
type LedgerReallocation struct {
	TxID            uuid.UUID       `json:"tx_id"`
	Amount          decimal.Decimal `json:"amount"`
	SourceAccountID uuid.UUID       `json:"source_account_id"`
	DestAccountID   uuid.UUID       `json:"dest_account_id"`
	EffectiveDate   time.Time       `json:"effective_date"`
}

// FacilityActivation instructs the ledger to post facility activation,
// including the one-time structuring fee
type FacilityActivation struct {
	TxID                uuid.UUID       `json:"tx_id"`
	TxRef               string          `json:"tx_ref"`
	FacilityAccountID   uuid.UUID       `json:"facility_account_id"`
	FeeIncomeAccountID  uuid.UUID       `json:"fee_income_account_id"`
	DisbursedReceivable uuid.UUID       `json:"disbursed_receivable_account_id"`
	FacilityAmount      decimal.Decimal `json:"facility_amount"`
	StructuringFee      decimal.Decimal `json:"structuring_fee"`
	EffectiveDate       time.Time       `json:"effective_date"`
}

// FacilityCompletion instructs the ledger to release remaining collateral
// and close out the facility accounts
type FacilityCompletion struct {
	TxID                uuid.UUID            `json:"tx_id"`
	TxRef               string               `json:"tx_ref"`
	Collateral          valueobject.Quantity `json:"collateral"`
	CollateralAccountID uuid.UUID            `json:"collateral_account_id"`
	FacilityAccountID   uuid.UUID            `json:"facility_account_id"`
	EffectiveDate       time.Time            `json:"effective_date"`
}

// InterestPosting instructs the ledger to post one cycle's accrued interest
// into the interest receivable account
type InterestPosting struct {
	TxID                        uuid.UUID       `json:"tx_id"`
	TxRef                       string          `json:"tx_ref"`
	Total                       decimal.Decimal `json:"total"`
	InterestIncomeAccountID     uuid.UUID       `json:"interest_income_account_id"`
	InterestReceivableAccountID uuid.UUID       `json:"interest_receivable_account_id"`
	EffectiveDate               time.Time       `json:"effective_date"`
}

// InterestReversal instructs the ledger to back out a previously posted
// accrual or cycle posting, re-stating the original amount
type InterestReversal struct {
	TxID          uuid.UUID       `json:"tx_id"`
	RevertedTxID  uuid.UUID       `json:"reverted_tx_id"`
	Amount        decimal.Decimal `json:"amount"`
	EffectiveDate time.Time       `json:"effective_date"`
}
