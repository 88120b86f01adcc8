package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Ledger transaction types
const (
	txTypeActivation        = "ACTIVATION"
	txTypeReallocation      = "REALLOCATION"
	txTypePaymentAllocation = "PAYMENT_ALLOCATION"
	txTypeInterestPosting   = "INTEREST_POSTING"
	txTypeInterestReversal  = "INTEREST_REVERSAL"
	txTypeCompletion        = "COMPLETION"
)

// Entry directions
const (
	entryDebit  = "DEBIT"
	entryCredit = "CREDIT"
)

const ledgerCurrencyUnit = "USD"

// GormLedger implements credit.Ledger as a double-entry journal over the
// ledger_transactions and ledger_entries tables. Each instruction books one
// transaction header plus its debit and credit legs. The header's primary
// key is the instruction's TxID, so replaying an already executed
// instruction inserts nothing.
type GormLedger struct {
	db *gorm.DB
}

// NewGormLedger creates a new GormLedger
func NewGormLedger(db *gorm.DB) *GormLedger {
	return &GormLedger{db: db}
}

// ExecuteActivation books the facility activation and structuring fee
func (l *GormLedger) ExecuteActivation(ctx context.Context, activation credit.FacilityActivation) error {
	entries := []models.LedgerEntryModel{
		moneyEntry(activation.TxID, activation.FacilityAccountID, entryDebit, activation.FacilityAmount),
		moneyEntry(activation.TxID, activation.DisbursedReceivable, entryCredit, activation.FacilityAmount),
	}
	if activation.StructuringFee.IsPositive() {
		entries = append(entries,
			moneyEntry(activation.TxID, activation.DisbursedReceivable, entryDebit, activation.StructuringFee),
			moneyEntry(activation.TxID, activation.FeeIncomeAccountID, entryCredit, activation.StructuringFee),
		)
	}
	return l.book(ctx, models.LedgerTransactionModel{
		TxID:          activation.TxID,
		TxRef:         activation.TxRef,
		TxType:        txTypeActivation,
		EffectiveDate: activation.EffectiveDate,
	}, entries)
}

// ExecuteReallocation moves an outstanding balance between receivable
// accounts on an obligation status transition
func (l *GormLedger) ExecuteReallocation(ctx context.Context, reallocation credit.LedgerReallocation) error {
	return l.book(ctx, models.LedgerTransactionModel{
		TxID:          reallocation.TxID,
		TxType:        txTypeReallocation,
		EffectiveDate: reallocation.EffectiveDate,
	}, []models.LedgerEntryModel{
		moneyEntry(reallocation.TxID, reallocation.DestAccountID, entryDebit, reallocation.Amount),
		moneyEntry(reallocation.TxID, reallocation.SourceAccountID, entryCredit, reallocation.Amount),
	})
}

// ExecutePaymentAllocation settles part of an obligation from the payment
// holding account
func (l *GormLedger) ExecutePaymentAllocation(ctx context.Context, allocation credit.PaymentAllocation) error {
	return l.book(ctx, models.LedgerTransactionModel{
		TxID:          allocation.LedgerTxID,
		TxType:        txTypePaymentAllocation,
		EffectiveDate: allocation.EffectiveDate,
	}, []models.LedgerEntryModel{
		moneyEntry(allocation.LedgerTxID, allocation.PaymentHoldingAccountID, entryDebit, allocation.Amount),
		moneyEntry(allocation.LedgerTxID, allocation.ReceivableAccountID, entryCredit, allocation.Amount),
	})
}

// PostInterest books accrued interest against the receivable account
func (l *GormLedger) PostInterest(ctx context.Context, posting credit.InterestPosting) error {
	return l.book(ctx, models.LedgerTransactionModel{
		TxID:          posting.TxID,
		TxRef:         posting.TxRef,
		TxType:        txTypeInterestPosting,
		EffectiveDate: posting.EffectiveDate,
	}, []models.LedgerEntryModel{
		moneyEntry(posting.TxID, posting.InterestReceivableAccountID, entryDebit, posting.Total),
		moneyEntry(posting.TxID, posting.InterestIncomeAccountID, entryCredit, posting.Total),
	})
}

// RevertInterest reverses a previously booked interest transaction by
// booking the original legs with debit and credit swapped
func (l *GormLedger) RevertInterest(ctx context.Context, reversal credit.InterestReversal) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var original []models.LedgerEntryModel
		if err := tx.Where("tx_id = ?", reversal.RevertedTxID).Find(&original).Error; err != nil {
			return err
		}
		if len(original) == 0 {
			return fmt.Errorf("ledger transaction %s not found", reversal.RevertedTxID)
		}

		header := models.LedgerTransactionModel{
			TxID:          reversal.TxID,
			TxType:        txTypeInterestReversal,
			RevertedTxID:  &reversal.RevertedTxID,
			EffectiveDate: reversal.EffectiveDate,
		}
		entries := make([]models.LedgerEntryModel, 0, len(original))
		for _, leg := range original {
			entries = append(entries, models.LedgerEntryModel{
				TxID:      reversal.TxID,
				AccountID: leg.AccountID,
				Direction: invert(leg.Direction),
				Amount:    leg.Amount,
				Unit:      leg.Unit,
			})
		}
		return bookInTx(tx, header, entries)
	})
}

// ExecuteCompletion releases remaining collateral and closes the facility
// accounts
func (l *GormLedger) ExecuteCompletion(ctx context.Context, completion credit.FacilityCompletion) error {
	var entries []models.LedgerEntryModel
	if !completion.Collateral.IsZero() {
		entries = []models.LedgerEntryModel{
			{
				TxID:      completion.TxID,
				AccountID: completion.FacilityAccountID,
				Direction: entryDebit,
				Amount:    completion.Collateral.Amount(),
				Unit:      completion.Collateral.Unit(),
			},
			{
				TxID:      completion.TxID,
				AccountID: completion.CollateralAccountID,
				Direction: entryCredit,
				Amount:    completion.Collateral.Amount(),
				Unit:      completion.Collateral.Unit(),
			},
		}
	}
	return l.book(ctx, models.LedgerTransactionModel{
		TxID:          completion.TxID,
		TxRef:         completion.TxRef,
		TxType:        txTypeCompletion,
		EffectiveDate: completion.EffectiveDate,
	}, entries)
}

// book inserts a transaction header and its legs atomically. When the
// header already exists the whole call is a no-op.
func (l *GormLedger) book(ctx context.Context, header models.LedgerTransactionModel, entries []models.LedgerEntryModel) error {
	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return bookInTx(tx, header, entries)
	})
}

func bookInTx(tx *gorm.DB, header models.LedgerTransactionModel, entries []models.LedgerEntryModel) error {
	header.CreatedAt = time.Now()
	result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&header)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Already booked, idempotent replay
		return nil
	}
	if len(entries) == 0 {
		return nil
	}
	return tx.Create(&entries).Error
}

func moneyEntry(txID, accountID uuid.UUID, direction string, amount decimal.Decimal) models.LedgerEntryModel {
	return models.LedgerEntryModel{
		TxID:      txID,
		AccountID: accountID,
		Direction: direction,
		Amount:    amount,
		Unit:      ledgerCurrencyUnit,
	}
}

func invert(direction string) string {
	if direction == entryDebit {
		return entryCredit
	}
	return entryDebit
}
