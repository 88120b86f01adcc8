package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/domain/shared/valueobject"
	"github.com/lendcore/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormCollateralBalances implements credit.CollateralBalances over the
// collateral_balances table, which is fed from custody statements
type GormCollateralBalances struct {
	db *gorm.DB
}

// NewGormCollateralBalances creates a new GormCollateralBalances
func NewGormCollateralBalances(db *gorm.DB) *GormCollateralBalances {
	return &GormCollateralBalances{db: db}
}

// CollateralBalance returns the quantity pledged against a collateral
// account. Returns shared.ErrNotFound when no balance has been recorded.
func (r *GormCollateralBalances) CollateralBalance(ctx context.Context, collateralID uuid.UUID) (valueobject.Quantity, error) {
	var model models.CollateralBalanceModel
	if err := r.db.WithContext(ctx).First(&model, "collateral_id = ?", collateralID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return valueobject.Quantity{}, shared.ErrNotFound
		}
		return valueobject.Quantity{}, err
	}
	return valueobject.NewQuantity(model.Amount, model.Unit)
}

// RecordBalance upserts the pledged quantity for a collateral account
func (r *GormCollateralBalances) RecordBalance(ctx context.Context, collateralID uuid.UUID, balance valueobject.Quantity) error {
	model := models.CollateralBalanceModel{
		CollateralID: collateralID,
		Amount:       balance.Amount(),
		Unit:         balance.Unit(),
		UpdatedAt:    time.Now(),
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&model).Error
}
