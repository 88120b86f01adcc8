package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/lendcore/backend/internal/domain/credit"
	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// facilitySortFields contains allowed sort fields for facility queries
var facilitySortFields = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"status":     true,
	"matures_at": true,
}

// GormCreditFacilityRepository implements CreditFacilityRepository on the
// append-only event store plus a head projection for queries
type GormCreditFacilityRepository struct {
	db    *gorm.DB
	store *EventStore
}

// NewGormCreditFacilityRepository creates a new GormCreditFacilityRepository
func NewGormCreditFacilityRepository(db *gorm.DB, store *EventStore) *GormCreditFacilityRepository {
	return &GormCreditFacilityRepository{db: db, store: store}
}

// FindByID hydrates a facility from its event history
func (r *GormCreditFacilityRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.CreditFacility, error) {
	stream, err := r.store.LoadStream(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := facilityHistory(id, stream)
	if err != nil {
		return nil, err
	}
	return credit.CreditFacilityFromHistory(history), nil
}

// FindAll finds facilities matching the filter, one page at a time
func (r *GormCreditFacilityRepository) FindAll(ctx context.Context, filter credit.CreditFacilityFilter) (*shared.Paginated[*credit.CreditFacility], error) {
	defaults := shared.DefaultFilter()
	if filter.Page <= 0 {
		filter.Page = defaults.Page
	}
	if filter.PageSize <= 0 {
		filter.PageSize = defaults.PageSize
	}

	query := r.db.WithContext(ctx).Model(&models.CreditFacilityHeadModel{})
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, err
	}

	orderBy := ValidateSortField(filter.OrderBy, facilitySortFields, "created_at")
	query = query.Order(orderBy + " " + ValidateSortOrder(filter.OrderDir)).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize)

	var ids []uuid.UUID
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	streams, err := r.store.LoadStreams(ctx, ids)
	if err != nil {
		return nil, err
	}

	facilities := make([]*credit.CreditFacility, 0, len(ids))
	for _, id := range ids {
		history, err := facilityHistory(id, streams[id])
		if err != nil {
			return nil, err
		}
		facilities = append(facilities, credit.CreditFacilityFromHistory(history))
	}

	page := shared.NewPaginated(facilities, total, filter.Page, filter.PageSize)
	return &page, nil
}

// FindActiveIDs lists ids of facilities that are activated but not closed
func (r *GormCreditFacilityRepository) FindActiveIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CreditFacilityHeadModel{}).
		Where("activated_at IS NOT NULL AND status <> ?", string(credit.FacilityStatusClosed)).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// FindMaturedCandidateIDs lists ids of active facilities whose maturity
// date is on or before the given day
func (r *GormCreditFacilityRepository) FindMaturedCandidateIDs(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.CreditFacilityHeadModel{}).
		Where("status = ? AND matures_at <= ?", string(credit.FacilityStatusActive), asOf).
		Order("matures_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Save appends the facility's new events and rewrites its head projection
// in one transaction. A version collision on the stream surfaces as
// shared.ErrConcurrencyConflict.
func (r *GormCreditFacilityRepository) Save(ctx context.Context, facility *credit.CreditFacility) error {
	staged := facility.GetNewEvents()
	if len(staged) == 0 {
		return nil
	}

	head := facilityHead(facility, facility.GetVersion()+len(staged))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.store.Append(tx, facility, "CreditFacility"); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&head).Error
	})
	if err != nil {
		return err
	}

	facility.ClearNewEvents()
	return nil
}

func facilityHead(f *credit.CreditFacility, version int) models.CreditFacilityHeadModel {
	now := time.Now()
	return models.CreditFacilityHeadModel{
		ID:                     f.ID,
		CustomerID:             f.CustomerID,
		CollateralID:           f.CollateralID,
		Status:                 string(f.Status()),
		CollateralizationState: string(f.CollateralizationState()),
		ActivatedAt:            f.ActivatedAt,
		MaturesAt:              f.MaturesAt,
		Version:                version,
		CreatedAt:              f.CreatedAt,
		UpdatedAt:              now,
	}
}

func facilityHistory(id uuid.UUID, stream []shared.DomainEvent) ([]credit.CreditFacilityEvent, error) {
	if len(stream) == 0 {
		return nil, shared.ErrNotFound
	}
	history := make([]credit.CreditFacilityEvent, len(stream))
	for i, ev := range stream {
		typed, ok := ev.(credit.CreditFacilityEvent)
		if !ok {
			return nil, fmt.Errorf("unexpected event type %s in facility stream %s", ev.EventType(), id)
		}
		history[i] = typed
	}
	return history, nil
}
