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

// GormInterestAccrualCycleRepository implements InterestAccrualCycleRepository
// on the append-only event store plus a head projection for sweep queries
type GormInterestAccrualCycleRepository struct {
	db    *gorm.DB
	store *EventStore
}

// NewGormInterestAccrualCycleRepository creates a new GormInterestAccrualCycleRepository
func NewGormInterestAccrualCycleRepository(db *gorm.DB, store *EventStore) *GormInterestAccrualCycleRepository {
	return &GormInterestAccrualCycleRepository{db: db, store: store}
}

// FindByID hydrates a cycle from its event history
func (r *GormInterestAccrualCycleRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.InterestAccrualCycle, error) {
	stream, err := r.store.LoadStream(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := cycleHistory(id, stream)
	if err != nil {
		return nil, err
	}
	return credit.InterestAccrualCycleFromHistory(history), nil
}

// FindByFacility hydrates all cycles belonging to a facility, oldest first
func (r *GormInterestAccrualCycleRepository) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*credit.InterestAccrualCycle, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.InterestAccrualCycleHeadModel{}).
		Where("facility_id = ?", facilityID).
		Order("cycle_idx ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	streams, err := r.store.LoadStreams(ctx, ids)
	if err != nil {
		return nil, err
	}

	cycles := make([]*credit.InterestAccrualCycle, 0, len(ids))
	for _, id := range ids {
		history, err := cycleHistory(id, streams[id])
		if err != nil {
			return nil, err
		}
		cycles = append(cycles, credit.InterestAccrualCycleFromHistory(history))
	}
	return cycles, nil
}

// FindDueForAccrual lists ids of uncompleted cycles whose next accrual
// period ends on or before the given day
func (r *GormInterestAccrualCycleRepository) FindDueForAccrual(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.InterestAccrualCycleHeadModel{}).
		Where("completed = ? AND next_accrual_ends_at <= ?", false, asOf).
		Order("next_accrual_ends_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Save appends the cycle's new events and rewrites its head projection in
// one transaction
func (r *GormInterestAccrualCycleRepository) Save(ctx context.Context, cycle *credit.InterestAccrualCycle) error {
	staged := cycle.GetNewEvents()
	if len(staged) == 0 {
		return nil
	}

	head := cycleHead(cycle, cycle.GetVersion()+len(staged))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.store.Append(tx, cycle, "InterestAccrualCycle"); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&head).Error
	})
	if err != nil {
		return err
	}

	cycle.ClearNewEvents()
	return nil
}

func cycleHead(c *credit.InterestAccrualCycle, version int) models.InterestAccrualCycleHeadModel {
	head := models.InterestAccrualCycleHeadModel{
		ID:         c.ID,
		FacilityID: c.FacilityID,
		CycleIdx:   c.CycleIdx,
		Completed:  c.IsCompleted(),
		Version:    version,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  time.Now(),
	}
	if !head.Completed {
		if next := c.NextAccrualPeriod(); next != nil {
			end := next.End
			head.NextAccrualEndsAt = &end
		}
	}
	return head
}

func cycleHistory(id uuid.UUID, stream []shared.DomainEvent) ([]credit.InterestAccrualCycleEvent, error) {
	if len(stream) == 0 {
		return nil, shared.ErrNotFound
	}
	history := make([]credit.InterestAccrualCycleEvent, len(stream))
	for i, ev := range stream {
		typed, ok := ev.(credit.InterestAccrualCycleEvent)
		if !ok {
			return nil, fmt.Errorf("unexpected event type %s in accrual cycle stream %s", ev.EventType(), id)
		}
		history[i] = typed
	}
	return history, nil
}
