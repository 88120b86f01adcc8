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

// GormObligationRepository implements ObligationRepository on the
// append-only event store plus a head projection for sweep queries
type GormObligationRepository struct {
	db    *gorm.DB
	store *EventStore
}

// NewGormObligationRepository creates a new GormObligationRepository
func NewGormObligationRepository(db *gorm.DB, store *EventStore) *GormObligationRepository {
	return &GormObligationRepository{db: db, store: store}
}

// FindByID hydrates an obligation from its event history
func (r *GormObligationRepository) FindByID(ctx context.Context, id uuid.UUID) (*credit.Obligation, error) {
	stream, err := r.store.LoadStream(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := obligationHistory(id, stream)
	if err != nil {
		return nil, err
	}
	return credit.ObligationFromHistory(history), nil
}

// FindByFacility hydrates all obligations of a facility, oldest first
func (r *GormObligationRepository) FindByFacility(ctx context.Context, facilityID uuid.UUID) ([]*credit.Obligation, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.ObligationHeadModel{}).
		Where("facility_id = ?", facilityID).
		Order("created_at ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}

	streams, err := r.store.LoadStreams(ctx, ids)
	if err != nil {
		return nil, err
	}

	obligations := make([]*credit.Obligation, 0, len(ids))
	for _, id := range ids {
		history, err := obligationHistory(id, streams[id])
		if err != nil {
			return nil, err
		}
		obligations = append(obligations, credit.ObligationFromHistory(history))
	}
	return obligations, nil
}

// FindDueForTransition lists ids of non-terminal obligations whose next
// transition date is on or before the given day
func (r *GormObligationRepository) FindDueForTransition(ctx context.Context, asOf time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.ObligationHeadModel{}).
		Where("next_transition_at IS NOT NULL AND next_transition_at <= ?", asOf).
		Order("next_transition_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// Save appends the obligation's new events and rewrites its head
// projection in one transaction
func (r *GormObligationRepository) Save(ctx context.Context, obligation *credit.Obligation) error {
	staged := obligation.GetNewEvents()
	if len(staged) == 0 {
		return nil
	}

	head := obligationHead(obligation, obligation.GetVersion()+len(staged))
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := r.store.Append(tx, obligation, "Obligation"); err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&head).Error
	})
	if err != nil {
		return err
	}

	obligation.ClearNewEvents()
	return nil
}

func obligationHead(o *credit.Obligation, version int) models.ObligationHeadModel {
	return models.ObligationHeadModel{
		ID:               o.ID,
		FacilityID:       o.FacilityID,
		ObligationType:   string(o.ObligationType),
		Status:           string(o.Status()),
		NextTransitionAt: o.NextTransitionDate(),
		Version:          version,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        time.Now(),
	}
}

func obligationHistory(id uuid.UUID, stream []shared.DomainEvent) ([]credit.ObligationEvent, error) {
	if len(stream) == 0 {
		return nil, shared.ErrNotFound
	}
	history := make([]credit.ObligationEvent, len(stream))
	for i, ev := range stream {
		typed, ok := ev.(credit.ObligationEvent)
		if !ok {
			return nil, fmt.Errorf("unexpected event type %s in obligation stream %s", ev.EventType(), id)
		}
		history[i] = typed
	}
	return history, nil
}
