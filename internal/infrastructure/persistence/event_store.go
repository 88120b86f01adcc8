package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/lendcore/backend/internal/domain/shared"
	"github.com/lendcore/backend/internal/infrastructure/event"
	"github.com/lendcore/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EventStore reads and appends aggregate event streams on the shared
// credit_events table. Appends carry explicit per-stream version numbers;
// a duplicate (aggregate_id, version) pair means another writer got there
// first and surfaces as shared.ErrConcurrencyConflict.
type EventStore struct {
	db         *gorm.DB
	serializer *event.Serializer
}

// NewEventStore creates an event store on the given connection
func NewEventStore(db *gorm.DB, serializer *event.Serializer) *EventStore {
	return &EventStore{db: db, serializer: serializer}
}

// Append serializes and inserts the aggregate's staged events inside the
// given transaction. Versions continue from the aggregate's persisted
// count. The caller clears staged events only after the transaction
// commits.
func (s *EventStore) Append(tx *gorm.DB, root shared.AggregateRoot, aggregateType string) error {
	staged := root.GetNewEvents()
	if len(staged) == 0 {
		return nil
	}

	rows := make([]models.EventModel, len(staged))
	base := root.GetVersion()
	for i, ev := range staged {
		payload, err := s.serializer.Serialize(ev)
		if err != nil {
			return fmt.Errorf("failed to serialize event %s: %w", ev.EventType(), err)
		}
		rows[i] = models.EventModel{
			AggregateID:   ev.AggregateID(),
			AggregateType: aggregateType,
			Version:       base + i + 1,
			EventType:     ev.EventType(),
			Payload:       payload,
			OccurredAt:    ev.OccurredAt(),
		}
	}

	if err := tx.Create(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return shared.ErrConcurrencyConflict
		}
		return err
	}
	return nil
}

// LoadStream returns one aggregate's events in version order.
// Returns shared.ErrNotFound when the stream does not exist.
func (s *EventStore) LoadStream(ctx context.Context, aggregateID uuid.UUID) ([]shared.DomainEvent, error) {
	var rows []models.EventModel
	if err := s.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, shared.ErrNotFound
	}
	return s.deserializeRows(rows)
}

// LoadStreams returns the events of several aggregates keyed by aggregate
// id, each stream in version order. Unknown ids are simply absent from the
// result.
func (s *EventStore) LoadStreams(ctx context.Context, aggregateIDs []uuid.UUID) (map[uuid.UUID][]shared.DomainEvent, error) {
	streams := make(map[uuid.UUID][]shared.DomainEvent, len(aggregateIDs))
	if len(aggregateIDs) == 0 {
		return streams, nil
	}

	var rows []models.EventModel
	if err := s.db.WithContext(ctx).
		Where("aggregate_id IN ?", aggregateIDs).
		Order("aggregate_id ASC, version ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		ev, err := s.serializer.Deserialize(row.EventType, row.Payload)
		if err != nil {
			return nil, err
		}
		streams[row.AggregateID] = append(streams[row.AggregateID], ev)
	}
	return streams, nil
}

func (s *EventStore) deserializeRows(rows []models.EventModel) ([]shared.DomainEvent, error) {
	events := make([]shared.DomainEvent, len(rows))
	for i, row := range rows {
		ev, err := s.serializer.Deserialize(row.EventType, row.Payload)
		if err != nil {
			return nil, err
		}
		events[i] = ev
	}
	return events, nil
}
