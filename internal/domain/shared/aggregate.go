package shared

import (
	"time"

	"github.com/google/uuid"
)

// AggregateRoot is the base interface for all aggregate roots
type AggregateRoot interface {
	Entity
	GetVersion() int
	GetNewEvents() []DomainEvent
	ClearNewEvents()
}

// EventSourcedRoot provides common fields for event-sourced aggregate roots.
// State is reconstructed by folding the aggregate's event history; the
// Version field counts persisted events and backs optimistic concurrency
// checks in the event store.
type EventSourcedRoot struct {
	BaseEntity
	Version   int
	newEvents []DomainEvent
}

// GetVersion returns the number of persisted events for this aggregate
func (a *EventSourcedRoot) GetVersion() int {
	return a.Version
}

// RecordEvent stages a new event for persistence
func (a *EventSourcedRoot) RecordEvent(event DomainEvent) {
	a.newEvents = append(a.newEvents, event)
}

// GetNewEvents returns events recorded since the last hydration/persist
func (a *EventSourcedRoot) GetNewEvents() []DomainEvent {
	return a.newEvents
}

// ClearNewEvents marks all staged events as persisted
func (a *EventSourcedRoot) ClearNewEvents() {
	a.Version += len(a.newEvents)
	a.newEvents = nil
}

// NewEventSourcedRoot creates the root for a brand-new aggregate
func NewEventSourcedRoot() EventSourcedRoot {
	return EventSourcedRoot{
		BaseEntity: NewBaseEntity(),
		Version:    0,
		newEvents:  make([]DomainEvent, 0),
	}
}

// HydratedEventSourcedRoot creates the root for an aggregate rebuilt from
// its persisted history of the given length
func HydratedEventSourcedRoot(id uuid.UUID, createdAt time.Time, persistedEvents int) EventSourcedRoot {
	return EventSourcedRoot{
		BaseEntity: NewBaseEntityAt(id, createdAt),
		Version:    persistedEvents,
		newEvents:  make([]DomainEvent, 0),
	}
}
