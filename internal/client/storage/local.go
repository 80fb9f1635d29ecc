package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/iudanet/handsync/internal/models"
)

//go:generate moq -out localprovider_mock.go . LocalProvider

// MutationEvent describes one local mutation delivered to subscribers.
type MutationEvent struct {
	EntityType string
	EntityID   string
	Operation  models.Operation
	Payload    json.RawMessage
}

// Entity is the current state of one record in the local store.
type Entity struct {
	UpdatedAt time.Time       `json:"updated_at"`
	Type      string          `json:"entity_type"`
	ID        string          `json:"entity_id"`
	Checksum  string          `json:"checksum"`
	Payload   json.RawMessage `json:"payload"`
}

// LocalProvider is the application's local entity store.
// Every successful mutation is reported to subscribers synchronously, after the
// change is durable.
type LocalProvider interface {
	// Create stores a new entity. Returns ErrEntityExists if it already exists.
	Create(ctx context.Context, entityType, entityID string, payload []byte) error

	// Read returns an entity. Returns ErrEntityNotFound if it doesn't exist.
	Read(ctx context.Context, entityType, entityID string) (*Entity, error)

	// Update replaces the payload of an existing entity.
	// Returns ErrEntityNotFound if it doesn't exist.
	Update(ctx context.Context, entityType, entityID string, payload []byte) error

	// Delete removes an entity. Returns ErrEntityNotFound if it doesn't exist.
	Delete(ctx context.Context, entityType, entityID string) error

	// List returns all entities of one type.
	List(ctx context.Context, entityType string) ([]*Entity, error)

	// Subscribe registers a mutation callback and returns a function removing it.
	Subscribe(fn func(MutationEvent)) (unsubscribe func())
}
