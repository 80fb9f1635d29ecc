package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
)

// Сущности хранятся во вложенных buckets: entities/<entityType>/<entityID> -> JSON storage.Entity

type mutation = storage.MutationEvent

// Create stores a new entity
func (s *Storage) Create(ctx context.Context, entityType, entityID string, payload []byte) error {
	return s.write(entityType, entityID, models.OperationCreate, payload, func(existing []byte) error {
		if existing != nil {
			return storage.ErrEntityExists
		}
		return nil
	})
}

// Update replaces the payload of an existing entity
func (s *Storage) Update(ctx context.Context, entityType, entityID string, payload []byte) error {
	return s.write(entityType, entityID, models.OperationUpdate, payload, func(existing []byte) error {
		if existing == nil {
			return storage.ErrEntityNotFound
		}
		return nil
	})
}

// Delete removes an entity
func (s *Storage) Delete(ctx context.Context, entityType, entityID string) error {
	return s.write(entityType, entityID, models.OperationDelete, nil, func(existing []byte) error {
		if existing == nil {
			return storage.ErrEntityNotFound
		}
		return nil
	})
}

func (s *Storage) write(entityType, entityID string, op models.Operation, payload []byte, check func(existing []byte) error) error {
	if s.db == nil {
		return storage.ErrStorageClosed
	}
	if entityType == "" || entityID == "" {
		return fmt.Errorf("entity type and id are required")
	}
	if op != models.OperationDelete && !json.Valid(payload) {
		return fmt.Errorf("payload of %s:%s is not valid json", entityType, entityID)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		root, err := bucket(tx, bucketEntities)
		if err != nil {
			return err
		}

		b, err := root.CreateBucketIfNotExists([]byte(entityType))
		if err != nil {
			return fmt.Errorf("failed to create bucket for %s: %w", entityType, err)
		}

		if err := check(b.Get([]byte(entityID))); err != nil {
			return err
		}

		if op == models.OperationDelete {
			return b.Delete([]byte(entityID))
		}

		data, err := json.Marshal(&storage.Entity{
			Type:      entityType,
			ID:        entityID,
			Payload:   payload,
			Checksum:  integrity.Digest(payload),
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to marshal entity: %w", err)
		}

		return b.Put([]byte(entityID), data)
	})
	if err != nil {
		if errors.Is(err, storage.ErrEntityExists) || errors.Is(err, storage.ErrEntityNotFound) {
			return err
		}
		return fmt.Errorf("failed to %s %s:%s: %w", op, entityType, entityID, err)
	}

	// Подписчики уведомляются после фиксации транзакции
	s.notify(mutation{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    clonePayload(payload, op),
	})

	return nil
}

// Read returns an entity by type and id
func (s *Storage) Read(ctx context.Context, entityType, entityID string) (*storage.Entity, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entity *storage.Entity

	err := s.db.View(func(tx *bbolt.Tx) error {
		root, err := bucket(tx, bucketEntities)
		if err != nil {
			return err
		}

		b := root.Bucket([]byte(entityType))
		if b == nil {
			return storage.ErrEntityNotFound
		}

		data := b.Get([]byte(entityID))
		if data == nil {
			return storage.ErrEntityNotFound
		}

		entity = &storage.Entity{}
		if err := json.Unmarshal(data, entity); err != nil {
			return fmt.Errorf("failed to unmarshal entity: %w", err)
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return entity, nil
}

// List returns all entities of one type sorted by id
func (s *Storage) List(ctx context.Context, entityType string) ([]*storage.Entity, error) {
	if s.db == nil {
		return nil, storage.ErrStorageClosed
	}

	var entities []*storage.Entity

	err := s.db.View(func(tx *bbolt.Tx) error {
		root, err := bucket(tx, bucketEntities)
		if err != nil {
			return err
		}

		b := root.Bucket([]byte(entityType))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			entity := &storage.Entity{}
			if err := json.Unmarshal(v, entity); err != nil {
				return fmt.Errorf("failed to unmarshal entity %s: %w", k, err)
			}
			entities = append(entities, entity)
			return nil
		})
	})

	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })

	return entities, nil
}

// Subscribe registers a mutation callback
func (s *Storage) Subscribe(fn func(storage.MutationEvent)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Storage) notify(m mutation) {
	s.mu.RLock()
	subs := make([]func(mutation), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(m)
	}
}

func clonePayload(payload []byte, op models.Operation) json.RawMessage {
	if op == models.OperationDelete || payload == nil {
		return nil
	}
	out := make(json.RawMessage, len(payload))
	copy(out, payload)
	return out
}

var (
	_ storage.LocalProvider = (*Storage)(nil)
	_ storage.StateStore    = (*Storage)(nil)
	_ storage.AuthStorage   = (*Storage)(nil)
)
