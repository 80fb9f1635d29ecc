package models

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/handsync/internal/integrity"
)

// Operation тип изменения сущности
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Valid сообщает, является ли операция одной из известных
func (o Operation) Valid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// ErrMalformedRecord is returned by ChangeRecord.Validate.
var ErrMalformedRecord = errors.New("malformed change record")

// EntityKey identifies one logical record in any store.
type EntityKey struct {
	Type string `json:"entity_type"`
	ID   string `json:"entity_id"`
}

func (k EntityKey) String() string {
	return k.Type + ":" + k.ID
}

// ChangeRecord представляет одно изменение (create/update/delete) одной сущности.
// Единица синхронизации между локальным хранилищем, удаленным хранилищем и другими устройствами.
// После создания запись не изменяется: исправления порождают новые записи.
type ChangeRecord struct {
	ID           string          `json:"id"`                // ID уникальный идентификатор изменения (UUID)
	EntityType   string          `json:"entity_type"`       // EntityType тип сущности, например "handHistory"
	EntityID     string          `json:"entity_id"`         // EntityID идентификатор сущности внутри типа
	Operation    Operation       `json:"operation"`         // Operation create | update | delete
	Payload      json.RawMessage `json:"payload,omitempty"` // Payload снимок данных, отсутствует для delete
	OriginDevice string          `json:"origin_device"`     // OriginDevice устройство, создавшее изменение
	Checksum     string          `json:"checksum"`          // Checksum дайджест Payload
	Timestamp    int64           `json:"timestamp"`         // Timestamp unix ms на устройстве-источнике
}

// NewChangeRecord creates an immutable change record with a fresh id and checksum.
// The payload is dropped for deletes.
func NewChangeRecord(entityType, entityID string, op Operation, payload []byte, timestamp int64, origin string) *ChangeRecord {
	var data json.RawMessage
	if op != OperationDelete && len(payload) > 0 {
		data = make(json.RawMessage, len(payload))
		copy(data, payload)
	}

	return &ChangeRecord{
		ID:           uuid.New().String(),
		EntityType:   entityType,
		EntityID:     entityID,
		Operation:    op,
		Payload:      data,
		Timestamp:    timestamp,
		OriginDevice: origin,
		Checksum:     integrity.Digest(data),
	}
}

// Key returns the entity the record targets.
func (r *ChangeRecord) Key() EntityKey {
	return EntityKey{Type: r.EntityType, ID: r.EntityID}
}

// Validate checks the structural invariants of a record, without the checksum.
func (r *ChangeRecord) Validate() error {
	switch {
	case r.ID == "":
		return fmt.Errorf("%w: empty id", ErrMalformedRecord)
	case r.EntityType == "" || r.EntityID == "":
		return fmt.Errorf("%w: empty entity key", ErrMalformedRecord)
	case !r.Operation.Valid():
		return fmt.Errorf("%w: unknown operation %q", ErrMalformedRecord, r.Operation)
	case r.Operation == OperationDelete && len(r.Payload) > 0:
		return fmt.Errorf("%w: delete carries payload", ErrMalformedRecord)
	case r.Operation != OperationDelete && len(r.Payload) == 0:
		return fmt.Errorf("%w: %s without payload", ErrMalformedRecord, r.Operation)
	case r.OriginDevice == "":
		return fmt.Errorf("%w: empty origin device", ErrMalformedRecord)
	}
	return nil
}

// Verify validates the structure of the record and its checksum.
func (r *ChangeRecord) Verify() error {
	if err := r.Validate(); err != nil {
		return err
	}
	if err := integrity.Verify(r.Payload, r.Checksum); err != nil {
		return fmt.Errorf("record %s: %w", r.ID, err)
	}
	return nil
}

// SameContent reports whether both records describe the same change.
// Records with identical checksums are the same change regardless of timestamp.
func (r *ChangeRecord) SameContent(other *ChangeRecord) bool {
	return r.Checksum == other.Checksum
}

// IsNewerThan сравнивает две записи по правилу newest:
// 1. Больший Timestamp выигрывает
// 2. При равных Timestamp сравнивается OriginDevice (лексикографически)
func (r *ChangeRecord) IsNewerThan(other *ChangeRecord) bool {
	if r.Timestamp != other.Timestamp {
		return r.Timestamp > other.Timestamp
	}
	if r.OriginDevice != other.OriginDevice {
		return r.OriginDevice > other.OriginDevice
	}
	// Последний шаг только для детерминизма
	return r.ID > other.ID
}

// Clone создает глубокую копию записи
func (r *ChangeRecord) Clone() *ChangeRecord {
	if r == nil {
		return nil
	}

	clone := *r
	if r.Payload != nil {
		clone.Payload = make(json.RawMessage, len(r.Payload))
		copy(clone.Payload, r.Payload)
	}
	return &clone
}
