package models

import "time"

// Resolution способ разрешения конфликта
type Resolution string

const (
	ResolutionLocal    Resolution = "local"
	ResolutionRemote   Resolution = "remote"
	ResolutionNewest   Resolution = "newest"
	ResolutionPriority Resolution = "priority"
	ResolutionMerge    Resolution = "merge"
)

// ConflictStatus состояние конфликта
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// Conflict описывает конкурирующие изменения одной сущности с разными checksum.
// Конфликт хранится до явного разрешения, а после разрешения сохраняет историю:
// выбранное решение и отброшенные записи.
type Conflict struct {
	DetectedAt time.Time              `json:"detected_at"`          // DetectedAt время обнаружения
	ResolvedAt time.Time              `json:"resolved_at,omitzero"` // ResolvedAt время разрешения
	Result     *ChangeRecord          `json:"result,omitempty"`     // Result итоговая авторитетная запись
	ID         string                 `json:"id"`                   // ID идентификатор конфликта (UUID)
	EntityType string                 `json:"entity_type"`          // EntityType тип сущности
	EntityID   string                 `json:"entity_id"`            // EntityID идентификатор сущности
	Status     ConflictStatus         `json:"status"`               // Status open | resolved
	Resolution Resolution             `json:"resolution,omitempty"` // Resolution примененное решение
	Records    []*ChangeRecord        `json:"records"`              // Records конкурирующие записи
	History    []ConflictHistoryEntry `json:"history,omitempty"`    // History журнал решений
}

// ConflictHistoryEntry one resolution decision kept for audit.
type ConflictHistoryEntry struct {
	At         time.Time       `json:"at"`
	Resolution Resolution      `json:"resolution"`
	WinnerID   string          `json:"winner_id"`
	Discarded  []*ChangeRecord `json:"discarded"`
}

// Key returns the entity the conflict is about.
func (c *Conflict) Key() EntityKey {
	return EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// IsOpen reports whether the conflict still waits for a resolution.
func (c *Conflict) IsOpen() bool {
	return c.Status == ConflictOpen
}

// Clone создает глубокую копию конфликта
func (c *Conflict) Clone() *Conflict {
	if c == nil {
		return nil
	}

	clone := *c
	clone.Result = c.Result.Clone()
	clone.Records = cloneRecords(c.Records)
	if c.History != nil {
		clone.History = make([]ConflictHistoryEntry, len(c.History))
		for i, h := range c.History {
			h.Discarded = cloneRecords(h.Discarded)
			clone.History[i] = h
		}
	}
	return &clone
}

func cloneRecords(records []*ChangeRecord) []*ChangeRecord {
	if records == nil {
		return nil
	}
	out := make([]*ChangeRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
