package engine

import (
	"context"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
)

// capture превращает локальную мутацию в ChangeRecord и добавляет его в pending.
// Никогда не блокируется на сети и не возвращает ошибок.
func (e *Engine) capture(ev storage.MutationEvent) {
	key := models.EntityKey{Type: ev.EntityType, ID: ev.EntityID}

	var payload []byte
	if ev.Operation != models.OperationDelete {
		payload = ev.Payload
	}
	if e.consumeApplying(key, integrity.Digest(payload)) {
		return
	}

	if !e.categoryEnabled(ev.EntityType) {
		e.logger.Debug("Mutation in disabled category ignored", "entity_type", ev.EntityType, "entity_id", ev.EntityID)
		return
	}

	rec := models.NewChangeRecord(ev.EntityType, ev.EntityID, ev.Operation, payload, e.clock.Now(), e.selfID)
	replaced := e.pending.Add(rec)
	e.setKnown(rec)

	e.persistOutbox(append(replaced, rec.ID)...)

	e.logger.Debug("Captured local change",
		"change_id", rec.ID,
		"entity_type", rec.EntityType,
		"entity_id", rec.EntityID,
		"operation", rec.Operation,
		"superseded", len(replaced))

	if e.realtime != nil && !e.cfg.Sync.Batch.Enabled && e.status.isConnected() {
		e.sendChanges([]*models.ChangeRecord{rec})
	}
}

// markApplying отмечает запись, которую движок сейчас пишет в локальное хранилище
func (e *Engine) markApplying(key models.EntityKey, checksum string) {
	e.applyingMu.Lock()
	e.applying[key] = checksum
	e.applyingMu.Unlock()
}

func (e *Engine) clearApplying(key models.EntityKey) {
	e.applyingMu.Lock()
	delete(e.applying, key)
	e.applyingMu.Unlock()
}

// consumeApplying сообщает, является ли мутация эхом применяемой записи, и снимает отметку
func (e *Engine) consumeApplying(key models.EntityKey, checksum string) bool {
	e.applyingMu.Lock()
	defer e.applyingMu.Unlock()

	if sum, ok := e.applying[key]; ok && sum == checksum {
		delete(e.applying, key)
		return true
	}
	return false
}

func (e *Engine) setKnown(rec *models.ChangeRecord) {
	e.knownMu.Lock()
	e.known[rec.Key()] = rec.Clone()
	e.knownMu.Unlock()
}

func (e *Engine) knownRecord(key models.EntityKey) *models.ChangeRecord {
	e.knownMu.Lock()
	defer e.knownMu.Unlock()

	return e.known[key].Clone()
}

// persistOutbox сохраняет текущее состояние записей pending set по их ID:
// ожидающие, перенесенные в список ошибок или удаленные.
func (e *Engine) persistOutbox(ids ...string) {
	if e.state == nil || len(ids) == 0 {
		return
	}
	ctx := context.Background()

	var gone []string
	for _, id := range ids {
		if entry, ok := e.pending.Get(id); ok {
			if err := e.state.SavePending(ctx, entry); err != nil {
				e.logger.Error("Failed to persist pending change", "change_id", id, "error", err)
			}
			if err := e.state.DeleteFailed(ctx, id); err != nil {
				e.logger.Error("Failed to delete failed change", "change_id", id, "error", err)
			}
			continue
		}
		if failed, ok := e.pending.GetFailed(id); ok {
			if err := e.state.SaveFailed(ctx, failed); err != nil {
				e.logger.Error("Failed to persist failed change", "change_id", id, "error", err)
			}
		}
		gone = append(gone, id)
	}

	if len(gone) > 0 {
		if err := e.state.DeletePending(ctx, gone...); err != nil {
			e.logger.Error("Failed to delete pending changes", "count", len(gone), "error", err)
		}
	}
}

func (e *Engine) persistConflict(c *models.Conflict) {
	if e.state == nil {
		return
	}
	if err := e.state.SaveConflict(context.Background(), c); err != nil {
		e.logger.Error("Failed to persist conflict", "conflict_id", c.ID, "error", err)
	}
}

func (e *Engine) persistDevice(d *models.Device) {
	if e.state == nil || d == nil {
		return
	}
	if err := e.state.SaveDevice(context.Background(), d); err != nil {
		e.logger.Error("Failed to persist device", "device", d.ID, "error", err)
	}
}

func recordIDs(records []*models.ChangeRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}
