package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/conflict"
	"github.com/iudanet/handsync/internal/models"
)

// reconcile прогоняет входящие записи одной категории через проверку целостности и
// обнаружение конфликтов и применяет результат. Источник записей - удаленное
// хранилище или realtime канал. Возвращает false, если локальное хранилище
// отказало и записи нужно получить повторно.
func (e *Engine) reconcile(ctx context.Context, incoming []*models.ChangeRecord, result *SyncResult) bool {
	valid := make([]*models.ChangeRecord, 0, len(incoming))
	for _, rec := range incoming {
		if rec.OriginDevice == e.selfID {
			// Свои изменения уже отражены локально
			continue
		}
		if err := rec.Verify(); err != nil {
			e.logger.Warn("Rejected corrupt change record",
				"change_id", rec.ID,
				"entity_type", rec.EntityType,
				"entity_id", rec.EntityID,
				"origin", rec.OriginDevice,
				"error", err)
			result.Rejected++
			result.addError(recordError(KindValidation, rec, err))
			continue
		}
		e.clock.Observe(rec.Timestamp)
		valid = append(valid, rec)
	}
	result.Pulled += len(valid)

	ok := true
	for _, g := range conflict.GroupByEntity(nil, valid) {
		if !e.reconcileEntity(ctx, g.Key, g.Remote, result) {
			ok = false
		}
		e.flushEvents(result)
	}
	return ok
}

func (e *Engine) reconcileEntity(ctx context.Context, key models.EntityKey, remote []*models.ChangeRecord, result *SyncResult) bool {
	unlock := e.locks.Lock(key)
	defer unlock()

	if _, open := e.conflicts.OpenFor(key); open {
		// Пока конфликт открыт, все новые версии сущности копятся в нем
		e.queueConflict(key, remote, result)
		return true
	}

	g := &conflict.Group{Key: key, Remote: remote}
	for _, entry := range e.pending.ByKey(key) {
		g.Local = append(g.Local, entry.Record)
	}

	if len(g.Local) == 0 {
		remote = e.dropSuperseded(key, remote, result)
		if len(remote) == 0 {
			return true
		}
		g.Remote = remote
		// Запоздавшая запись другого устройства оспаривает текущее локальное состояние
		if known := e.knownRecord(key); known != nil {
			for _, r := range remote {
				if known.IsNewerThan(r) && conflict.Conflicts(known, r) {
					g.Local = []*models.ChangeRecord{known}
					break
				}
			}
		}
	}

	if g.InConflict() {
		return e.resolve(ctx, g, result)
	}

	// Одинаковое содержимое уже есть в удаленном хранилище: отправлять нечего
	var duplicates []string
	for _, l := range g.Local {
		for _, r := range g.Remote {
			if l.SameContent(r) {
				duplicates = append(duplicates, l.ID)
				break
			}
		}
	}
	if len(duplicates) > 0 {
		e.pending.Ack(duplicates...)
		e.persistOutbox(duplicates...)
	}

	for _, rec := range g.Remote {
		if known := e.knownRecord(key); known != nil && !rec.IsNewerThan(known) {
			result.Skipped++
			continue
		}
		if err := e.applyLocal(ctx, rec); err != nil {
			e.logger.Error("Failed to apply change locally",
				"change_id", rec.ID,
				"entity_type", rec.EntityType,
				"entity_id", rec.EntityID,
				"error", err)
			result.addError(recordError(KindStorage, rec, err))
			return false
		}
		result.Applied++
	}
	return true
}

// dropSuperseded отбрасывает записи, которые старше уже примененной версии того же устройства
func (e *Engine) dropSuperseded(key models.EntityKey, remote []*models.ChangeRecord, result *SyncResult) []*models.ChangeRecord {
	known := e.knownRecord(key)
	if known == nil {
		return remote
	}

	out := remote[:0:0]
	for _, r := range remote {
		if !r.IsNewerThan(known) && (r.OriginDevice == known.OriginDevice || r.SameContent(known)) {
			result.Skipped++
			continue
		}
		out = append(out, r)
	}
	return out
}

// resolve разрешает конфликт по настроенной политике или ставит его в очередь
func (e *Engine) resolve(ctx context.Context, g *conflict.Group, result *SyncResult) bool {
	all := make([]*models.ChangeRecord, 0, len(g.Local)+len(g.Remote))
	all = append(all, g.Local...)
	all = append(all, g.Remote...)

	d, err := e.resolver.Resolve(e.policy, all)
	if err != nil {
		e.logger.Error("Failed to resolve conflict", "entity", g.Key.String(), "error", err)
		e.queueConflict(g.Key, all, result)
		return true
	}
	if d.Manual {
		e.queueConflict(g.Key, all, result)
		return true
	}

	if err := e.applyDecision(ctx, g.Key, d); err != nil {
		e.logger.Error("Failed to apply conflict resolution",
			"entity", g.Key.String(),
			"winner", d.Winner.ID,
			"error", err)
		result.addError(recordError(KindStorage, d.Winner, err))
		return false
	}

	c := e.conflicts.Record(g.Key, all, d)
	e.persistConflict(c)
	result.Resolved++

	e.logger.Info("Conflict resolved automatically",
		"entity", g.Key.String(),
		"resolution", d.Resolution,
		"winner", d.Winner.ID,
		"reissued", d.Reissued,
		"discarded", len(d.Discarded))

	result.deferred = append(result.deferred, Event{Kind: EventConflictResolved, Conflict: c})
	return true
}

// queueConflict переносит локальные изменения сущности и переданные записи в открытый конфликт
func (e *Engine) queueConflict(key models.EntityKey, records []*models.ChangeRecord, result *SyncResult) {
	taken := e.pending.Take(key)
	e.persistOutbox(recordIDs(taken)...)

	records = append(taken, records...)
	if len(records) == 0 {
		return
	}

	c, created := e.conflicts.Open(key, records)
	e.persistConflict(c)
	result.Queued += len(taken)

	if !created {
		e.logger.Debug("Records added to open conflict", "conflict_id", c.ID, "records", len(c.Records))
		return
	}
	result.Conflicts++

	e.logger.Info("Conflict queued for manual resolution",
		"conflict_id", c.ID,
		"entity", key.String(),
		"records", len(c.Records))

	result.deferred = append(result.deferred, Event{Kind: EventConflictDetected, Conflict: c})
	e.sendConflict(c)
}

// applyDecision приводит хранилища к решению: проигравшие локальные изменения
// снимаются с отправки, созданный этим устройством победитель (результат слияния
// или переизданная запись) ставится в очередь, победитель применяется локально.
// Вызывается под блокировкой сущности.
func (e *Engine) applyDecision(ctx context.Context, key models.EntityKey, d *conflict.Decision) error {
	if err := e.applyLocal(ctx, d.Winner); err != nil {
		return err
	}

	var dropped []string
	for _, entry := range e.pending.ByKey(key) {
		if entry.Record.ID != d.Winner.ID {
			dropped = append(dropped, entry.Record.ID)
		}
	}
	if len(dropped) > 0 {
		e.pending.Ack(dropped...)
		e.persistOutbox(dropped...)
	}

	if d.Reissued {
		e.pending.Add(d.Winner)
		e.persistOutbox(d.Winner.ID)
	}

	return nil
}

// applyLocal пишет запись в локальное хранилище. Запись с тем же checksum, что и
// текущее состояние, не применяется повторно. Уведомление о мутации, которое
// провайдер доставляет синхронно во время записи, подавляется, чтобы запись не
// была захвачена как локальное изменение.
func (e *Engine) applyLocal(ctx context.Context, rec *models.ChangeRecord) error {
	key := rec.Key()

	current, err := e.local.Read(ctx, rec.EntityType, rec.EntityID)
	exists := err == nil
	if err != nil && !errors.Is(err, storage.ErrEntityNotFound) {
		return fmt.Errorf("failed to read %s: %w", key, err)
	}

	if rec.Operation == models.OperationDelete {
		if !exists {
			e.setKnown(rec)
			return nil
		}
		e.markApplying(key, rec.Checksum)
		defer e.clearApplying(key)
		err = e.local.Delete(ctx, rec.EntityType, rec.EntityID)
	} else {
		if exists && current.Checksum == rec.Checksum {
			e.setKnown(rec)
			return nil
		}
		e.markApplying(key, rec.Checksum)
		defer e.clearApplying(key)
		if exists {
			err = e.local.Update(ctx, rec.EntityType, rec.EntityID, rec.Payload)
		} else {
			err = e.local.Create(ctx, rec.EntityType, rec.EntityID, rec.Payload)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to apply %s to %s: %w", rec.Operation, key, err)
	}

	e.setKnown(rec)
	e.logger.Debug("Applied change",
		"change_id", rec.ID,
		"entity", key.String(),
		"operation", rec.Operation,
		"origin", rec.OriginDevice)

	return nil
}
