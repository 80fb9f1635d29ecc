package engine

import (
	"context"
	"fmt"

	"github.com/iudanet/handsync/internal/conflict"
	"github.com/iudanet/handsync/internal/models"
)

// ResolveConflict closes an open conflict with an explicit resolution
// (local, remote or merge; newest and priority are accepted as well).
// The winner is applied locally and delivered to the remote store; the discarded
// records stay in the conflict history.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, resolution models.Resolution) (*models.Conflict, error) {
	if !e.initialized.Load() {
		return nil, ErrNotInitialized
	}

	c, err := e.conflicts.Get(conflictID)
	if err != nil {
		return nil, err
	}
	if !c.IsOpen() {
		return nil, conflict.ErrAlreadyResolved
	}

	resolved, err := e.resolveLocked(ctx, c, resolution)
	if err != nil {
		return nil, err
	}

	e.events.emit(Event{Kind: EventConflictResolved, Conflict: resolved})
	e.sendConflict(resolved)

	return resolved, nil
}

func (e *Engine) resolveLocked(ctx context.Context, c *models.Conflict, resolution models.Resolution) (*models.Conflict, error) {
	key := c.Key()
	unlock := e.locks.Lock(key)
	defer unlock()

	// Конфликт мог быть разрешен, пока ждали блокировку
	c, err := e.conflicts.Get(c.ID)
	if err != nil {
		return nil, err
	}
	if !c.IsOpen() {
		return nil, conflict.ErrAlreadyResolved
	}

	// Локальные изменения, сделанные после открытия конфликта, участвуют в решении
	if taken := e.pending.Take(key); len(taken) > 0 {
		e.persistOutbox(recordIDs(taken)...)
		c, _ = e.conflicts.Open(key, taken)
	}

	d, err := e.resolver.ResolveAs(resolution, c.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve conflict %s: %w", c.ID, err)
	}

	if err := e.applyLocal(ctx, d.Winner); err != nil {
		return nil, fmt.Errorf("failed to apply resolution of %s: %w", c.ID, err)
	}

	resolved, err := e.conflicts.Resolve(c.ID, d)
	if err != nil {
		return nil, err
	}
	e.persistConflict(resolved)

	e.deliver(ctx, d.Winner)

	e.logger.Info("Conflict resolved",
		"conflict_id", resolved.ID,
		"entity", key.String(),
		"requested", resolution,
		"resolution", d.Resolution,
		"winner", d.Winner.ID,
		"discarded", len(d.Discarded))

	return resolved, nil
}

// deliver ставит запись в очередь и сразу пытается отправить ее в удаленное хранилище.
// Неудачная отправка оставляет запись в pending до следующей синхронизации.
// Вызывается под блокировкой сущности.
func (e *Engine) deliver(ctx context.Context, rec *models.ChangeRecord) {
	e.pending.Add(rec)
	e.persistOutbox(rec.ID)

	err := e.pushRecord(ctx, rec)
	if err == nil {
		e.pending.Ack(rec.ID)
		e.persistOutbox(rec.ID)
		return
	}

	if classify(err) == KindValidation {
		e.pending.Fail(rec.ID, err.Error())
	} else {
		e.pending.RecordFailure(rec.ID, err.Error(), e.cfg.Sync.MaxPushRetries)
	}
	e.persistOutbox(rec.ID)

	e.logger.Warn("Failed to deliver resolved change, will retry on next sync",
		"change_id", rec.ID,
		"entity", rec.Key().String(),
		"error", err)
}
