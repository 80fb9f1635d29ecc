package engine

import (
	"context"
	"time"

	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/transport"
	"github.com/iudanet/handsync/pkg/api"
)

func (e *Engine) handleStateChange(state transport.State) {
	switch state {
	case transport.StateConnected:
		e.status.setConnected(true)
		e.events.emit(Event{Kind: EventConnected})

		// Накопленные офлайн изменения уходят одним сообщением
		e.flushRealtime()

		if e.cfg.Sync.Strategy == config.StrategySmart {
			e.goBackground(func(ctx context.Context) {
				if _, err := e.Sync(ctx); err != nil {
					e.logger.Debug("Sync after reconnect skipped", "error", err)
				}
			})
		}

	case transport.StateDisconnected:
		if e.status.setConnected(false) {
			e.events.emit(Event{Kind: EventDisconnected})
		}
	}
}

func (e *Engine) handleReconnectPending(attempt int, delay time.Duration) {
	e.status.setReconnectAttempts(attempt)
	e.logger.Debug("Realtime reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (e *Engine) handleGiveUp(attempts int) {
	e.status.setReconnectAttempts(attempts)
	e.events.emit(Event{Kind: EventMaxReconnectAttempts, Attempts: attempts})
}

// handleEnvelope обрабатывает входящее сообщение realtime канала
func (e *Engine) handleEnvelope(env *api.Envelope) {
	if err := env.Validate(); err != nil {
		e.logger.Warn("Dropping invalid realtime message", "error", err)
		return
	}
	if env.FromDevice == e.selfID {
		return
	}
	if env.ToDevice != "" && env.ToDevice != e.selfID {
		return
	}

	if _, known := e.registry.Get(env.FromDevice); !known {
		e.registry.Upsert(&models.Device{ID: env.FromDevice, Priority: env.Priority, IsOnline: true})
	}
	e.registry.Touch(env.FromDevice, time.Now())

	switch env.Type {
	case api.MessageSync:
		var data api.SyncData
		if err := env.DecodeData(&data); err != nil {
			e.logger.Warn("Dropping malformed sync message", "from", env.FromDevice, "error", err)
			return
		}
		e.applyInbound(e.bgCtx, env.FromDevice, data.Changes)

	case api.MessageDeviceStatus:
		var d models.Device
		if err := env.DecodeData(&d); err != nil {
			e.logger.Warn("Dropping malformed device status", "from", env.FromDevice, "error", err)
			return
		}
		if d.ID != env.FromDevice {
			return
		}
		if d.IsOnline {
			d.LastSeen = time.Now()
		}
		e.registry.Upsert(&d)
		if !d.IsOnline {
			e.registry.SetOffline(d.ID)
		}
		if updated, ok := e.registry.Get(d.ID); ok {
			e.persistDevice(updated)
		}

	case api.MessageConflict:
		var c models.Conflict
		if err := env.DecodeData(&c); err != nil {
			e.logger.Warn("Dropping malformed conflict message", "from", env.FromDevice, "error", err)
			return
		}
		e.receiveConflict(&c)

	case api.MessageHeartbeat, api.MessageBroadcast:
		// Живость отправителя уже отмечена
	}
}

// applyInbound прогоняет изменения от другого устройства тем же путем, что и
// изменения из удаленного хранилища.
func (e *Engine) applyInbound(ctx context.Context, from string, changes []*models.ChangeRecord) {
	result := &SyncResult{StartedAt: time.Now()}

	var accepted []*models.ChangeRecord
	for _, rec := range changes {
		if rec == nil || !e.categoryEnabled(rec.EntityType) {
			continue
		}
		accepted = append(accepted, rec)
	}

	e.reconcile(ctx, accepted, result)

	for _, err := range result.Errors {
		e.logger.Warn("Realtime change not applied", "from", from, "error", err.Error())
	}
	e.logger.Debug("Realtime changes processed",
		"from", from,
		"received", len(changes),
		"applied", result.Applied,
		"resolved", result.Resolved,
		"conflicts", result.Conflicts,
		"rejected", result.Rejected)
}

// receiveConflict сохраняет конфликт, обнаруженный или разрешенный другим устройством.
// Решение другого устройства закрывает открытый здесь конфликт и применяет результат локально.
func (e *Engine) receiveConflict(c *models.Conflict) {
	if c.ID == "" || c.EntityType == "" || c.EntityID == "" {
		return
	}
	records := c.Records
	if c.Result != nil {
		records = append([]*models.ChangeRecord{c.Result}, records...)
	}
	for _, rec := range records {
		if err := rec.Verify(); err != nil {
			e.logger.Warn("Dropping conflict with corrupt record", "conflict_id", c.ID, "error", err)
			return
		}
	}

	ev, ok := e.storeConflict(c)
	if ok {
		e.events.emit(ev)
	}
}

func (e *Engine) storeConflict(c *models.Conflict) (Event, bool) {
	key := c.Key()
	unlock := e.locks.Lock(key)
	defer unlock()

	open, wasOpen := e.conflicts.OpenFor(key)
	stored, created := e.conflicts.Add(c)
	e.persistConflict(stored)

	switch {
	case created && stored.IsOpen():
		e.logger.Info("Conflict received from peer", "conflict_id", stored.ID, "entity", key.String())
		return Event{Kind: EventConflictDetected, Conflict: stored}, true

	case wasOpen && open.ID == stored.ID && !stored.IsOpen():
		if known := e.knownRecord(key); known == nil || !known.IsNewerThan(stored.Result) {
			if err := e.applyLocal(e.bgCtx, stored.Result); err != nil {
				e.logger.Error("Failed to apply peer resolution",
					"conflict_id", stored.ID,
					"entity", key.String(),
					"error", err)
			}
		}
		e.logger.Info("Conflict resolved by peer",
			"conflict_id", stored.ID,
			"entity", key.String(),
			"resolution", stored.Resolution,
			"winner", stored.Result.ID)
		return Event{Kind: EventConflictResolved, Conflict: stored}, true
	}

	return Event{}, false
}

// flushRealtime отправляет все еще не отправленные pending изменения одним сообщением sync
func (e *Engine) flushRealtime() {
	if e.realtime == nil {
		return
	}

	entries := e.pending.Unsent()
	if len(entries) == 0 {
		return
	}

	records := make([]*models.ChangeRecord, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.Record)
	}
	e.sendChanges(records)
}

func (e *Engine) sendChanges(records []*models.ChangeRecord) {
	self := e.registry.Self()
	env, err := api.NewEnvelope(api.MessageSync, self.ID, "", self.Priority, time.Now().UnixMilli(), api.SyncData{Changes: records})
	if err != nil {
		e.logger.Error("Failed to build sync message", "error", err)
		return
	}

	e.realtime.Send(env)
	e.pending.MarkSent(recordIDs(records)...)
}

func (e *Engine) sendConflict(c *models.Conflict) {
	if e.realtime == nil {
		return
	}

	self := e.registry.Self()
	env, err := api.NewEnvelope(api.MessageConflict, self.ID, "", self.Priority, time.Now().UnixMilli(), c)
	if err != nil {
		e.logger.Error("Failed to build conflict message", "conflict_id", c.ID, "error", err)
		return
	}
	e.realtime.Send(env)
}

// sweepStale помечает offline устройства, которые давно не выходили на связь
func (e *Engine) sweepStale() {
	for _, id := range e.registry.MarkStale() {
		e.logger.Info("Device went stale", "device", id)
		if d, ok := e.registry.Get(id); ok {
			e.persistDevice(d)
		}
	}
}
