package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
)

// Outcome итог запуска синхронизации
type Outcome string

const (
	// OutcomeSynced все категории синхронизированы без ошибок
	OutcomeSynced Outcome = "synced"
	// OutcomePartial часть категорий или записей завершилась ошибкой
	OutcomePartial Outcome = "partial"
)

// SyncResult contains sync run results
type SyncResult struct {
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Outcome    Outcome     `json:"outcome"`
	Errors     []SyncError `json:"errors,omitempty"`
	Unchanged  []string    `json:"unchanged,omitempty"` // категории, пропущенные по совпадению дайджестов
	Pulled     int         `json:"pulled"`              // количество полученных корректных записей
	Applied    int         `json:"applied"`             // количество примененных локально записей
	Skipped    int         `json:"skipped"`             // количество устаревших или повторных записей
	Pushed     int         `json:"pushed"`              // количество отправленных записей
	Rejected   int         `json:"rejected"`            // количество отвергнутых записей (ошибки целостности)
	Resolved   int         `json:"resolved"`            // количество автоматически разрешенных конфликтов
	Conflicts  int         `json:"conflicts"`           // количество новых конфликтов для ручного решения
	Queued     int         `json:"queued"`              // количество локальных изменений, перенесенных в конфликты
	Cancelled  bool        `json:"cancelled"`           // запуск остановлен между категориями

	// события, отложенные до снятия блокировки сущности
	deferred []Event
}

func (r *SyncResult) addError(err SyncError) {
	r.Errors = append(r.Errors, err)
}

// flushEvents отправляет отложенные события. Вызывается без блокировок сущностей,
// поэтому обработчики могут вызывать методы движка.
func (e *Engine) flushEvents(result *SyncResult) {
	events := result.deferred
	result.deferred = nil
	for _, ev := range events {
		e.events.emit(ev)
	}
}

// Sync performs a reconciliation pass over every enabled category.
// Categories whose local and remote digests match and that have nothing to push
// are skipped. A failure in one category does not stop the others; the result
// reports it and Outcome becomes partial. ErrSyncInProgress is returned when
// another run is active.
func (e *Engine) Sync(ctx context.Context) (*SyncResult, error) {
	return e.run(ctx, false)
}

// ForceSync performs a reconciliation pass without the digest pre-filter.
func (e *Engine) ForceSync(ctx context.Context) (*SyncResult, error) {
	return e.run(ctx, true)
}

func (e *Engine) run(ctx context.Context, force bool) (*SyncResult, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if !e.initialized.Load() {
		return nil, ErrNotInitialized
	}
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer e.running.Store(false)

	result := &SyncResult{StartedAt: time.Now()}
	categories := e.cfg.EnabledCategories()

	e.logger.Info("Starting synchronization",
		"categories", len(categories),
		"pending", e.pending.Len(),
		"force", force)

	e.refreshDevices(ctx)

	for _, category := range categories {
		// Отмена проверяется только на границе категорий
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}
		e.syncCategory(ctx, category, force, result)
	}

	result.FinishedAt = time.Now()
	result.Outcome = OutcomeSynced
	if len(result.Errors) > 0 || result.Cancelled {
		result.Outcome = OutcomePartial
	}

	e.status.setLastErrors(result.Errors)
	if result.Outcome == OutcomeSynced {
		e.status.setLastSync(result.FinishedAt)
	}
	e.saveRunState(result)

	e.logger.Info("Synchronization completed",
		"outcome", result.Outcome,
		"pulled", result.Pulled,
		"applied", result.Applied,
		"pushed", result.Pushed,
		"resolved", result.Resolved,
		"conflicts", result.Conflicts,
		"rejected", result.Rejected,
		"errors", len(result.Errors),
		"duration", result.FinishedAt.Sub(result.StartedAt))

	e.events.emit(Event{Kind: EventSynced, Result: result})

	return result, nil
}

func (e *Engine) saveRunState(result *SyncResult) {
	if e.state == nil {
		return
	}
	ctx := context.Background()

	if result.Outcome == OutcomeSynced {
		if err := e.state.SaveLastSyncTimestamp(ctx, result.FinishedAt.UnixMilli()); err != nil {
			e.logger.Error("Failed to save last sync timestamp", "error", err)
		}
	}
	if err := e.state.SaveClock(ctx, e.clock.Last()); err != nil {
		e.logger.Error("Failed to save clock", "error", err)
	}
}

// syncCategory сверяет одну категорию: pull, обнаружение конфликтов, push.
// Ошибки записываются в result и не прерывают остальные категории.
func (e *Engine) syncCategory(ctx context.Context, category string, force bool, result *SyncResult) {
	log := e.logger.With("category", category)

	if !force && len(e.pending.ByEntityType(category)) == 0 {
		same, err := e.digestsMatch(ctx, category)
		if err != nil {
			log.Warn("Failed to compare collection digests", "error", err)
			result.addError(categoryError(errorKind(err), category, err))
			return
		}
		if same {
			log.Debug("Collection digests match, nothing to do")
			result.Unchanged = append(result.Unchanged, category)
			return
		}
	}

	cursor, err := e.cursor(ctx, category)
	if err != nil {
		result.addError(categoryError(KindStorage, category, err))
		return
	}

	callCtx, cancel := e.remoteContext(ctx)
	changes, next, err := e.remote.ChangesSince(callCtx, category, cursor)
	cancel()
	if err != nil {
		log.Warn("Failed to fetch remote changes", "cursor", cursor, "error", err)
		result.addError(categoryError(classify(err), category, err))
		return
	}

	log.Debug("Fetched remote changes", "count", len(changes), "cursor", cursor, "next", next)

	applied := e.reconcile(ctx, changes, result)

	e.push(ctx, category, result)

	if applied && next != cursor {
		e.saveCursor(category, next)
	}
}

// digestsMatch сравнивает дайджест локальной коллекции с дайджестом удаленной
func (e *Engine) digestsMatch(ctx context.Context, category string) (bool, error) {
	entities, err := e.local.List(ctx, category)
	if err != nil {
		return false, &localError{err: fmt.Errorf("failed to list local %s: %w", category, err)}
	}
	checksums := make(map[string]string, len(entities))
	for _, entity := range entities {
		checksums[entity.ID] = entity.Checksum
	}
	local := integrity.CollectionDigest(checksums)

	callCtx, cancel := e.remoteContext(ctx)
	defer cancel()

	remote, err := e.remote.Checksum(callCtx, category)
	if err != nil {
		return false, fmt.Errorf("failed to get remote checksum: %w", err)
	}

	return local == remote, nil
}

// localError отмечает сбой локального хранилища
type localError struct {
	err error
}

func (e *localError) Error() string { return e.err.Error() }
func (e *localError) Unwrap() error { return e.err }

func errorKind(err error) ErrorKind {
	var le *localError
	if errors.As(err, &le) {
		return KindStorage
	}
	return classify(err)
}

// push отправляет pending записи категории в порядке timestamp.
// Сетевая ошибка оставляет запись в очереди и останавливает отправку категории.
func (e *Engine) push(ctx context.Context, category string, result *SyncResult) {
	for _, entry := range e.pending.ByEntityType(category) {
		rec := entry.Record
		key := rec.Key()

		unlock := e.locks.Lock(key)

		if _, stillPending := e.pending.Get(rec.ID); !stillPending {
			unlock()
			continue
		}
		if _, open := e.conflicts.OpenFor(key); open {
			e.queueConflict(key, nil, result)
			unlock()
			e.flushEvents(result)
			continue
		}

		err := e.pushRecord(ctx, rec)
		if err == nil {
			e.pending.Ack(rec.ID)
			e.persistOutbox(rec.ID)
			result.Pushed++
			unlock()
			continue
		}
		unlock()

		kind := classify(err)
		result.addError(recordError(kind, rec, err))

		if kind == KindValidation {
			e.logger.Warn("Remote store rejected change", "change_id", rec.ID, "entity", key.String(), "error", err)
			e.pending.Fail(rec.ID, err.Error())
			e.persistOutbox(rec.ID)
			continue
		}

		exhausted := e.pending.RecordFailure(rec.ID, err.Error(), e.cfg.Sync.MaxPushRetries)
		e.persistOutbox(rec.ID)
		e.logger.Warn("Failed to push change",
			"change_id", rec.ID,
			"entity", key.String(),
			"attempts", entry.Attempts+1,
			"gave_up", exhausted,
			"error", err)
		return
	}
}

func (e *Engine) pushRecord(ctx context.Context, rec *models.ChangeRecord) error {
	callCtx, cancel := e.remoteContext(ctx)
	defer cancel()

	switch rec.Operation {
	case models.OperationCreate:
		return e.remote.Create(callCtx, rec)
	case models.OperationUpdate:
		return e.remote.Update(callCtx, rec)
	case models.OperationDelete:
		return e.remote.Delete(callCtx, rec)
	}
	return fmt.Errorf("%w: unknown operation %q", storage.ErrRejected, rec.Operation)
}

func (e *Engine) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.Sync.RemoteTimeout)
}

// refreshDevices публикует запись текущего устройства и обновляет реестр из
// общего каталога устройств, если удаленное хранилище его поддерживает.
func (e *Engine) refreshDevices(ctx context.Context) {
	dir, ok := e.remote.(storage.DeviceDirectory)
	if !ok {
		return
	}

	callCtx, cancel := e.remoteContext(ctx)
	defer cancel()

	if err := dir.PutDevice(callCtx, e.registry.Self()); err != nil {
		e.logger.Warn("Failed to publish device", "error", err)
		return
	}

	devices, err := dir.ListDevices(callCtx)
	if err != nil {
		e.logger.Warn("Failed to list devices", "error", err)
		return
	}
	for _, d := range devices {
		if d.ID == e.selfID {
			continue
		}
		// Онлайн-статус знает только realtime канал
		d.IsOnline = false
		if existing, ok := e.registry.Get(d.ID); ok {
			d.IsOnline = existing.IsOnline
		}
		if e.registry.Upsert(d) {
			e.logger.Info("Discovered device", "device", d.ID, "name", d.Name, "priority", d.Priority)
		}
		if updated, ok := e.registry.Get(d.ID); ok {
			e.persistDevice(updated)
		}
	}
}

func (e *Engine) cursor(ctx context.Context, category string) (int64, error) {
	e.cursorMu.Lock()
	defer e.cursorMu.Unlock()

	if c, ok := e.cursors[category]; ok {
		return c, nil
	}
	if e.state == nil {
		return 0, nil
	}

	c, err := e.state.GetCursor(ctx, category)
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor: %w", err)
	}
	e.cursors[category] = c
	return c, nil
}

func (e *Engine) saveCursor(category string, cursor int64) {
	e.cursorMu.Lock()
	e.cursors[category] = cursor
	e.cursorMu.Unlock()

	if e.state == nil {
		return
	}
	if err := e.state.SaveCursor(context.Background(), category, cursor); err != nil {
		e.logger.Error("Failed to save cursor", "category", category, "error", err)
	}
}
