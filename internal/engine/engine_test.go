package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/client/storage/boltdb"
	"github.com/iudanet/handsync/internal/clock"
	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/conflict"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memRemote удаленное хранилище в памяти с журналом изменений
type memRemote struct {
	log         []*models.ChangeRecord
	ids         map[string]bool
	failType    map[string]error // ошибка ChangesSince и Checksum по типу сущности
	failPush    map[string]error // ошибка записи по ID сущности
	devices     map[string]*models.Device
	changeCalls map[string]int
	mu          sync.Mutex
}

func newMemRemote() *memRemote {
	return &memRemote{
		ids:         make(map[string]bool),
		failType:    make(map[string]error),
		failPush:    make(map[string]error),
		devices:     make(map[string]*models.Device),
		changeCalls: make(map[string]int),
	}
}

func (m *memRemote) store(rec *models.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failPush[rec.EntityID]; err != nil {
		return err
	}
	if m.ids[rec.ID] {
		return nil
	}
	m.ids[rec.ID] = true
	m.log = append(m.log, rec.Clone())
	return nil
}

// inject добавляет запись, как если бы ее отправило другое устройство
func (m *memRemote) inject(rec *models.ChangeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ids[rec.ID] = true
	m.log = append(m.log, rec.Clone())
}

func (m *memRemote) Create(ctx context.Context, rec *models.ChangeRecord) error { return m.store(rec) }
func (m *memRemote) Update(ctx context.Context, rec *models.ChangeRecord) error { return m.store(rec) }
func (m *memRemote) Delete(ctx context.Context, rec *models.ChangeRecord) error { return m.store(rec) }

func (m *memRemote) Read(ctx context.Context, entityType, entityID string) (*models.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if latest := m.latestLocked(models.EntityKey{Type: entityType, ID: entityID}); latest != nil {
		return latest.Clone(), nil
	}
	return nil, storage.ErrEntityNotFound
}

func (m *memRemote) latestLocked(key models.EntityKey) *models.ChangeRecord {
	var latest *models.ChangeRecord
	for _, r := range m.log {
		if r.Key() == key && (latest == nil || r.IsNewerThan(latest)) {
			latest = r
		}
	}
	return latest
}

func (m *memRemote) ChangesSince(ctx context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changeCalls[entityType]++
	if err := m.failType[entityType]; err != nil {
		return nil, 0, err
	}

	var out []*models.ChangeRecord
	for i := int(since); i < len(m.log); i++ {
		if m.log[i].EntityType == entityType {
			out = append(out, m.log[i].Clone())
		}
	}
	return out, int64(len(m.log)), nil
}

func (m *memRemote) Checksum(ctx context.Context, entityType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failType[entityType]; err != nil {
		return "", err
	}

	checksums := make(map[string]string)
	seen := make(map[models.EntityKey]bool)
	for _, r := range m.log {
		if r.EntityType != entityType || seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		if latest := m.latestLocked(r.Key()); latest.Operation != models.OperationDelete {
			checksums[latest.EntityID] = latest.Checksum
		}
	}
	return integrity.CollectionDigest(checksums), nil
}

func (m *memRemote) PutDevice(ctx context.Context, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.devices[d.ID] = d.Clone()
	return nil
}

func (m *memRemote) ListDevices(ctx context.Context) ([]*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Device, 0, len(m.devices))
	for _, d := range m.devices {
		out = append(out, d.Clone())
	}
	return out, nil
}

// from возвращает записи журнала, созданные устройством origin
func (m *memRemote) from(origin string) []*models.ChangeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.ChangeRecord
	for _, r := range m.log {
		if r.OriginDevice == origin {
			out = append(out, r.Clone())
		}
	}
	return out
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Device.ID = "device-a"
	cfg.Device.Name = "laptop"
	cfg.Device.Priority = 5
	cfg.Sync.Strategy = config.StrategyManual
	cfg.Sync.Throttle = 0
	cfg.Sync.RemoteTimeout = 5 * time.Second
	cfg.Sync.MaxPushRetries = 3
	return cfg
}

func newTestStore(t *testing.T) *boltdb.Storage {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func newTestEngine(t *testing.T, cfg *config.Config, store *boltdb.Storage, remote storage.RemoteStore, opts ...func(*Deps)) *Engine {
	t.Helper()

	deps := Deps{
		Local:  store,
		Remote: remote,
		State:  store,
		Logger: setupTestLogger(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	e, err := New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Close() })

	return e
}

// clockAt возвращает часы, у которых физическое время остановлено на ms
func clockAt(ms int64) *clock.Clock {
	return clock.NewWithSource(func() time.Time { return time.UnixMilli(ms) })
}

func remoteRecord(entityType, entityID, payload string, ts int64, origin string) *models.ChangeRecord {
	op := models.OperationUpdate
	var data []byte
	if payload == "" {
		op = models.OperationDelete
	} else {
		data = []byte(payload)
	}
	return models.NewChangeRecord(entityType, entityID, op, data, ts, origin)
}

func readPayload(t *testing.T, store *boltdb.Storage, entityType, entityID string) string {
	t.Helper()

	entity, err := store.Read(context.Background(), entityType, entityID)
	require.NoError(t, err)
	return string(entity.Payload)
}

func TestNew_Validation(t *testing.T) {
	store := newTestStore(t)

	tests := []struct {
		name   string
		cfg    *config.Config
		deps   Deps
		errMsg string
	}{
		{name: "no config", cfg: nil, deps: Deps{Local: store, Remote: newMemRemote()}, errMsg: "config is required"},
		{name: "no local", cfg: testConfig(), deps: Deps{Remote: newMemRemote()}, errMsg: "local provider is required"},
		{name: "no remote", cfg: testConfig(), deps: Deps{Local: store}, errMsg: "remote store is required"},
		{
			name: "unknown policy",
			cfg: func() *config.Config {
				c := testConfig()
				c.Sync.ConflictPolicy = "coin-flip"
				return c
			}(),
			deps:   Deps{Local: store, Remote: newMemRemote()},
			errMsg: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.deps)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNew_GeneratesDeviceID(t *testing.T) {
	cfg := testConfig()
	cfg.Device.ID = ""

	e, err := New(cfg, Deps{Local: newTestStore(t), Remote: newMemRemote(), Logger: setupTestLogger()})
	require.NoError(t, err)
	assert.NotEmpty(t, e.DeviceID())
}

func TestEngine_NotInitialized(t *testing.T) {
	e, err := New(testConfig(), Deps{Local: newTestStore(t), Remote: newMemRemote(), Logger: setupTestLogger()})
	require.NoError(t, err)

	_, err = e.Sync(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)

	_, err = e.ResolveConflict(context.Background(), "id", models.ResolutionLocal)
	assert.ErrorIs(t, err, ErrNotInitialized)

	assert.ErrorIs(t, e.Start(context.Background()), ErrNotInitialized)
}

func TestEngine_CaptureAddsPending(t *testing.T) {
	store := newTestStore(t)
	e := newTestEngine(t, testConfig(), store, newMemRemote())
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "42", []byte(`{"v":1}`)))
	require.NoError(t, store.Update(ctx, models.EntityHandHistory, "42", []byte(`{"v":2}`)))
	require.NoError(t, store.Delete(ctx, models.EntityHandHistory, "42"))

	entries := e.Pending()
	require.Len(t, entries, 3)
	assert.Equal(t, 3, e.Status().PendingChanges)

	assert.Equal(t, models.OperationCreate, entries[0].Record.Operation)
	assert.Equal(t, models.OperationUpdate, entries[1].Record.Operation)
	assert.Equal(t, models.OperationDelete, entries[2].Record.Operation)

	for _, entry := range entries {
		assert.Equal(t, "device-a", entry.Record.OriginDevice)
		assert.NoError(t, entry.Record.Verify())
	}
	assert.Less(t, entries[0].Record.Timestamp, entries[1].Record.Timestamp)
	assert.Nil(t, entries[2].Record.Payload)
}

func TestEngine_CaptureIgnoresDisabledCategory(t *testing.T) {
	cfg := testConfig()
	cfg.Sync.Categories[models.EntityProgress] = false

	store := newTestStore(t)
	e := newTestEngine(t, cfg, store, newMemRemote())

	require.NoError(t, store.Create(context.Background(), models.EntityProgress, "1", []byte(`{}`)))
	assert.Zero(t, e.Status().PendingChanges)
}

func TestEngine_StateSurvivesRestart(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := New(testConfig(), Deps{Local: store, Remote: newMemRemote(), State: store, Logger: setupTestLogger()})
	require.NoError(t, err)
	require.NoError(t, first.Initialize(ctx))

	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "1", []byte(`{"v":1}`)))
	require.NoError(t, store.Create(ctx, models.EntityPlayerStats, "1", []byte(`{"v":1}`)))
	last := first.clock.Last()
	require.NoError(t, first.Close())

	second := newTestEngine(t, testConfig(), store, newMemRemote())
	assert.Equal(t, 2, second.Status().PendingChanges)
	assert.GreaterOrEqual(t, second.clock.Last(), last)

	// После Close захват первым движком прекращен
	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "2", []byte(`{"v":1}`)))
	assert.Equal(t, 3, second.Status().PendingChanges)
}

func TestEngine_SyncPushesPending(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	e := newTestEngine(t, testConfig(), store, remote)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "1", []byte(`{"v":1}`)))
	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "2", []byte(`{"v":1}`)))
	require.NoError(t, store.Update(ctx, models.EntityHandHistory, "1", []byte(`{"v":2}`)))

	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSynced, result.Outcome)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 3, result.Pushed)
	assert.Zero(t, e.Status().PendingChanges)
	assert.False(t, e.Status().LastSyncAt.IsZero())

	pushed := remote.from("device-a")
	require.Len(t, pushed, 3)
	assert.Equal(t, models.OperationCreate, pushed[0].Operation)
	assert.Equal(t, models.OperationUpdate, pushed[2].Operation)

	// Повторная синхронизация: дайджесты совпадают, категории пропускаются
	again, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, again.Outcome)
	assert.Contains(t, again.Unchanged, models.EntityHandHistory)
	assert.Zero(t, again.Pushed)
}

func TestEngine_SyncAppliesRemoteWithoutEcho(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	e := newTestEngine(t, testConfig(), store, remote)
	ctx := context.Background()

	remote.inject(remoteRecord(models.EntityTrainingScenario, "s1", `{"name":"3bet pot"}`, 50, "device-b"))
	remote.inject(remoteRecord(models.EntityTrainingScenario, "s1", `{"name":"4bet pot"}`, 60, "device-b"))
	remote.inject(remoteRecord(models.EntityTrainingScenario, "s2", `{"name":"limp"}`, 70, "device-b"))
	remote.inject(remoteRecord(models.EntityTrainingScenario, "s2", "", 80, "device-b"))

	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSynced, result.Outcome)
	assert.Equal(t, 4, result.Pulled)
	assert.JSONEq(t, `{"name":"4bet pot"}`, readPayload(t, store, models.EntityTrainingScenario, "s1"))

	_, err = store.Read(ctx, models.EntityTrainingScenario, "s2")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)

	// Примененные записи не захватываются как локальные изменения
	assert.Zero(t, e.Status().PendingChanges)
	assert.Empty(t, remote.from("device-a"))

	cursor, err := store.GetCursor(ctx, models.EntityTrainingScenario)
	require.NoError(t, err)
	assert.Equal(t, int64(4), cursor)
}

func TestEngine_SkipsOwnEchoes(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	e := newTestEngine(t, testConfig(), store, remote)
	ctx := context.Background()

	remote.inject(remoteRecord(models.EntityHandHistory, "1", `{"v":9}`, 10, "device-a"))

	result, err := e.ForceSync(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Pulled)

	_, err = store.Read(ctx, models.EntityHandHistory, "1")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound)
}

func TestEngine_PriorityScenario(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	remote.devices["device-b"] = &models.Device{ID: "device-b", Name: "phone", Priority: 10}

	cfg := testConfig()
	cfg.Sync.ConflictPolicy = "priority"

	// Часы устройства A показывают T=100
	clk := clockAt(100)
	e := newTestEngine(t, cfg, store, remote, func(d *Deps) { d.Clock = clk })
	ctx := context.Background()

	// A записывает {v:1} при T=100, B офлайн записал {v:2} при T=90
	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "42", []byte(`{"v":1}`)))
	local := e.Pending()[0].Record
	require.Equal(t, int64(100), local.Timestamp)

	fromB := remoteRecord(models.EntityHandHistory, "42", `{"v":2}`, 90, "device-b")
	remote.inject(fromB)

	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSynced, result.Outcome)
	assert.Equal(t, 1, result.Resolved)
	assert.JSONEq(t, `{"v":2}`, readPayload(t, store, models.EntityHandHistory, "42"))

	// Проигравшая запись не отправлена: вместо нее уходит переизданный победитель,
	// который новее обеих записей
	pushed := remote.from("device-a")
	require.Len(t, pushed, 1)
	assert.NotEqual(t, local.ID, pushed[0].ID)
	assert.JSONEq(t, `{"v":2}`, string(pushed[0].Payload))
	assert.Equal(t, fromB.Checksum, pushed[0].Checksum)
	assert.Greater(t, pushed[0].Timestamp, local.Timestamp)
	assert.Equal(t, 1, result.Pushed)
	assert.Zero(t, e.Status().PendingChanges)

	head, err := remote.Read(ctx, models.EntityHandHistory, "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(head.Payload))

	history := e.ConflictHistory()
	require.Len(t, history, 1)
	assert.Equal(t, models.ResolutionPriority, history[0].Resolution)
	assert.Equal(t, pushed[0].ID, history[0].Result.ID)
	require.Len(t, history[0].History, 1)
	require.Len(t, history[0].History[0].Discarded, 1)
	assert.Equal(t, local.ID, history[0].History[0].Discarded[0].ID)

	// Устройство опубликовало себя в каталоге
	assert.Contains(t, remote.devices, "device-a")
}

func TestEngine_PriorityConvergesAcrossDevices(t *testing.T) {
	remote := newMemRemote()
	ctx := context.Background()

	deviceConfig := func(id string, priority int) *config.Config {
		cfg := testConfig()
		cfg.Device.ID = id
		cfg.Device.Priority = priority
		cfg.Sync.ConflictPolicy = "priority"
		return cfg
	}

	storeA, storeB, storeC := newTestStore(t), newTestStore(t), newTestStore(t)
	a := newTestEngine(t, deviceConfig("device-a", 5), storeA, remote, func(d *Deps) { d.Clock = clockAt(100) })
	b := newTestEngine(t, deviceConfig("device-b", 10), storeB, remote, func(d *Deps) { d.Clock = clockAt(90) })

	require.NoError(t, storeA.Create(ctx, models.EntityHandHistory, "42", []byte(`{"v":1}`)))
	require.NoError(t, storeB.Create(ctx, models.EntityHandHistory, "42", []byte(`{"v":2}`)))

	// A успевает первым, B разрешает конфликт в свою пользу, A подтягивает решение
	_, err := a.Sync(ctx)
	require.NoError(t, err)

	result, err := b.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resolved)
	assert.Equal(t, 1, result.Pushed)

	result, err = a.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, result.Outcome)

	// Новое устройство видит только журнал и должно прийти к тому же значению
	c := newTestEngine(t, deviceConfig("device-c", 1), storeC, remote)
	_, err = c.Sync(ctx)
	require.NoError(t, err)

	for name, store := range map[string]*boltdb.Storage{"a": storeA, "b": storeB, "c": storeC} {
		assert.JSONEq(t, `{"v":2}`, readPayload(t, store, models.EntityHandHistory, "42"), "device %s", name)
	}

	head, err := remote.Read(ctx, models.EntityHandHistory, "42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(head.Payload))
	assert.Equal(t, "device-b", head.OriginDevice)

	// После схождения сверка дайджестов ничего не переносит
	for _, e := range []*Engine{a, b, c} {
		result, err := e.Sync(ctx)
		require.NoError(t, err)
		assert.Zero(t, result.Applied)
		assert.Zero(t, result.Pushed)
		assert.Zero(t, result.Resolved)
	}
}

func TestEngine_NewestPolicyKeepsNewerLocal(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()

	e := newTestEngine(t, testConfig(), store, remote, func(d *Deps) { d.Clock = clockAt(100) })
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "42", []byte(`{"v":1}`)))
	remote.inject(remoteRecord(models.EntityHandHistory, "42", `{"v":2}`, 90, "device-b"))

	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Resolved)
	assert.Equal(t, 1, result.Pushed)
	assert.JSONEq(t, `{"v":1}`, readPayload(t, store, models.EntityHandHistory, "42"))

	pushed := remote.from("device-a")
	require.Len(t, pushed, 1)
	assert.JSONEq(t, `{"v":1}`, string(pushed[0].Payload))
}

func TestEngine_PartialFailure(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	scenario := remoteRecord(models.EntityTrainingScenario, "s1", `{"name":"squeeze"}`, 10, "device-b")
	empty := integrity.CollectionDigest(nil)

	var created []*models.ChangeRecord
	remote := &storage.RemoteStoreMock{
		ChecksumFunc: func(ctx context.Context, entityType string) (string, error) {
			if entityType == models.EntityPlayerStats {
				return "", fmt.Errorf("%w: connection reset", storage.ErrRemoteUnavailable)
			}
			return empty, nil
		},
		ChangesSinceFunc: func(ctx context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
			if entityType == models.EntityTrainingScenario {
				return []*models.ChangeRecord{scenario}, 1, nil
			}
			return nil, since, nil
		},
		CreateFunc: func(ctx context.Context, rec *models.ChangeRecord) error {
			created = append(created, rec)
			return nil
		},
	}

	e := newTestEngine(t, testConfig(), store, remote)
	require.NoError(t, store.Create(ctx, models.EntityTrainingScenario, "s2", []byte(`{"name":"float"}`)))

	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, KindNetwork, result.Errors[0].Kind)
	assert.Equal(t, models.EntityPlayerStats, result.Errors[0].Category)

	// trainingScenarios синхронизирована в том же запуске
	assert.JSONEq(t, `{"name":"squeeze"}`, readPayload(t, store, models.EntityTrainingScenario, "s1"))
	require.Len(t, created, 1)
	assert.Equal(t, "s2", created[0].EntityID)
	assert.Zero(t, e.Status().PendingChanges)

	// Частичный успех не считается полной синхронизацией
	assert.True(t, e.Status().LastSyncAt.IsZero())
	assert.Len(t, e.Status().LastErrors, 1)

	for _, call := range remote.ChangesSinceCalls() {
		assert.NotEqual(t, models.EntityPlayerStats, call.EntityType)
	}
}

func TestEngine_RejectsCorruptRecord(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	e := newTestEngine(t, testConfig(), store, remote)
	ctx := context.Background()

	corrupt := remoteRecord(models.EntityHandHistory, "7", `{"pot":120}`, 10, "device-b")
	corrupt.Payload = []byte(`{"pot":999}`)
	remote.inject(corrupt)
	remote.inject(remoteRecord(models.EntityHandHistory, "8", `{"pot":50}`, 11, "device-b"))

	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Equal(t, 1, result.Rejected)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, KindValidation, result.Errors[0].Kind)
	assert.Equal(t, corrupt.ID, result.Errors[0].ChangeID)

	_, err = store.Read(ctx, models.EntityHandHistory, "7")
	assert.ErrorIs(t, err, storage.ErrEntityNotFound, "corrupt record must never reach the local store")
	assert.JSONEq(t, `{"pot":50}`, readPayload(t, store, models.EntityHandHistory, "8"))
}

func TestEngine_Idempotence(t *testing.T) {
	store := newTestStore(t)
	e := newTestEngine(t, testConfig(), store, newMemRemote())
	ctx := context.Background()

	var mutations int
	unsubscribe := store.Subscribe(func(storage.MutationEvent) { mutations++ })
	defer unsubscribe()

	rec := remoteRecord(models.EntityHandHistory, "1", `{"v":1}`, 10, "device-b")
	// Повторная доставка того же содержимого с другим ID
	resent := rec.Clone()
	resent.ID = "resent"

	e.applyInbound(ctx, "device-b", []*models.ChangeRecord{rec})
	e.applyInbound(ctx, "device-b", []*models.ChangeRecord{rec})
	e.applyInbound(ctx, "device-b", []*models.ChangeRecord{resent})

	assert.Equal(t, 1, mutations)
	assert.Empty(t, e.Conflicts())
	assert.Empty(t, e.ConflictHistory())
	assert.JSONEq(t, `{"v":1}`, readPayload(t, store, models.EntityHandHistory, "1"))
}

func TestEngine_StaleRecordFromSameDeviceIgnored(t *testing.T) {
	store := newTestStore(t)
	e := newTestEngine(t, testConfig(), store, newMemRemote())
	ctx := context.Background()

	v2 := remoteRecord(models.EntityHandHistory, "1", `{"v":2}`, 20, "device-b")
	v1 := remoteRecord(models.EntityHandHistory, "1", `{"v":1}`, 10, "device-b")

	// Realtime доставил v2 раньше, чем batch принес v1
	e.applyInbound(ctx, "device-b", []*models.ChangeRecord{v2})
	e.applyInbound(ctx, "device-b", []*models.ChangeRecord{v1})

	assert.JSONEq(t, `{"v":2}`, readPayload(t, store, models.EntityHandHistory, "1"))
	assert.Empty(t, e.ConflictHistory())
}

func TestEngine_NoSilentLoss(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	remote.failPush["e3"] = fmt.Errorf("%w: payload too large", storage.ErrRejected)
	remote.failPush["e4"] = fmt.Errorf("%w: invalid entity id", storage.ErrRejected)

	cfg := testConfig()
	cfg.Sync.ConflictPolicy = "manual"
	e := newTestEngine(t, cfg, store, remote)
	ctx := context.Background()

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, store.Create(ctx, models.EntityHandHistory, fmt.Sprintf("e%d", i), []byte(fmt.Sprintf(`{"i":%d}`, i))))
	}
	remote.inject(remoteRecord(models.EntityHandHistory, "e9", `{"i":"theirs"}`, 1, "device-b"))

	result, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomePartial, result.Outcome)

	applied := len(remote.from("device-a"))
	failed := len(e.Failed())

	inConflicts := 0
	for _, c := range e.Conflicts() {
		for _, r := range c.Records {
			if r.OriginDevice == "device-a" {
				inConflicts++
			}
		}
	}

	assert.Equal(t, 7, applied)
	assert.Equal(t, 2, failed)
	assert.Equal(t, 1, inConflicts)
	assert.Equal(t, n, applied+failed+inConflicts+e.Status().PendingChanges)

	for _, f := range e.Failed() {
		assert.NotEmpty(t, f.Reason)
	}
}

func TestEngine_PushNetworkFailureRetries(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()
	remote.failPush["1"] = fmt.Errorf("%w: timeout", storage.ErrRemoteUnavailable)

	cfg := testConfig()
	cfg.Sync.MaxPushRetries = 2
	e := newTestEngine(t, cfg, store, remote)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "1", []byte(`{"v":1}`)))
	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "2", []byte(`{"v":1}`)))

	first, err := e.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, first.Errors, 1)
	assert.Equal(t, KindNetwork, first.Errors[0].Kind)
	// Отправка категории остановлена на первой сетевой ошибке
	assert.Equal(t, 2, e.Status().PendingChanges)

	_, err = e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, e.Status().FailedChanges)
	assert.Equal(t, 1, e.Status().PendingChanges)

	delete(remote.failPush, "1")
	assert.Equal(t, 1, e.Retry())

	result, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, result.Outcome)
	assert.Zero(t, e.Status().PendingChanges)
	assert.Zero(t, e.Status().FailedChanges)
	assert.Len(t, remote.from("device-a"), 2)
}

func TestEngine_ManualResolve(t *testing.T) {
	tests := []struct {
		name       string
		resolution models.Resolution
		want       string
		pushed     int
	}{
		// Удаленная запись старше локальной, поэтому решение переиздается этим устройством
		{name: "remote wins", resolution: models.ResolutionRemote, want: `{"v":"theirs"}`, pushed: 1},
		{name: "local wins", resolution: models.ResolutionLocal, want: `{"v":"mine"}`, pushed: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			remote := newMemRemote()

			cfg := testConfig()
			cfg.Sync.ConflictPolicy = "manual"
			e := newTestEngine(t, cfg, store, remote)
			ctx := context.Background()

			var detected, resolved []*models.Conflict
			e.On(EventConflictDetected, func(ev Event) { detected = append(detected, ev.Conflict) })
			e.On(EventConflictResolved, func(ev Event) { resolved = append(resolved, ev.Conflict) })

			require.NoError(t, store.Create(ctx, models.EntityPlayerStats, "hero", []byte(`{"v":"mine"}`)))
			remote.inject(remoteRecord(models.EntityPlayerStats, "hero", `{"v":"theirs"}`, 1, "device-b"))

			result, err := e.Sync(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, result.Conflicts)
			assert.Equal(t, 1, result.Queued)

			require.Len(t, detected, 1)
			open := e.Conflicts()
			require.Len(t, open, 1)
			assert.Len(t, open[0].Records, 2)
			assert.Equal(t, 1, len(e.Status().OpenConflicts))

			// Пока конфликт открыт, ничего не применяется и не отправляется
			assert.JSONEq(t, `{"v":"mine"}`, readPayload(t, store, models.EntityPlayerStats, "hero"))
			assert.Empty(t, remote.from("device-a"))
			assert.Zero(t, e.Status().PendingChanges)

			c, err := e.ResolveConflict(ctx, open[0].ID, tt.resolution)
			require.NoError(t, err)
			assert.Equal(t, models.ConflictResolved, c.Status)
			assert.Equal(t, tt.resolution, c.Resolution)
			require.Len(t, c.History, 1)
			assert.Len(t, c.History[0].Discarded, 1)

			assert.JSONEq(t, tt.want, readPayload(t, store, models.EntityPlayerStats, "hero"))
			assert.Len(t, remote.from("device-a"), tt.pushed)

			head, err := remote.Read(ctx, models.EntityPlayerStats, "hero")
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(head.Payload))
			assert.Equal(t, c.Result.ID, head.ID)
			assert.Empty(t, e.Conflicts())
			assert.Zero(t, e.Status().PendingChanges)
			require.Len(t, resolved, 1)

			_, err = e.ResolveConflict(ctx, open[0].ID, models.ResolutionLocal)
			assert.ErrorIs(t, err, conflict.ErrAlreadyResolved)
		})
	}
}

func TestEngine_ResolveUnknownConflict(t *testing.T) {
	e := newTestEngine(t, testConfig(), newTestStore(t), newMemRemote())

	_, err := e.ResolveConflict(context.Background(), "missing", models.ResolutionLocal)
	assert.ErrorIs(t, err, conflict.ErrConflictNotFound)
}

func TestEngine_OpenConflictCollectsLaterChanges(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()

	cfg := testConfig()
	cfg.Sync.ConflictPolicy = "manual"
	e := newTestEngine(t, cfg, store, remote)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, models.EntityProgress, "p", []byte(`{"level":1}`)))
	remote.inject(remoteRecord(models.EntityProgress, "p", `{"level":2}`, 1, "device-b"))
	_, err := e.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, e.Conflicts(), 1)

	// Новое локальное изменение не уходит в обход открытого конфликта
	require.NoError(t, store.Update(ctx, models.EntityProgress, "p", []byte(`{"level":3}`)))
	result, err := e.Sync(ctx)
	require.NoError(t, err)

	assert.Zero(t, result.Pushed)
	assert.Empty(t, remote.from("device-a"))
	open := e.Conflicts()
	require.Len(t, open, 1)
	assert.Len(t, open[0].Records, 3)

	c, err := e.ResolveConflict(ctx, open[0].ID, models.ResolutionNewest)
	require.NoError(t, err)
	assert.JSONEq(t, `{"level":3}`, string(c.Result.Payload))
	assert.JSONEq(t, `{"level":3}`, readPayload(t, store, models.EntityProgress, "p"))
}

func TestEngine_MergePolicy(t *testing.T) {
	store := newTestStore(t)
	remote := newMemRemote()

	cfg := testConfig()
	cfg.Sync.ConflictPolicy = "merge"
	e := newTestEngine(t, cfg, store, remote)
	ctx := context.Background()

	e.SetMergeFunc(func(key models.EntityKey, records []*models.ChangeRecord) (json.RawMessage, error) {
		return json.RawMessage(`{"merged":true}`), nil
	})

	require.NoError(t, store.Create(ctx, models.EntityHandHistory, "m", []byte(`{"a":1}`)))
	remote.inject(remoteRecord(models.EntityHandHistory, "m", `{"b":1}`, 1, "device-b"))

	result, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Resolved)

	assert.JSONEq(t, `{"merged":true}`, readPayload(t, store, models.EntityHandHistory, "m"))
	pushed := remote.from("device-a")
	require.Len(t, pushed, 1)
	assert.JSONEq(t, `{"merged":true}`, string(pushed[0].Payload))
}

func TestEngine_SyncInProgress(t *testing.T) {
	store := newTestStore(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	remote := &storage.RemoteStoreMock{
		ChecksumFunc: func(ctx context.Context, entityType string) (string, error) {
			return "different", nil
		},
		ChangesSinceFunc: func(ctx context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
			once.Do(func() { close(entered) })
			<-release
			return nil, since, nil
		},
	}

	e := newTestEngine(t, testConfig(), store, remote)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := e.Sync(ctx)
		done <- err
	}()

	<-entered
	assert.True(t, e.Status().Running)

	_, err := e.Sync(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.Status().Running)
}

func TestEngine_CancelBetweenCategories(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	remote := &storage.RemoteStoreMock{
		ChecksumFunc: func(ctx context.Context, entityType string) (string, error) {
			return "different", nil
		},
		ChangesSinceFunc: func(_ context.Context, entityType string, since int64) ([]*models.ChangeRecord, int64, error) {
			// Отмена посреди категории не прерывает ее
			cancel()
			return nil, since, nil
		},
	}

	e := newTestEngine(t, testConfig(), store, remote)

	result, err := e.Sync(ctx)
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Equal(t, OutcomePartial, result.Outcome)
	assert.Len(t, remote.ChangesSinceCalls(), 1)
}

func TestEngine_SyncedEvent(t *testing.T) {
	e := newTestEngine(t, testConfig(), newTestStore(t), newMemRemote())

	var results []*SyncResult
	unsubscribe := e.On(EventSynced, func(ev Event) { results = append(results, ev.Result) })

	_, err := e.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSynced, results[0].Outcome)

	unsubscribe()
	_, err = e.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestEngine_ClosedEngine(t *testing.T) {
	e := newTestEngine(t, testConfig(), newTestStore(t), newMemRemote())
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Sync(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.Start(context.Background()), ErrClosed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{err: storage.ErrRemoteUnavailable, want: KindNetwork},
		{err: context.DeadlineExceeded, want: KindNetwork},
		{err: errors.New("boom"), want: KindNetwork},
		{err: fmt.Errorf("wrap: %w", storage.ErrRejected), want: KindValidation},
		{err: integrity.ErrChecksumMismatch, want: KindValidation},
		{err: models.ErrMalformedRecord, want: KindValidation},
		{err: &localError{err: errors.New("disk full")}, want: KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err))
		})
	}
}
