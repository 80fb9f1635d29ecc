// Package engine keeps application data consistent between the local store, the
// remote store and the user's other devices. It captures local mutations, runs
// batch reconciliation with the remote store, propagates changes over the realtime
// channel and routes competing changes through conflict resolution.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/handsync/internal/client/storage"
	"github.com/iudanet/handsync/internal/clock"
	"github.com/iudanet/handsync/internal/config"
	"github.com/iudanet/handsync/internal/conflict"
	"github.com/iudanet/handsync/internal/device"
	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/pending"
	"github.com/iudanet/handsync/internal/transport"
)

// Deps внешние зависимости движка
type Deps struct {
	Local  storage.LocalProvider // Local локальное хранилище приложения
	Remote storage.RemoteStore   // Remote удаленное хранилище
	State  storage.StateStore    // State сохранение состояния между сессиями, nil - только в памяти
	Dialer transport.Dialer      // Dialer realtime соединение, nil - без realtime канала
	Clock  *clock.Clock          // Clock источник timestamp, nil - системные часы
	Logger *slog.Logger
}

// Engine движок синхронизации одного устройства.
type Engine struct {
	cfg    *config.Config
	local  storage.LocalProvider
	remote storage.RemoteStore
	state  storage.StateStore
	logger *slog.Logger
	clock  *clock.Clock
	policy conflict.Policy
	selfID string

	pending   *pending.Set
	conflicts *conflict.Queue
	registry  *device.Registry
	resolver  *conflict.Resolver
	realtime  *transport.Client
	locks     *keyLock
	events    *events
	status    tracker

	// known последняя запись, отраженная в локальном хранилище, по сущности
	known   map[models.EntityKey]*models.ChangeRecord
	knownMu sync.Mutex

	// applying checksum записи, которую движок сейчас пишет в локальное хранилище.
	// Уведомление о такой мутации не является локальным изменением.
	applying   map[models.EntityKey]string
	applyingMu sync.Mutex

	cursors  map[string]int64 // map[entityType]cursor
	cursorMu sync.Mutex

	unsubscribe func()
	tasks       []*task
	background  sync.WaitGroup
	lifecycleMu sync.Mutex
	bgCtx       context.Context
	bgCancel    context.CancelFunc

	running     atomic.Bool
	initialized atomic.Bool
	closed      atomic.Bool
	started     bool
}

// New creates an engine. Initialize must be called before use.
func New(cfg *config.Config, deps Deps) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if deps.Local == nil {
		return nil, errors.New("local provider is required")
	}
	if deps.Remote == nil {
		return nil, errors.New("remote store is required")
	}

	policy, err := conflict.ParsePolicy(cfg.Sync.ConflictPolicy)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}

	selfID := cfg.Device.ID
	if selfID == "" {
		selfID = uuid.New().String()
	}

	self := &models.Device{
		ID:           selfID,
		Name:         cfg.Device.Name,
		Class:        cfg.Device.Class,
		Priority:     cfg.Device.Priority,
		Capabilities: []string{"batch"},
		IsOnline:     true,
	}
	if deps.Dialer != nil && cfg.Realtime.Enabled {
		self.Capabilities = append(self.Capabilities, "realtime")
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())

	e := &Engine{
		cfg:       cfg,
		local:     deps.Local,
		remote:    deps.Remote,
		state:     deps.State,
		logger:    logger.With("device_id", selfID),
		clock:     clk,
		policy:    policy,
		selfID:    selfID,
		pending:   pending.New(cfg.Sync.Throttle),
		conflicts: conflict.NewQueue(),
		registry:  device.NewRegistry(self, cfg.Device.StaleAfter),
		locks:     newKeyLock(),
		events:    newEvents(),
		known:     make(map[models.EntityKey]*models.ChangeRecord),
		applying:  make(map[models.EntityKey]string),
		cursors:   make(map[string]int64),
		bgCtx:     bgCtx,
		bgCancel:  bgCancel,
	}

	e.resolver = conflict.NewResolver(selfID, e.registry.Priority, e.newRecord, e.logger)

	if deps.Dialer != nil && cfg.Realtime.Enabled {
		e.realtime = transport.NewClient(deps.Dialer, transport.Options{
			Device:            e.registry.Self,
			PendingCount:      e.pending.Len,
			HeartbeatInterval: cfg.Realtime.HeartbeatInterval,
			IdleTimeout:       cfg.Realtime.IdleTimeout(),
			DialTimeout:       cfg.Realtime.DialTimeout,
			BackoffBase:       cfg.Realtime.Reconnect.Base,
			BackoffMax:        cfg.Realtime.Reconnect.Max,
			MaxAttempts:       cfg.Realtime.Reconnect.MaxAttempts,
			BacklogSize:       cfg.Realtime.BacklogSize,
		}, transport.Hooks{
			OnEnvelope:         e.handleEnvelope,
			OnStateChange:      e.handleStateChange,
			OnLatency:          e.status.setLatency,
			OnReconnectPending: e.handleReconnectPending,
			OnGiveUp:           e.handleGiveUp,
		}, e.logger.With("component", "realtime"))
	}

	return e, nil
}

// DeviceID returns the id of the current device.
func (e *Engine) DeviceID() string {
	return e.selfID
}

// SetMergeFunc registers the merge hook used by the merge policy.
// Without a hook merge behaves as newest.
func (e *Engine) SetMergeFunc(fn conflict.MergeFunc) {
	e.resolver.SetMergeFunc(fn)
}

// On registers an event handler and returns a function removing it.
func (e *Engine) On(kind EventKind, h Handler) func() {
	return e.events.on(kind, h)
}

// Initialize restores persisted state and starts capturing local mutations.
// Calling it again is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.closed.Load() {
		return ErrClosed
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.initialized.Load() {
		return nil
	}

	if err := e.restore(ctx); err != nil {
		return err
	}

	e.unsubscribe = e.local.Subscribe(e.capture)
	e.initialized.Store(true)

	e.logger.Info("Sync engine initialized",
		"policy", e.policy,
		"strategy", e.cfg.Sync.Strategy,
		"categories", e.cfg.EnabledCategories(),
		"pending", e.pending.Len(),
		"failed", e.pending.FailedLen(),
		"open_conflicts", e.conflicts.OpenLen())

	return nil
}

func (e *Engine) restore(ctx context.Context) error {
	if e.state == nil {
		return nil
	}

	last, err := e.state.GetClock(ctx)
	if err != nil {
		return fmt.Errorf("failed to load clock: %w", err)
	}
	e.clock.Restore(last)

	entries, err := e.state.LoadPending(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pending changes: %w", err)
	}
	failed, err := e.state.LoadFailed(ctx)
	if err != nil {
		return fmt.Errorf("failed to load failed changes: %w", err)
	}
	e.pending.Restore(entries, failed)

	conflicts, err := e.state.LoadConflicts(ctx)
	if err != nil {
		return fmt.Errorf("failed to load conflicts: %w", err)
	}
	for _, c := range conflicts {
		e.conflicts.Add(c)
	}

	devices, err := e.state.LoadDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to load devices: %w", err)
	}
	for _, d := range devices {
		if d.ID == e.selfID {
			continue
		}
		d.IsOnline = false
		e.registry.Upsert(d)
	}

	lastSync, err := e.state.GetLastSyncTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("failed to load last sync timestamp: %w", err)
	}
	if lastSync > 0 {
		e.status.setLastSync(time.UnixMilli(lastSync))
	}

	return e.state.SaveDevice(ctx, e.registry.Self())
}

// Start runs the configured sync strategy and connects the realtime channel.
func (e *Engine) Start(ctx context.Context) error {
	if !e.initialized.Load() {
		return ErrNotInitialized
	}
	if e.closed.Load() {
		return ErrClosed
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return nil
	}
	e.started = true

	switch e.cfg.Sync.Strategy {
	case config.StrategyAuto, config.StrategySmart:
		e.tasks = append(e.tasks, every(ctx, e.cfg.Sync.Interval, e.scheduledSync))
	}

	if e.realtime != nil {
		if err := e.realtime.Connect(ctx); err != nil {
			return fmt.Errorf("failed to start realtime channel: %w", err)
		}
		if e.cfg.Sync.Batch.Enabled {
			e.tasks = append(e.tasks, every(ctx, e.cfg.Sync.Batch.Interval, func(context.Context) {
				e.flushRealtime()
			}))
		}
		e.tasks = append(e.tasks, every(ctx, e.cfg.Realtime.HeartbeatInterval, func(context.Context) {
			e.sweepStale()
		}))
	}

	e.logger.Info("Sync engine started",
		"strategy", e.cfg.Sync.Strategy,
		"interval", e.cfg.Sync.Interval,
		"realtime", e.realtime != nil)

	return nil
}

// scheduledSync запуск по таймеру. Стратегия smart пропускает тик, если отправлять
// нечего, а входящие изменения и так приходят по realtime каналу.
func (e *Engine) scheduledSync(ctx context.Context) {
	if e.cfg.Sync.Strategy == config.StrategySmart && e.pending.Len() == 0 && e.status.isConnected() {
		e.logger.Debug("Skipping idle sync tick")
		return
	}

	if _, err := e.Sync(ctx); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			e.logger.Debug("Scheduled sync skipped, previous run still active")
			return
		}
		e.logger.Warn("Scheduled sync failed", "error", err)
	}
}

// Close stops timers and the realtime channel and waits for background work.
// No event fires after Close returns.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.lifecycleMu.Lock()
	tasks := e.tasks
	e.tasks = nil
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.lifecycleMu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}
	if e.realtime != nil {
		e.realtime.Disconnect()
	}
	e.bgCancel()
	e.background.Wait()

	if unsubscribe != nil {
		unsubscribe()
	}

	if e.state != nil {
		if err := e.state.SaveClock(context.Background(), e.clock.Last()); err != nil {
			return fmt.Errorf("failed to save clock: %w", err)
		}
	}

	e.logger.Info("Sync engine stopped")
	return nil
}

// Status returns a snapshot of the synchronization state.
func (e *Engine) Status() Status {
	s := Status{
		OpenConflicts:  e.conflicts.List(),
		Devices:        e.registry.List(),
		PendingChanges: e.pending.Len(),
		FailedChanges:  e.pending.FailedLen(),
		Running:        e.running.Load(),
	}
	e.status.fill(&s)
	return s
}

// Pending returns changes waiting for delivery.
func (e *Engine) Pending() []*pending.Entry {
	return e.pending.List()
}

// Failed returns changes whose delivery was given up.
func (e *Engine) Failed() []*pending.Failed {
	return e.pending.Failed()
}

// Conflicts returns open conflicts.
func (e *Engine) Conflicts() []*models.Conflict {
	return e.conflicts.List()
}

// ConflictHistory returns resolved conflicts with their discarded records.
func (e *Engine) ConflictHistory() []*models.Conflict {
	return e.conflicts.History()
}

// Retry moves failed changes back to the pending set. Without ids all failed
// changes are retried. Returns the number of requeued changes.
func (e *Engine) Retry(ids ...string) int {
	entries := e.pending.Requeue(ids...)

	requeued := make([]string, 0, len(entries))
	for _, entry := range entries {
		requeued = append(requeued, entry.Record.ID)
	}
	e.persistOutbox(requeued...)

	return len(requeued)
}

func (e *Engine) newRecord(key models.EntityKey, op models.Operation, payload []byte, after int64) *models.ChangeRecord {
	e.clock.Observe(after)
	return models.NewChangeRecord(key.Type, key.ID, op, payload, e.clock.Now(), e.selfID)
}

func (e *Engine) categoryEnabled(entityType string) bool {
	return e.cfg.Sync.Categories[entityType]
}

// goBackground запускает работу, которую Close дожидается
func (e *Engine) goBackground(fn func(ctx context.Context)) {
	if e.closed.Load() {
		return
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		fn(e.bgCtx)
	}()
}
