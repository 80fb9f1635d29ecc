package engine

import (
	"sync"
	"time"

	"github.com/iudanet/handsync/internal/models"
)

// Status снимок состояния синхронизации
type Status struct {
	LastSyncAt        time.Time          `json:"last_sync_at,omitzero"` // LastSyncAt последняя полностью успешная синхронизация
	OpenConflicts     []*models.Conflict `json:"open_conflicts"`        // OpenConflicts конфликты, ждущие ручного решения
	LastErrors        []SyncError        `json:"last_errors,omitempty"` // LastErrors ошибки последнего запуска
	Devices           []*models.Device   `json:"devices"`               // Devices известные устройства
	Latency           time.Duration      `json:"latency"`               // Latency последняя измеренная задержка realtime канала
	PendingChanges    int                `json:"pending_changes"`       // PendingChanges неподтвержденные изменения
	FailedChanges     int                `json:"failed_changes"`        // FailedChanges изменения в списке ошибок
	ReconnectAttempts int                `json:"reconnect_attempts"`    // ReconnectAttempts попытки переподключения подряд
	Connected         bool               `json:"connected"`             // Connected realtime канал подключен
	Running           bool               `json:"running"`               // Running идет синхронизация
}

// tracker хранит изменяемые поля Status, которые не выводятся из других компонентов
type tracker struct {
	lastSync          time.Time
	lastErrors        []SyncError
	latency           time.Duration
	reconnectAttempts int
	connected         bool
	mu                sync.RWMutex
}

// setConnected возвращает предыдущее значение
func (t *tracker) setConnected(connected bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.connected
	t.connected = connected
	if connected {
		t.reconnectAttempts = 0
	}
	return prev
}

func (t *tracker) isConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.connected
}

func (t *tracker) setLatency(d time.Duration) {
	t.mu.Lock()
	t.latency = d
	t.mu.Unlock()
}

func (t *tracker) setReconnectAttempts(n int) {
	t.mu.Lock()
	t.reconnectAttempts = n
	t.mu.Unlock()
}

func (t *tracker) setLastSync(at time.Time) {
	t.mu.Lock()
	t.lastSync = at
	t.mu.Unlock()
}

func (t *tracker) setLastErrors(errs []SyncError) {
	t.mu.Lock()
	t.lastErrors = append([]SyncError(nil), errs...)
	t.mu.Unlock()
}

func (t *tracker) fill(s *Status) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s.LastSyncAt = t.lastSync
	s.LastErrors = append([]SyncError(nil), t.lastErrors...)
	s.Latency = t.latency
	s.ReconnectAttempts = t.reconnectAttempts
	s.Connected = t.connected
}
