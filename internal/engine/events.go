package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/iudanet/handsync/internal/models"
)

// EventKind тип события движка
type EventKind string

const (
	EventSynced               EventKind = "synced"
	EventConflictDetected     EventKind = "conflict_detected"
	EventConflictResolved     EventKind = "conflict_resolved"
	EventConnected            EventKind = "connected"
	EventDisconnected         EventKind = "disconnected"
	EventMaxReconnectAttempts EventKind = "max_reconnect_attempts_reached"
)

// Event is delivered to handlers registered with Engine.On.
// Which fields are set depends on Kind:
//   - EventSynced: Result
//   - EventConflictDetected, EventConflictResolved: Conflict
//   - EventMaxReconnectAttempts: Attempts
type Event struct {
	At       time.Time
	Result   *SyncResult
	Conflict *models.Conflict
	Kind     EventKind
	Attempts int
}

// Handler обработчик события. Вызывается синхронно, в порядке регистрации.
type Handler func(Event)

type events struct {
	handlers map[EventKind]map[int]Handler
	next     int
	mu       sync.RWMutex
}

func newEvents() *events {
	return &events{handlers: make(map[EventKind]map[int]Handler)}
}

func (b *events) on(kind EventKind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[kind] == nil {
		b.handlers[kind] = make(map[int]Handler)
	}
	id := b.next
	b.next++
	b.handlers[kind][id] = h

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[kind], id)
			b.mu.Unlock()
		})
	}
}

func (b *events) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	ids := make([]int, 0, len(b.handlers[ev.Kind]))
	for id := range b.handlers[ev.Kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[ev.Kind][id])
	}
	b.mu.RUnlock()

	// Обработчики вызываются без блокировки: им разрешено подписываться и отписываться
	for _, h := range handlers {
		h(ev)
	}
}
