// Package pending holds change records that were captured locally but not yet
// acknowledged by the remote store.
package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/iudanet/handsync/internal/models"
)

// Entry запись, ожидающая подтверждения удаленным хранилищем
type Entry struct {
	QueuedAt     time.Time            `json:"queued_at"`            // QueuedAt время добавления
	Record       *models.ChangeRecord `json:"record"`               // Record само изменение
	LastError    string               `json:"last_error,omitempty"` // LastError причина последней неудачной отправки
	Attempts     int                  `json:"attempts"`             // Attempts число неудачных попыток отправки
	SentRealtime bool                 `json:"sent_realtime"`        // SentRealtime уже отправлено пирам по realtime каналу
}

// Failed запись, для которой исчерпаны попытки доставки
type Failed struct {
	FailedAt time.Time            `json:"failed_at"`
	Record   *models.ChangeRecord `json:"record"`
	Reason   string               `json:"reason"`
	Attempts int                  `json:"attempts"`
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Record = e.Record.Clone()
	return &c
}

func (f *Failed) clone() *Failed {
	c := *f
	c.Record = f.Record.Clone()
	return &c
}

// Set множество неподтвержденных изменений, ключ - ID изменения.
// Записи удаляются только после подтверждения доставки (Ack), после переноса в конфликт
// (Take) или при исчерпании попыток: тогда они переходят в список ошибок и не теряются.
type Set struct {
	entries    map[string]*Entry  // map[changeID]entry
	failed     map[string]*Failed // map[changeID]failed
	now        func() time.Time
	throttle   time.Duration
	superseded int
	mu         sync.RWMutex
}

// New создает пустое множество. throttle > 0 включает схлопывание частых
// изменений одной сущности: остается только последнее.
func New(throttle time.Duration) *Set {
	return &Set{
		entries:  make(map[string]*Entry),
		failed:   make(map[string]*Failed),
		throttle: throttle,
		now:      time.Now,
	}
}

// Add добавляет изменение. Возвращает ID записей той же сущности, которые были
// вытеснены этим изменением в пределах интервала throttle.
// Повторное добавление того же ID ничего не меняет.
func (s *Set) Add(rec *models.ChangeRecord) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[rec.ID]; exists {
		return nil
	}

	now := s.now()

	var replaced []string
	if s.throttle > 0 {
		for id, e := range s.entries {
			if e.Record.Key() != rec.Key() {
				continue
			}
			if now.Sub(e.QueuedAt) < s.throttle && rec.IsNewerThan(e.Record) {
				replaced = append(replaced, id)
			}
		}
		for _, id := range replaced {
			delete(s.entries, id)
		}
		s.superseded += len(replaced)
	}

	s.entries[rec.ID] = &Entry{
		Record:   rec.Clone(),
		QueuedAt: now,
	}

	sort.Strings(replaced)
	return replaced
}

// Restore загружает ранее сохраненные записи, например после перезапуска.
func (s *Set) Restore(entries []*Entry, failed []*Failed) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		s.entries[e.Record.ID] = e.clone()
	}
	for _, f := range failed {
		s.failed[f.Record.ID] = f.clone()
	}
}

// Get возвращает запись по ID.
func (s *Set) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Ack удаляет подтвержденные записи. Возвращает число удаленных.
func (s *Set) Ack(ids ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Take извлекает все записи указанной сущности, например для переноса в конфликт.
func (s *Set) Take(key models.EntityKey) []*models.ChangeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.ChangeRecord
	for id, e := range s.entries {
		if e.Record.Key() == key {
			out = append(out, e.Record)
			delete(s.entries, id)
		}
	}
	sortRecords(out)
	return out
}

// MarkSent отмечает записи как отправленные по realtime каналу.
// Это не подтверждение: записи остаются до Ack.
func (s *Set) MarkSent(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			e.SentRealtime = true
		}
	}
}

// RecordFailure учитывает неудачную попытку отправки. Если число попыток достигло
// maxAttempts, запись переносится в список ошибок и возвращается true.
func (s *Set) RecordFailure(id, reason string, maxAttempts int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}

	e.Attempts++
	e.LastError = reason
	if maxAttempts > 0 && e.Attempts >= maxAttempts {
		s.failLocked(e.Record, reason, e.Attempts)
		return true
	}
	return false
}

// Fail сразу переносит запись в список ошибок.
func (s *Set) Fail(id, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.failLocked(e.Record, reason, e.Attempts)
	return true
}

func (s *Set) failLocked(rec *models.ChangeRecord, reason string, attempts int) {
	delete(s.entries, rec.ID)
	s.failed[rec.ID] = &Failed{
		Record:   rec,
		Reason:   reason,
		Attempts: attempts,
		FailedAt: s.now(),
	}
}

// Requeue возвращает записи из списка ошибок обратно в очередь со сброшенным счетчиком.
// Без аргументов возвращает все. Возвращает перенесенные записи.
func (s *Set) Requeue(ids ...string) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		for id := range s.failed {
			ids = append(ids, id)
		}
	}

	var out []*Entry
	for _, id := range ids {
		f, ok := s.failed[id]
		if !ok {
			continue
		}
		delete(s.failed, id)
		e := &Entry{Record: f.Record, QueuedAt: s.now()}
		s.entries[id] = e
		out = append(out, e.clone())
	}
	sortEntries(out)
	return out
}

// List возвращает все записи в порядке timestamp.
func (s *Set) List() []*Entry {
	return s.filter(func(*Entry) bool { return true })
}

// ByEntityType возвращает записи одного типа сущности в порядке timestamp.
func (s *Set) ByEntityType(entityType string) []*Entry {
	return s.filter(func(e *Entry) bool { return e.Record.EntityType == entityType })
}

// ByKey возвращает записи одной сущности в порядке timestamp.
func (s *Set) ByKey(key models.EntityKey) []*Entry {
	return s.filter(func(e *Entry) bool { return e.Record.Key() == key })
}

// Unsent возвращает записи, еще не отправленные по realtime каналу.
func (s *Set) Unsent() []*Entry {
	return s.filter(func(e *Entry) bool { return !e.SentRealtime })
}

func (s *Set) filter(keep func(*Entry) bool) []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, e.clone())
		}
	}
	sortEntries(out)
	return out
}

// GetFailed возвращает запись из списка ошибок по ID.
func (s *Set) GetFailed(id string) (*Failed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.failed[id]
	if !ok {
		return nil, false
	}
	return f.clone(), true
}

// Failed возвращает список ошибок.
func (s *Set) Failed() []*Failed {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Failed, 0, len(s.failed))
	for _, f := range s.failed {
		out = append(out, f.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Record.Timestamp < out[j].Record.Timestamp
	})
	return out
}

// Len число ожидающих записей.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

// FailedLen число записей в списке ошибок.
func (s *Set) FailedLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.failed)
}

// Superseded число записей, вытесненных более поздними изменениями той же сущности.
func (s *Set) Superseded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.superseded
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[j].Record.IsNewerThan(entries[i].Record)
	})
}

func sortRecords(records []*models.ChangeRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[j].IsNewerThan(records[i])
	})
}
