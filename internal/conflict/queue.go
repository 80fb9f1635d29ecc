package conflict

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/handsync/internal/models"
)

// Queue хранит конфликты: открытые ждут решения, разрешенные остаются как история.
// На одну сущность приходится не более одного открытого конфликта.
type Queue struct {
	conflicts map[string]*models.Conflict // map[conflictID]conflict
	open      map[models.EntityKey]string // map[entity]conflictID открытого конфликта
	now       func() time.Time
	mu        sync.RWMutex
}

// NewQueue создает пустую очередь конфликтов.
func NewQueue() *Queue {
	return &Queue{
		conflicts: make(map[string]*models.Conflict),
		open:      make(map[models.EntityKey]string),
		now:       time.Now,
	}
}

// Open регистрирует конкурирующие записи. Если по сущности уже есть открытый конфликт,
// новые записи добавляются в него. Возвращает копию конфликта и true, если он новый.
func (q *Queue) Open(key models.EntityKey, records []*models.ChangeRecord) (*models.Conflict, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if id, ok := q.open[key]; ok {
		c := q.conflicts[id]
		c.Records = appendMissing(c.Records, records)
		return c.Clone(), false
	}

	c := &models.Conflict{
		ID:         uuid.New().String(),
		EntityType: key.Type,
		EntityID:   key.ID,
		Status:     models.ConflictOpen,
		DetectedAt: q.now(),
		Records:    appendMissing(nil, records),
	}
	q.conflicts[c.ID] = c
	q.open[key] = c.ID

	return c.Clone(), true
}

// Add сохраняет готовый конфликт, например полученный от другого устройства или
// восстановленный после перезапуска. Повторное добавление того же ID объединяет записи.
// Разрешенный конфликт закрывает открытый конфликт по той же сущности, если решение
// охватывает все его записи; иначе открытый конфликт остается ждать своего решения.
func (q *Queue) Add(c *models.Conflict) (*models.Conflict, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.conflicts[c.ID]; ok {
		if existing.IsOpen() {
			existing.Records = appendMissing(existing.Records, c.Records)
			if !c.IsOpen() {
				q.adoptLocked(existing, c)
			}
		}
		return existing.Clone(), false
	}

	if id, ok := q.open[c.Key()]; ok {
		existing := q.conflicts[id]
		if c.IsOpen() {
			// По сущности уже открыт свой конфликт: сливаем в него
			existing.Records = appendMissing(existing.Records, c.Records)
			return existing.Clone(), false
		}
		if q.adoptLocked(existing, c) {
			return existing.Clone(), false
		}
	}

	stored := c.Clone()
	q.conflicts[stored.ID] = stored
	if stored.IsOpen() {
		q.open[stored.Key()] = stored.ID
	}

	return stored.Clone(), true
}

// adoptLocked переносит решение resolved в открытый конфликт open.
// Возвращает false, если в open есть записи, о которых решение не знает.
func (q *Queue) adoptLocked(open, resolved *models.Conflict) bool {
	if resolved.Result == nil {
		return false
	}

	covered := map[string]struct{}{resolved.Result.ID: {}}
	for _, r := range resolved.Records {
		covered[r.ID] = struct{}{}
	}
	for _, h := range resolved.History {
		for _, r := range h.Discarded {
			covered[r.ID] = struct{}{}
		}
	}
	for _, r := range open.Records {
		if _, ok := covered[r.ID]; !ok {
			return false
		}
	}

	open.Status = resolved.Status
	open.Resolution = resolved.Resolution
	open.ResolvedAt = resolved.ResolvedAt
	if open.ResolvedAt.IsZero() {
		open.ResolvedAt = q.now()
	}
	open.Result = resolved.Result.Clone()
	for _, h := range resolved.History {
		h.Discarded = cloneAll(h.Discarded)
		open.History = append(open.History, h)
	}

	if q.open[open.Key()] == open.ID {
		delete(q.open, open.Key())
	}
	return true
}

// OpenFor возвращает открытый конфликт по сущности.
func (q *Queue) OpenFor(key models.EntityKey) (*models.Conflict, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	id, ok := q.open[key]
	if !ok {
		return nil, false
	}
	return q.conflicts[id].Clone(), true
}

// Get возвращает конфликт по ID.
func (q *Queue) Get(id string) (*models.Conflict, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	c, ok := q.conflicts[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	return c.Clone(), nil
}

// Resolve закрывает конфликт решением d. Проигравшие записи и решение сохраняются в History.
func (q *Queue) Resolve(id string, d *Decision) (*models.Conflict, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	c, ok := q.conflicts[id]
	if !ok {
		return nil, ErrConflictNotFound
	}
	if !c.IsOpen() {
		return nil, ErrAlreadyResolved
	}

	q.resolveLocked(c, d)
	return c.Clone(), nil
}

// Record сохраняет автоматически разрешенный конфликт как историю.
func (q *Queue) Record(key models.EntityKey, records []*models.ChangeRecord, d *Decision) *models.Conflict {
	q.mu.Lock()
	defer q.mu.Unlock()

	c := &models.Conflict{
		ID:         uuid.New().String(),
		EntityType: key.Type,
		EntityID:   key.ID,
		DetectedAt: q.now(),
		Records:    appendMissing(nil, records),
	}
	q.conflicts[c.ID] = c
	q.resolveLocked(c, d)

	return c.Clone()
}

func (q *Queue) resolveLocked(c *models.Conflict, d *Decision) {
	now := q.now()

	c.Status = models.ConflictResolved
	c.Resolution = d.Resolution
	c.ResolvedAt = now
	c.Result = d.Winner.Clone()
	c.History = append(c.History, models.ConflictHistoryEntry{
		At:         now,
		Resolution: d.Resolution,
		WinnerID:   d.Winner.ID,
		Discarded:  cloneAll(d.Discarded),
	})

	if q.open[c.Key()] == c.ID {
		delete(q.open, c.Key())
	}
}

// List возвращает открытые конфликты в порядке обнаружения.
func (q *Queue) List() []*models.Conflict {
	return q.filter(func(c *models.Conflict) bool { return c.IsOpen() })
}

// History возвращает разрешенные конфликты в порядке обнаружения.
func (q *Queue) History() []*models.Conflict {
	return q.filter(func(c *models.Conflict) bool { return !c.IsOpen() })
}

// OpenLen число открытых конфликтов.
func (q *Queue) OpenLen() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.open)
}

func (q *Queue) filter(keep func(*models.Conflict) bool) []*models.Conflict {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]*models.Conflict, 0, len(q.conflicts))
	for _, c := range q.conflicts {
		if keep(c) {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].DetectedAt.Before(out[j].DetectedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func appendMissing(dst, src []*models.ChangeRecord) []*models.ChangeRecord {
	seen := make(map[string]struct{}, len(dst))
	for _, r := range dst {
		seen[r.ID] = struct{}{}
	}
	for _, r := range src {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		dst = append(dst, r.Clone())
	}
	sortRecords(dst)
	return dst
}

func cloneAll(records []*models.ChangeRecord) []*models.ChangeRecord {
	out := make([]*models.ChangeRecord, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
