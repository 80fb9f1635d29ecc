// Package device tracks the devices of a user that take part in synchronization.
package device

import (
	"sort"
	"sync"
	"time"

	"github.com/iudanet/handsync/internal/models"
)

// Registry реестр известных устройств пользователя.
// Записи никогда не удаляются: устаревшие устройства только помечаются offline.
type Registry struct {
	devices    map[string]*models.Device // map[deviceID]device
	now        func() time.Time
	selfID     string
	staleAfter time.Duration
	mu         sync.RWMutex
}

// NewRegistry создает реестр, содержащий текущее устройство.
func NewRegistry(self *models.Device, staleAfter time.Duration) *Registry {
	r := &Registry{
		devices:    make(map[string]*models.Device),
		selfID:     self.ID,
		staleAfter: staleAfter,
		now:        time.Now,
	}

	me := self.Clone()
	me.IsOnline = true
	if me.LastSeen.IsZero() {
		me.LastSeen = r.now()
	}
	r.devices[me.ID] = me

	return r
}

// Self возвращает запись текущего устройства.
func (r *Registry) Self() *models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.devices[r.selfID].Clone()
}

// Upsert добавляет или обновляет устройство по ID. Возвращает true, если устройство новое.
// LastSeen никогда не уменьшается, поэтому повторная доставка старого статуса ничего не портит.
func (r *Registry) Upsert(d *models.Device) bool {
	if d == nil || d.ID == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	incoming := d.Clone()
	if incoming.LastSeen.IsZero() {
		incoming.LastSeen = r.now()
	}

	existing, ok := r.devices[d.ID]
	if !ok {
		r.devices[d.ID] = incoming
		return true
	}

	if existing.LastSeen.After(incoming.LastSeen) {
		// Устаревший статус: обновляем только описательные поля
		incoming.LastSeen = existing.LastSeen
		incoming.IsOnline = existing.IsOnline
	}
	if d.ID == r.selfID {
		incoming.IsOnline = true
	}
	r.devices[d.ID] = incoming

	return false
}

// Touch отмечает устройство как живое, например при получении heartbeat.
// Неизвестное устройство добавляется с минимальной записью.
func (r *Registry) Touch(id string, at time.Time) {
	if id == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		d = &models.Device{ID: id}
		r.devices[id] = d
	}
	if at.After(d.LastSeen) {
		d.LastSeen = at
	}
	d.IsOnline = true
}

// SetOffline помечает устройство как отключенное, запись сохраняется.
func (r *Registry) SetOffline(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.devices[id]; ok && id != r.selfID {
		d.IsOnline = false
	}
}

// MarkStale помечает offline все устройства, от которых давно не было вестей.
// Возвращает ID устройств, которые перешли в offline при этом вызове.
func (r *Registry) MarkStale() []string {
	if r.staleAfter <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.staleAfter)

	var stale []string
	for id, d := range r.devices {
		if id == r.selfID || !d.IsOnline {
			continue
		}
		if d.LastSeen.Before(cutoff) {
			d.IsOnline = false
			stale = append(stale, id)
		}
	}
	sort.Strings(stale)

	return stale
}

// Get возвращает устройство по ID.
func (r *Registry) Get(id string) (*models.Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, false
	}
	return d.Clone(), true
}

// Priority возвращает приоритет устройства. Неизвестные устройства имеют приоритет 0.
func (r *Registry) Priority(id string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if d, ok := r.devices[id]; ok {
		return d.Priority
	}
	return 0
}

// List возвращает все известные устройства, отсортированные по ID.
func (r *Registry) List() []*models.Device {
	return r.filter(func(*models.Device) bool { return true })
}

// Online возвращает устройства, находящиеся на связи.
func (r *Registry) Online() []*models.Device {
	return r.filter(func(d *models.Device) bool { return d.IsOnline })
}

func (r *Registry) filter(keep func(*models.Device) bool) []*models.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*models.Device, 0, len(r.devices))
	for _, d := range r.devices {
		if keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}
