// Package clock provides the timestamp source for change records.
package clock

import (
	"sync"
	"time"
)

// Clock выдает монотонно возрастающие timestamps в миллисекундах Unix.
// Значение следует за системными часами, но никогда не повторяется и не уменьшается,
// даже если системное время переведено назад. Observe поднимает часы до timestamp,
// полученного от другого устройства (как Update у часов Лампорта), поэтому изменение,
// сделанное после получения чужого, всегда новее его.
type Clock struct {
	now  func() time.Time // источник физического времени
	last int64            // последний выданный timestamp
	mu   sync.Mutex       // мьютекс для потокобезопасности
}

// New создает часы поверх time.Now.
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource создает часы с заданным источником времени. Используется в тестах.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now возвращает следующий timestamp: max(wall, last+1).
func (c *Clock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall <= c.last {
		wall = c.last + 1
	}
	c.last = wall

	return wall
}

// Observe учитывает timestamp, полученный от другого устройства.
func (c *Clock) Observe(remote int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.last {
		c.last = remote
	}
}

// Last возвращает последний выданный или учтенный timestamp без изменения часов.
func (c *Clock) Last() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}

// Restore восстанавливает состояние часов после перезапуска.
func (c *Clock) Restore(last int64) {
	c.Observe(last)
}
