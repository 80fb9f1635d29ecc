package transport

import "time"

// Backoff выдает экспоненциально растущие задержки переподключения:
// base, 2*base, 4*base ... но не больше max. Reset возвращает к base.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

// NewBackoff creates a backoff starting at base and capped at max.
func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay before the next attempt.
func (b *Backoff) Next() time.Duration {
	if b.current == 0 {
		b.current = b.base
		return b.current
	}

	b.current *= 2
	if b.current > b.max || b.current <= 0 {
		b.current = b.max
	}
	return b.current
}

// Reset starts the sequence over from base.
func (b *Backoff) Reset() {
	b.current = 0
}
