package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/models"
)

func newTestRegistry(now *time.Time) *Registry {
	r := NewRegistry(&models.Device{ID: "self", Name: "laptop", Priority: 5}, time.Minute)
	r.now = func() time.Time { return *now }
	return r
}

func TestRegistry_Self(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	self := r.Self()
	assert.Equal(t, "self", self.ID)
	assert.True(t, self.IsOnline)
	assert.Equal(t, 5, r.Priority("self"))
}

func TestRegistry_UpsertIsIdempotent(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	d := &models.Device{ID: "phone", Name: "phone", Priority: 10, IsOnline: true, LastSeen: now}

	assert.True(t, r.Upsert(d))
	assert.False(t, r.Upsert(d))
	assert.Len(t, r.List(), 2)
	assert.Equal(t, 10, r.Priority("phone"))
}

func TestRegistry_UpsertKeepsNewestLastSeen(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	r.Upsert(&models.Device{ID: "phone", LastSeen: now, IsOnline: true, Priority: 1})
	r.Upsert(&models.Device{ID: "phone", LastSeen: now.Add(-time.Hour), IsOnline: false, Priority: 3})

	d, ok := r.Get("phone")
	require.True(t, ok)
	assert.Equal(t, now, d.LastSeen)
	assert.True(t, d.IsOnline, "stale status must not override a fresher one")
	assert.Equal(t, 3, d.Priority)
}

func TestRegistry_UnknownPriorityIsZero(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	assert.Equal(t, 0, r.Priority("ghost"))
}

func TestRegistry_MarkStale(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	r.Touch("phone", now)
	r.Touch("tablet", now.Add(50*time.Second))

	now = now.Add(90 * time.Second)
	stale := r.MarkStale()

	assert.Equal(t, []string{"phone"}, stale)
	assert.Len(t, r.List(), 3, "stale devices are never deleted")

	online := r.Online()
	require.Len(t, online, 2)
	assert.Equal(t, "self", online[0].ID)
	assert.Equal(t, "tablet", online[1].ID)

	assert.Empty(t, r.MarkStale(), "already offline devices are not reported twice")
}

func TestRegistry_TouchRevivesDevice(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	r.Touch("phone", now)
	r.SetOffline("phone")
	d, _ := r.Get("phone")
	assert.False(t, d.IsOnline)

	r.Touch("phone", now.Add(time.Second))
	d, _ = r.Get("phone")
	assert.True(t, d.IsOnline)
	assert.Equal(t, now.Add(time.Second), d.LastSeen)
}

func TestRegistry_SelfNeverOffline(t *testing.T) {
	now := time.Unix(1000, 0)
	r := newTestRegistry(&now)

	r.SetOffline("self")
	now = now.Add(time.Hour)
	r.MarkStale()

	assert.True(t, r.Self().IsOnline)
}
