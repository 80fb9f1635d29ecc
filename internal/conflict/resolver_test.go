package conflict

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/models"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testFactory(key models.EntityKey, op models.Operation, payload []byte, after int64) *models.ChangeRecord {
	return models.NewChangeRecord(key.Type, key.ID, op, payload, after+1, "self")
}

func newTestResolver(priorities map[string]int) *Resolver {
	return NewResolver("self", func(id string) int { return priorities[id] }, testFactory, setupTestLogger())
}

func TestParsePolicy(t *testing.T) {
	for _, s := range []string{"local", "remote", "newest", "priority", "manual", "merge"} {
		p, err := ParsePolicy(s)
		require.NoError(t, err)
		assert.Equal(t, Policy(s), p)
	}

	_, err := ParsePolicy("random")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestResolver_Local(t *testing.T) {
	r := newTestResolver(nil)
	local := rec("42", `{"v":1}`, 100, "self")
	remote := rec("42", `{"v":2}`, 200, "peer")

	d, err := r.Resolve(PolicyLocal, []*models.ChangeRecord{remote, local})
	require.NoError(t, err)

	assert.Equal(t, local.ID, d.Chosen.ID)
	assert.Equal(t, models.ResolutionLocal, d.Resolution)
	require.Len(t, d.Discarded, 1)
	assert.Equal(t, remote.ID, d.Discarded[0].ID)

	// Локальная запись старше удаленной: победитель переиздается поверх нее
	assert.True(t, d.Reissued)
	assert.JSONEq(t, `{"v":1}`, string(d.Winner.Payload))
	assert.Greater(t, d.Winner.Timestamp, remote.Timestamp)
}

func TestResolver_Remote(t *testing.T) {
	r := newTestResolver(nil)
	local := rec("42", `{"v":1}`, 300, "self")
	remote := rec("42", `{"v":2}`, 200, "peer")

	d, err := r.Resolve(PolicyRemote, []*models.ChangeRecord{local, remote})
	require.NoError(t, err)
	assert.Equal(t, remote.ID, d.Chosen.ID)
	assert.True(t, d.Reissued)
	assert.JSONEq(t, `{"v":2}`, string(d.Winner.Payload))
	assert.Equal(t, "self", d.Winner.OriginDevice)
	assert.Greater(t, d.Winner.Timestamp, local.Timestamp)
}

func TestResolver_LocalWithoutLocalRecordsFallsBackToNewest(t *testing.T) {
	r := newTestResolver(nil)
	a := rec("42", `{"v":1}`, 100, "peer-a")
	b := rec("42", `{"v":2}`, 200, "peer-b")

	d, err := r.Resolve(PolicyLocal, []*models.ChangeRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, b.ID, d.Winner.ID)
	assert.Equal(t, models.ResolutionNewest, d.Resolution)
}

func TestResolver_NewestIsDeterministic(t *testing.T) {
	r := newTestResolver(nil)
	older := rec("42", `{"v":1}`, 100, "a")
	newer := rec("42", `{"v":2}`, 200, "b")
	middle := rec("42", `{"v":3}`, 150, "c")

	permutations := [][]*models.ChangeRecord{
		{older, newer, middle},
		{newer, older, middle},
		{middle, older, newer},
		{middle, newer, older},
		{older, middle, newer},
		{newer, middle, older},
	}

	for _, records := range permutations {
		d, err := r.Resolve(PolicyNewest, records)
		require.NoError(t, err)
		assert.Equal(t, int64(200), d.Winner.Timestamp)
		assert.Len(t, d.Discarded, 2)
	}
}

func TestResolver_NewestTieBrokenByOrigin(t *testing.T) {
	r := newTestResolver(nil)
	a := rec("42", `{"v":1}`, 100, "device-a")
	b := rec("42", `{"v":2}`, 100, "device-b")

	d1, err := r.Resolve(PolicyNewest, []*models.ChangeRecord{a, b})
	require.NoError(t, err)
	d2, err := r.Resolve(PolicyNewest, []*models.ChangeRecord{b, a})
	require.NoError(t, err)

	assert.Equal(t, b.ID, d1.Winner.ID)
	assert.Equal(t, b.ID, d2.Winner.ID)
}

func TestResolver_PriorityBeatsTimestamp(t *testing.T) {
	// A (priority 5) writes {v:1} at T=100, B (priority 10) writes {v:2} at T=90 offline.
	r := newTestResolver(map[string]int{"device-a": 5, "device-b": 10})
	a := rec("42", `{"v":1}`, 100, "device-a")
	b := rec("42", `{"v":2}`, 90, "device-b")

	for _, records := range [][]*models.ChangeRecord{{a, b}, {b, a}} {
		d, err := r.Resolve(PolicyPriority, records)
		require.NoError(t, err)
		assert.Equal(t, b.ID, d.Chosen.ID)
		assert.JSONEq(t, `{"v":2}`, string(d.Winner.Payload))
		assert.Greater(t, d.Winner.Timestamp, a.Timestamp, "the resolved record must outrank the loser under the newest rule")
		require.Len(t, d.Discarded, 1)
		assert.Equal(t, a.ID, d.Discarded[0].ID)
	}
}

func TestResolver_Reissue(t *testing.T) {
	a := rec("42", `{"v":1}`, 100, "device-a")
	b := rec("42", `{"v":2}`, 90, "device-b")
	deleted := models.NewChangeRecord(models.EntityHandHistory, "42", models.OperationDelete, nil, 80, "device-c")
	created := models.NewChangeRecord(models.EntityHandHistory, "42", models.OperationCreate, []byte(`{"v":3}`), 70, "device-d")

	tests := []struct {
		name      string
		records   []*models.ChangeRecord
		resolver  *Resolver
		chosen    string
		reissued  bool
		operation models.Operation
	}{
		{
			name:      "newest winner is kept",
			records:   []*models.ChangeRecord{a, b},
			resolver:  newTestResolver(map[string]int{"device-a": 10}),
			chosen:    a.ID,
			operation: models.OperationUpdate,
		},
		{
			name:      "older winner is reissued",
			records:   []*models.ChangeRecord{a, b},
			resolver:  newTestResolver(map[string]int{"device-b": 10}),
			chosen:    b.ID,
			reissued:  true,
			operation: models.OperationUpdate,
		},
		{
			name:      "older delete stays a delete",
			records:   []*models.ChangeRecord{a, deleted},
			resolver:  newTestResolver(map[string]int{"device-c": 10}),
			chosen:    deleted.ID,
			reissued:  true,
			operation: models.OperationDelete,
		},
		{
			name:      "older create becomes an update",
			records:   []*models.ChangeRecord{a, created},
			resolver:  newTestResolver(map[string]int{"device-d": 10}),
			chosen:    created.ID,
			reissued:  true,
			operation: models.OperationUpdate,
		},
		{
			name:      "without a record factory the winner is kept",
			records:   []*models.ChangeRecord{a, b},
			resolver:  NewResolver("self", func(id string) int { return map[string]int{"device-b": 10}[id] }, nil, setupTestLogger()),
			chosen:    b.ID,
			operation: models.OperationUpdate,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := tt.resolver.Resolve(PolicyPriority, tt.records)
			require.NoError(t, err)

			assert.Equal(t, tt.chosen, d.Chosen.ID)
			assert.Equal(t, tt.reissued, d.Reissued)
			assert.Equal(t, tt.operation, d.Winner.Operation)
			assert.Len(t, d.Discarded, 1)

			if !tt.reissued {
				assert.Equal(t, tt.chosen, d.Winner.ID)
				return
			}
			assert.NotEqual(t, tt.chosen, d.Winner.ID)
			assert.Equal(t, "self", d.Winner.OriginDevice)
			assert.Equal(t, d.Chosen.Checksum, d.Winner.Checksum)
			for _, r := range tt.records {
				assert.True(t, d.Winner.IsNewerThan(r))
			}
		})
	}
}

func TestResolver_PriorityTieFallsBackToNewest(t *testing.T) {
	r := newTestResolver(map[string]int{"device-a": 5, "device-b": 5})
	a := rec("42", `{"v":1}`, 100, "device-a")
	b := rec("42", `{"v":2}`, 90, "device-b")

	d, err := r.Resolve(PolicyPriority, []*models.ChangeRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, a.ID, d.Winner.ID)
}

func TestResolver_Manual(t *testing.T) {
	r := newTestResolver(nil)

	d, err := r.Resolve(PolicyManual, []*models.ChangeRecord{rec("1", `{}`, 1, "a"), rec("1", `[]`, 2, "b")})
	require.NoError(t, err)
	assert.True(t, d.Manual)
	assert.Nil(t, d.Winner)
}

func TestResolver_MergeWithoutHookIsNewest(t *testing.T) {
	r := newTestResolver(nil)
	a := rec("42", `{"v":1}`, 100, "a")
	b := rec("42", `{"v":2}`, 200, "b")

	d, err := r.Resolve(PolicyMerge, []*models.ChangeRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, b.ID, d.Winner.ID)
	assert.Equal(t, models.ResolutionNewest, d.Resolution)
}

func TestResolver_MergeHook(t *testing.T) {
	r := newTestResolver(nil)
	r.SetMergeFunc(func(key models.EntityKey, records []*models.ChangeRecord) (json.RawMessage, error) {
		assert.Equal(t, "42", key.ID)
		return json.RawMessage(`{"v":3}`), nil
	})

	a := rec("42", `{"v":1}`, 100, "a")
	b := rec("42", `{"v":2}`, 200, "b")

	d, err := r.Resolve(PolicyMerge, []*models.ChangeRecord{a, b})
	require.NoError(t, err)

	assert.Equal(t, models.ResolutionMerge, d.Resolution)
	assert.JSONEq(t, `{"v":3}`, string(d.Winner.Payload))
	assert.Equal(t, "self", d.Winner.OriginDevice)
	assert.Greater(t, d.Winner.Timestamp, b.Timestamp)
	assert.Len(t, d.Discarded, 2)
	assert.True(t, d.Reissued)
	assert.Nil(t, d.Chosen)
}

func TestResolver_MergeHookErrorFallsBack(t *testing.T) {
	r := newTestResolver(nil)
	r.SetMergeFunc(func(models.EntityKey, []*models.ChangeRecord) (json.RawMessage, error) {
		return nil, errors.New("boom")
	})

	a := rec("42", `{"v":1}`, 100, "a")
	b := rec("42", `{"v":2}`, 200, "b")

	d, err := r.Resolve(PolicyMerge, []*models.ChangeRecord{a, b})
	require.NoError(t, err)
	assert.Equal(t, b.ID, d.Winner.ID)
	assert.Equal(t, models.ResolutionNewest, d.Resolution)
}

func TestResolver_Errors(t *testing.T) {
	r := newTestResolver(nil)

	_, err := r.Resolve(PolicyNewest, nil)
	assert.ErrorIs(t, err, ErrNoRecords)

	_, err = r.Resolve("bogus", []*models.ChangeRecord{rec("1", `{}`, 1, "a")})
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}
