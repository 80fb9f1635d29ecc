package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/crypto"
	"github.com/iudanet/handsync/internal/integrity"
	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/pkg/api"
)

func record(entityID, payload string, ts int64) *models.ChangeRecord {
	op := models.OperationUpdate
	if payload == "" {
		op = models.OperationDelete
	}
	return models.NewChangeRecord("handHistory", entityID, op, []byte(payload), ts, "device-a")
}

func TestChangesHandler_Push(t *testing.T) {
	sealer, err := crypto.NewSealer(make([]byte, crypto.KeyLen))
	require.NoError(t, err)

	sealed := record("h9", `{"v":9}`, 100)
	sealed.Payload, err = sealer.Seal(sealed.Payload)
	require.NoError(t, err)

	corrupt := record("h2", `{"v":2}`, 100)
	corrupt.Payload = []byte(`{"v":3}`)

	noChecksum := record("h3", `{"v":3}`, 100)
	noChecksum.Checksum = ""

	sealedNoChecksum := sealed.Clone()
	sealedNoChecksum.ID = "other"
	sealedNoChecksum.Checksum = ""

	badKey := record("h4", `{"v":4}`, 100)
	badKey.EntityID = "a/b"

	tests := []struct {
		body       any
		name       string
		wantStatus int
	}{
		{name: "create", body: record("h1", `{"v":1}`, 100), wantStatus: http.StatusCreated},
		{name: "delete", body: record("h1", "", 200), wantStatus: http.StatusCreated},
		{name: "sealed payload is accepted", body: sealed, wantStatus: http.StatusCreated},
		{name: "checksum mismatch", body: corrupt, wantStatus: http.StatusUnprocessableEntity},
		{name: "missing checksum", body: noChecksum, wantStatus: http.StatusUnprocessableEntity},
		{name: "sealed without checksum", body: sealedNoChecksum, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid entity id", body: badKey, wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid json", body: "{not json", wantStatus: http.StatusBadRequest},
	}

	s := setupTestStorage(t)
	handler := NewChangesHandler(setupTestLogger(), s)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", tt.body, nil))

			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			if tt.wantStatus == http.StatusCreated {
				resp := decode[api.PushResponse](t, w)
				assert.Positive(t, resp.Seq)
				assert.False(t, resp.Duplicate)
			} else {
				resp := decode[api.ErrorResponse](t, w)
				assert.NotEmpty(t, resp.Message)
			}
		})
	}
}

func TestChangesHandler_PushIsIdempotent(t *testing.T) {
	handler := NewChangesHandler(setupTestLogger(), setupTestStorage(t))
	rec := record("h1", `{"v":1}`, 100)

	w := httptest.NewRecorder()
	handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", rec, nil))
	require.Equal(t, http.StatusCreated, w.Code)
	first := decode[api.PushResponse](t, w)

	w = httptest.NewRecorder()
	handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", rec, nil))
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[api.PushResponse](t, w)

	assert.True(t, again.Duplicate)
	assert.Equal(t, first.Seq, again.Seq)

	// Тот же id с другим содержимым
	forged := record("h1", `{"v":2}`, 100)
	forged.ID = rec.ID
	w = httptest.NewRecorder()
	handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", forged, nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestChangesHandler_Entity(t *testing.T) {
	s := setupTestStorage(t)
	handler := NewChangesHandler(setupTestLogger(), s)

	newer := record("h1", `{"v":2}`, 200)
	for _, rec := range []*models.ChangeRecord{newer, record("h1", `{"v":1}`, 100)} {
		w := httptest.NewRecorder()
		handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", rec, nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	handler.Entity(w, newRequest(t, http.MethodGet, "/api/v1/entities/handHistory/h1", nil, map[string]string{"type": "handHistory", "id": "h1"}))
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[models.ChangeRecord](t, w)
	assert.Equal(t, newer.ID, got.ID, "state follows the newest change, not the last received")

	w = httptest.NewRecorder()
	handler.Entity(w, newRequest(t, http.MethodGet, "/api/v1/entities/handHistory/missing", nil, map[string]string{"type": "handHistory", "id": "missing"}))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.Entity(w, newRequest(t, http.MethodGet, "/api/v1/entities/1bad/h1", nil, map[string]string{"type": "1bad", "id": "h1"}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChangesHandler_ChangesSince(t *testing.T) {
	handler := NewChangesHandler(setupTestLogger(), setupTestStorage(t))

	for _, rec := range []*models.ChangeRecord{
		record("h1", `{"v":1}`, 300),
		record("h2", `{"v":2}`, 100),
	} {
		w := httptest.NewRecorder()
		handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", rec, nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	vars := map[string]string{"type": "handHistory"}

	w := httptest.NewRecorder()
	handler.ChangesSince(w, newRequest(t, http.MethodGet, "/api/v1/changes/handHistory", nil, vars))
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[api.ChangesResponse](t, w)
	require.Len(t, all.Changes, 2)
	assert.Equal(t, "h1", all.Changes[0].EntityID, "receive order, not timestamp order")

	w = httptest.NewRecorder()
	handler.ChangesSince(w, newRequest(t, http.MethodGet, "/api/v1/changes/handHistory?since=1", nil, vars))
	require.Equal(t, http.StatusOK, w.Code)
	later := decode[api.ChangesResponse](t, w)
	require.Len(t, later.Changes, 1)
	assert.Equal(t, "h2", later.Changes[0].EntityID)
	assert.Equal(t, all.Cursor, later.Cursor)

	w = httptest.NewRecorder()
	handler.ChangesSince(w, newRequest(t, http.MethodGet, "/api/v1/changes/handHistory?since=99", nil, vars))
	require.Equal(t, http.StatusOK, w.Code)
	none := decode[api.ChangesResponse](t, w)
	assert.NotNil(t, none.Changes)
	assert.Empty(t, none.Changes)
	assert.Equal(t, int64(99), none.Cursor)

	for _, since := range []string{"abc", "-1"} {
		w = httptest.NewRecorder()
		handler.ChangesSince(w, newRequest(t, http.MethodGet, "/api/v1/changes/handHistory?since="+since, nil, vars))
		assert.Equal(t, http.StatusBadRequest, w.Code, since)
	}
}

func TestChangesHandler_Checksum(t *testing.T) {
	handler := NewChangesHandler(setupTestLogger(), setupTestStorage(t))

	live := record("h1", `{"v":1}`, 100)
	for _, rec := range []*models.ChangeRecord{
		live,
		record("h2", `{"v":2}`, 100),
		record("h2", "", 200),
	} {
		w := httptest.NewRecorder()
		handler.Push(w, newRequest(t, http.MethodPost, "/api/v1/changes", rec, nil))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	handler.Checksum(w, newRequest(t, http.MethodGet, "/api/v1/checksum/handHistory", nil, map[string]string{"type": "handHistory"}))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[api.ChecksumResponse](t, w)
	assert.Equal(t, "handHistory", resp.EntityType)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, integrity.CollectionDigest(map[string]string{"h1": live.Checksum}), resp.Checksum)
}

func TestChangesHandler_StorageErrors(t *testing.T) {
	handler := NewChangesHandler(setupTestLogger(), failingStorage{})
	typeVars := map[string]string{"type": "handHistory"}

	tests := []struct {
		call func(w http.ResponseWriter, r *http.Request)
		req  *http.Request
		name string
	}{
		{name: "push", call: handler.Push, req: newRequest(t, http.MethodPost, "/api/v1/changes", record("h1", `{"v":1}`, 1), nil)},
		{name: "entity", call: handler.Entity, req: newRequest(t, http.MethodGet, "/", nil, map[string]string{"type": "handHistory", "id": "h1"})},
		{name: "changes", call: handler.ChangesSince, req: newRequest(t, http.MethodGet, "/", nil, typeVars)},
		{name: "checksum", call: handler.Checksum, req: newRequest(t, http.MethodGet, "/", nil, typeVars)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.call(w, tt.req)

			assert.Equal(t, http.StatusInternalServerError, w.Code)
			resp := decode[api.ErrorResponse](t, w)
			assert.NotContains(t, resp.Message, errDatabaseDown.Error(), "internal details stay on the server")
		})
	}
}

func TestChangesHandler_Unauthorized(t *testing.T) {
	handler := NewChangesHandler(setupTestLogger(), failingStorage{})

	for name, call := range map[string]http.HandlerFunc{
		"push":     handler.Push,
		"entity":   handler.Entity,
		"changes":  handler.ChangesSince,
		"checksum": handler.Checksum,
	} {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			call(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
