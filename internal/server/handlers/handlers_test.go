package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
	"github.com/iudanet/handsync/internal/server/storage/sqlite"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelError, // Only show errors in tests
	}
	return slog.New(slog.NewTextHandler(io.Discard, opts))
}

func setupTestStorage(t *testing.T) *sqlite.Storage {
	t.Helper()

	s, err := sqlite.New(context.Background(), ":memory:", setupTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

// newRequest создает запрос от имени user1/device-a с переменными маршрута
func newRequest(t *testing.T, method, target string, body any, vars map[string]string) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	req = req.WithContext(WithIdentity(req.Context(), "user1", "device-a"))
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	return req
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

var errDatabaseDown = errors.New("database is down")

// failingStorage возвращает ошибку на любой вызов
type failingStorage struct{}

func (failingStorage) SaveChange(context.Context, string, *models.ChangeRecord) (storage.SaveResult, error) {
	return storage.SaveResult{}, errDatabaseDown
}

func (failingStorage) LatestChange(context.Context, string, string, string) (*models.ChangeRecord, error) {
	return nil, errDatabaseDown
}

func (failingStorage) ChangesSince(context.Context, string, string, int64) ([]*models.ChangeRecord, int64, error) {
	return nil, 0, errDatabaseDown
}

func (failingStorage) EntityChecksums(context.Context, string, string) (map[string]string, error) {
	return nil, errDatabaseDown
}

func (failingStorage) PutDevice(context.Context, string, *models.Device) error {
	return errDatabaseDown
}

func (failingStorage) GetDevice(context.Context, string, string) (*models.Device, error) {
	return nil, errDatabaseDown
}

func (failingStorage) ListDevices(context.Context, string) ([]*models.Device, error) {
	return nil, errDatabaseDown
}

func (failingStorage) SetOnline(context.Context, string, string, bool, int64) error {
	return errDatabaseDown
}
