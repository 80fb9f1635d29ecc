package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
	"github.com/iudanet/handsync/pkg/api"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type memDevices struct {
	devices map[string]*models.Device
	mu      sync.Mutex
}

func newMemDevices() *memDevices {
	return &memDevices{devices: make(map[string]*models.Device)}
}

func (m *memDevices) PutDevice(_ context.Context, userID string, d *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[userID+"/"+d.ID] = d.Clone()
	return nil
}

func (m *memDevices) GetDevice(_ context.Context, userID, deviceID string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[userID+"/"+deviceID]
	if !ok {
		return nil, storage.ErrDeviceNotFound
	}
	return d.Clone(), nil
}

func (m *memDevices) SetOnline(_ context.Context, userID, deviceID string, online bool, seen int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[userID+"/"+deviceID]
	if !ok {
		return storage.ErrDeviceNotFound
	}
	d.IsOnline = online
	d.LastSeen = time.UnixMilli(seen)
	return nil
}

func (m *memDevices) get(userID, deviceID string) *models.Device {
	d, _ := m.GetDevice(context.Background(), userID, deviceID)
	return d
}

func startHub(t *testing.T, opts Options, devices DeviceStore) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(opts, devices, setupTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, r.URL.Query().Get("user"), r.URL.Query().Get("device"))
	}))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, userID, deviceID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID + "&device=" + deviceID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

// connect подключает устройство и ждет его регистрации в hub
func connect(t *testing.T, hub *Hub, srv *httptest.Server, userID, deviceID string) *websocket.Conn {
	t.Helper()

	conn := dial(t, srv, userID, deviceID)
	require.Eventually(t, func() bool {
		for _, id := range hub.Online(userID) {
			if id == deviceID {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	return conn
}

func write(t *testing.T, conn *websocket.Conn, msgType api.MessageType, from, to string, data any) *api.Envelope {
	t.Helper()

	env, err := api.NewEnvelope(msgType, from, to, 5, time.Now().UnixMilli(), data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(env))
	return env
}

// expect читает сообщения, пропуская не подходящие, до первого совпадения
func expect(t *testing.T, conn *websocket.Conn, match func(*api.Envelope) bool) *api.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env api.Envelope
		require.NoError(t, conn.ReadJSON(&env))
		if match(&env) {
			return &env
		}
	}
}

// expectNone проверяет, что подходящих сообщений нет в течение короткого окна
func expectNone(t *testing.T, conn *websocket.Conn, match func(*api.Envelope) bool) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	for {
		var env api.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		assert.False(t, match(&env), "unexpected %s message from %s", env.Type, env.FromDevice)
	}
}

func ofType(msgType api.MessageType, from string) func(*api.Envelope) bool {
	return func(env *api.Envelope) bool {
		return env.Type == msgType && env.FromDevice == from
	}
}

func TestHub_HeartbeatReplyAndForward(t *testing.T) {
	hub, srv := startHub(t, Options{}, nil)
	a := connect(t, hub, srv, "user1", "device-a")
	b := connect(t, hub, srv, "user1", "device-b")

	sent := write(t, b, api.MessageHeartbeat, "device-b", "", api.HeartbeatData{PendingChanges: 2, Online: true})

	reply := expect(t, b, ofType(api.MessageHeartbeat, DeviceID))
	assert.Equal(t, "device-b", reply.ToDevice)
	var data api.HeartbeatData
	require.NoError(t, reply.DecodeData(&data))
	assert.Equal(t, sent.ID, data.ReplyTo)

	forwarded := expect(t, a, ofType(api.MessageHeartbeat, "device-b"))
	assert.Equal(t, sent.ID, forwarded.ID)
	require.NoError(t, forwarded.DecodeData(&data))
	assert.Equal(t, 2, data.PendingChanges)
	assert.Empty(t, data.ReplyTo)
}

func TestHub_AnnouncesJoinAndLeave(t *testing.T) {
	devices := newMemDevices()
	require.NoError(t, devices.PutDevice(context.Background(), "user1", &models.Device{ID: "device-b", Name: "phone", Priority: 10}))

	hub, srv := startHub(t, Options{}, devices)
	a := connect(t, hub, srv, "user1", "device-a")
	b := connect(t, hub, srv, "user1", "device-b")

	joined := expect(t, a, ofType(api.MessageDeviceStatus, "device-b"))
	var d models.Device
	require.NoError(t, joined.DecodeData(&d))
	assert.Equal(t, "device-b", d.ID)
	assert.Equal(t, "phone", d.Name)
	assert.Equal(t, 10, joined.Priority)
	assert.True(t, d.IsOnline)

	// Новое устройство узнает о тех, кто уже на связи
	present := expect(t, b, ofType(api.MessageDeviceStatus, "device-a"))
	require.NoError(t, present.DecodeData(&d))
	assert.True(t, d.IsOnline)

	assert.True(t, devices.get("user1", "device-b").IsOnline)
	assert.True(t, devices.get("user1", "device-a").IsOnline, "unknown device is registered on join")

	require.NoError(t, b.Close())

	left := expect(t, a, ofType(api.MessageDeviceStatus, "device-b"))
	require.NoError(t, left.DecodeData(&d))
	assert.False(t, d.IsOnline)
	assert.Equal(t, "phone", d.Name)

	require.Eventually(t, func() bool {
		return hub.Connections("user1") == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, devices.get("user1", "device-b").IsOnline)
}

func TestHub_RoutesSync(t *testing.T) {
	hub, srv := startHub(t, Options{}, nil)
	a := connect(t, hub, srv, "user1", "device-a")
	b := connect(t, hub, srv, "user1", "device-b")
	c := connect(t, hub, srv, "user1", "device-c")
	other := connect(t, hub, srv, "user2", "device-x")

	rec := models.NewChangeRecord("handHistory", "h1", models.OperationCreate, []byte(`{"v":1}`), 100, "device-a")

	// Рассылка всем остальным устройствам пользователя
	broadcast := write(t, a, api.MessageSync, "device-a", "", api.SyncData{Changes: []*models.ChangeRecord{rec}})
	for _, conn := range []*websocket.Conn{b, c} {
		got := expect(t, conn, ofType(api.MessageSync, "device-a"))
		assert.Equal(t, broadcast.ID, got.ID)

		var data api.SyncData
		require.NoError(t, got.DecodeData(&data))
		require.Len(t, data.Changes, 1)
		assert.NoError(t, data.Changes[0].Verify())
	}

	// Адресное сообщение получает только адресат
	targeted := write(t, a, api.MessageConflict, "device-a", "device-c", &models.Conflict{ID: "c1"})
	got := expect(t, c, ofType(api.MessageConflict, "device-a"))
	assert.Equal(t, targeted.ID, got.ID)

	expectNone(t, b, ofType(api.MessageConflict, "device-a"))
	expectNone(t, other, func(env *api.Envelope) bool { return env.FromDevice == "device-a" })
	expectNone(t, a, ofType(api.MessageSync, "device-a"))
}

func TestHub_DropsForeignAndInvalidMessages(t *testing.T) {
	hub, srv := startHub(t, Options{}, nil)
	a := connect(t, hub, srv, "user1", "device-a")
	b := connect(t, hub, srv, "user1", "device-b")

	write(t, b, api.MessageBroadcast, "device-c", "", nil)
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`{"id":"x","type":"unknown","fromDevice":"device-b"}`)))
	require.NoError(t, b.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	valid := write(t, b, api.MessageBroadcast, "device-b", "", nil)

	got := expect(t, a, func(env *api.Envelope) bool { return env.Type != api.MessageDeviceStatus })
	assert.Equal(t, valid.ID, got.ID, "only the valid message is forwarded")
}

func TestHub_DeviceStatusIsPersisted(t *testing.T) {
	devices := newMemDevices()
	hub, srv := startHub(t, Options{}, devices)
	a := connect(t, hub, srv, "user1", "device-a")
	b := connect(t, hub, srv, "user1", "device-b")

	write(t, b, api.MessageDeviceStatus, "device-b", "", &models.Device{ID: "device-b", Name: "tablet", Class: models.DeviceClassTablet, Priority: 3})

	got := expect(t, a, func(env *api.Envelope) bool {
		var d models.Device
		return env.Type == api.MessageDeviceStatus && env.DecodeData(&d) == nil && d.Name == "tablet"
	})
	assert.Equal(t, "device-b", got.FromDevice)

	require.Eventually(t, func() bool {
		d := devices.get("user1", "device-b")
		return d != nil && d.Name == "tablet" && d.IsOnline && d.Priority == 3
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_MaxConnectionsPerUser(t *testing.T) {
	hub, srv := startHub(t, Options{MaxConnPerUser: 1}, nil)
	connect(t, hub, srv, "user1", "device-a")

	rejected := dial(t, srv, "user1", "device-b")
	require.NoError(t, rejected.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := rejected.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)

	assert.Equal(t, 1, hub.Connections("user1"))
	assert.Equal(t, []string{"device-a"}, hub.Online("user1"))
}

func TestHub_ReconnectReplacesConnection(t *testing.T) {
	hub, srv := startHub(t, Options{}, nil)
	peer := connect(t, hub, srv, "user1", "device-a")
	old := connect(t, hub, srv, "user1", "device-b")

	fresh := dial(t, srv, "user1", "device-b")
	require.NoError(t, old.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			break
		}
	}

	require.Eventually(t, func() bool {
		return hub.Connections("user1") == 2
	}, 2*time.Second, 5*time.Millisecond)

	sent := write(t, peer, api.MessageBroadcast, "device-a", "device-b", nil)
	got := expect(t, fresh, ofType(api.MessageBroadcast, "device-a"))
	assert.Equal(t, sent.ID, got.ID)
}

func TestHub_ShutdownClosesConnections(t *testing.T) {
	hub := NewHub(Options{}, nil, setupTestLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, "user1", "device-a")
	}))
	defer srv.Close()

	conn := connect(t, hub, srv, "user1", "device-a")
	cancel()
	<-done

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
	assert.Zero(t, hub.Connections("user1"))
}

func TestStatusMessage(t *testing.T) {
	raw, err := statusMessage(&models.Device{ID: "device-a", Priority: 4, IsOnline: true}, time.UnixMilli(1000))
	require.NoError(t, err)

	var env api.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.Equal(t, api.MessageDeviceStatus, env.Type)
	assert.Equal(t, "device-a", env.FromDevice)
	assert.Equal(t, 4, env.Priority)
	assert.Equal(t, int64(1000), env.Timestamp)
}
