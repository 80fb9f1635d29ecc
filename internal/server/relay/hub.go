// Package relay forwards realtime envelopes between connected devices of one user.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/internal/server/storage"
	"github.com/iudanet/handsync/pkg/api"
)

// DeviceID is the sender id of envelopes produced by the relay itself
const DeviceID = "relay"

const storeTimeout = 5 * time.Second

// DeviceStore persists device presence seen by the relay
type DeviceStore interface {
	PutDevice(ctx context.Context, userID string, device *models.Device) error
	GetDevice(ctx context.Context, userID, deviceID string) (*models.Device, error)
	SetOnline(ctx context.Context, userID, deviceID string, online bool, seen int64) error
}

// Options настройки соединений relay
type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	MaxConnPerUser int
	SendBuffer     int
}

// DefaultOptions returns options matching the server defaults
func DefaultOptions() Options {
	return Options{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 10 << 20,
		MaxConnPerUser: 16,
		SendBuffer:     256,
	}
}

type inbound struct {
	client  *Client
	message []byte
}

// Hub owns all relay connections. Connection maps are changed only by Run.
type Hub struct {
	devices    DeviceStore
	logger     *slog.Logger
	now        func() time.Time
	users      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}
	opts       Options
	mu         sync.RWMutex
}

// NewHub creates a hub. devices may be nil, then presence is not persisted.
func NewHub(opts Options, devices DeviceStore, logger *slog.Logger) *Hub {
	def := DefaultOptions()
	if opts.WriteWait <= 0 {
		opts.WriteWait = def.WriteWait
	}
	if opts.PongWait <= 0 {
		opts.PongWait = def.PongWait
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = def.MaxMessageSize
	}
	if opts.MaxConnPerUser <= 0 {
		opts.MaxConnPerUser = def.MaxConnPerUser
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = def.SendBuffer
	}

	return &Hub{
		devices:    devices,
		logger:     logger,
		now:        time.Now,
		users:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		opts:       opts,
	}
}

// Run processes registrations and messages until ctx is cancelled,
// then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case client := <-h.register:
			h.registerClient(ctx, client)

		case client := <-h.unregister:
			h.unregisterClient(ctx, client)

		case msg := <-h.inbound:
			h.processMessage(ctx, msg.client, msg.message)

		case <-ctx.Done():
			return
		}
	}
}

// Serve runs one upgraded connection until it closes
func (h *Hub) Serve(conn *websocket.Conn, userID, deviceID string) {
	client := newClient(h, conn, userID, deviceID)

	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

// Connections returns the number of live connections of the user
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.users[userID])
}

// Online returns ids of the user's connected devices
func (h *Hub) Online(userID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		ids = append(ids, c.DeviceID)
	}
	return ids
}

func (h *Hub) shutdown() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.users {
		for c := range clients {
			close(c.send)
		}
		delete(h.users, userID)
	}
}

func (h *Hub) registerClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	clients := h.users[client.UserID]
	if clients == nil {
		clients = make(map[*Client]struct{})
		h.users[client.UserID] = clients
	}

	// Повторное подключение того же устройства вытесняет старое соединение
	for c := range clients {
		if c.DeviceID == client.DeviceID {
			delete(clients, c)
			close(c.send)
			h.logger.Info("Replaced relay connection", "user_id", c.UserID, "device_id", c.DeviceID, "conn_id", c.ID)
		}
	}

	if len(clients) >= h.opts.MaxConnPerUser {
		h.mu.Unlock()
		h.logger.Warn("Max relay connections reached", "user_id", client.UserID, "limit", h.opts.MaxConnPerUser)
		close(client.send)
		return
	}

	clients[client] = struct{}{}
	peers := h.peersLocked(client)
	h.mu.Unlock()

	h.logger.Info("Relay client registered", "user_id", client.UserID, "device_id", client.DeviceID, "conn_id", client.ID)

	device := h.markOnline(ctx, client)
	client.priority = device.Priority

	if raw, err := statusMessage(device, h.now()); err == nil {
		h.broadcast(ctx, client, peers, raw)
	}

	// Новому устройству сообщаем, кто уже на связи
	for _, peer := range peers {
		d := &models.Device{ID: peer.DeviceID, Priority: peer.priority, IsOnline: true, LastSeen: h.now()}
		if stored := h.lookup(ctx, peer); stored != nil {
			d = stored
		}
		if raw, err := statusMessage(d, h.now()); err == nil {
			h.send(ctx, client, raw)
		}
	}
}

func (h *Hub) unregisterClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	clients := h.users[client.UserID]
	if _, ok := clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.users, client.UserID)
	}
	close(client.send)
	peers := h.peersLocked(client)
	h.mu.Unlock()

	h.logger.Info("Relay client unregistered", "user_id", client.UserID, "device_id", client.DeviceID, "conn_id", client.ID)

	now := h.now()
	if h.devices != nil {
		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := h.devices.SetOnline(storeCtx, client.UserID, client.DeviceID, false, now.UnixMilli())
		cancel()
		if err != nil && !errors.Is(err, storage.ErrDeviceNotFound) {
			h.logger.Error("Failed to mark device offline", "device_id", client.DeviceID, "error", err)
		}
	}

	device := &models.Device{ID: client.DeviceID, Priority: client.priority, LastSeen: now}
	if stored := h.lookup(ctx, client); stored != nil {
		device = stored
		device.IsOnline = false
	}
	if raw, err := statusMessage(device, now); err == nil {
		h.broadcast(ctx, client, peers, raw)
	}
}

// processMessage маршрутизирует одно сообщение устройства
func (h *Hub) processMessage(ctx context.Context, client *Client, message []byte) {
	var env api.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		h.logger.Warn("Dropping undecodable relay message", "device_id", client.DeviceID, "error", err)
		return
	}
	if err := env.Validate(); err != nil {
		h.logger.Warn("Dropping invalid relay message", "device_id", client.DeviceID, "error", err)
		return
	}
	if env.FromDevice != client.DeviceID {
		h.logger.Warn("Dropping relay message with foreign sender",
			"device_id", client.DeviceID,
			"from", env.FromDevice,
			"type", env.Type,
		)
		return
	}
	client.priority = env.Priority

	switch env.Type {
	case api.MessageHeartbeat:
		h.replyHeartbeat(ctx, client, &env)
		h.touch(ctx, client)

	case api.MessageDeviceStatus:
		var d models.Device
		if err := env.DecodeData(&d); err != nil || d.ID != client.DeviceID {
			h.logger.Warn("Dropping malformed device status", "device_id", client.DeviceID, "error", err)
			return
		}
		d.IsOnline = true
		d.LastSeen = h.now()
		client.priority = d.Priority
		if h.devices != nil {
			storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
			err := h.devices.PutDevice(storeCtx, client.UserID, &d)
			cancel()
			if err != nil {
				h.logger.Error("Failed to save device status", "device_id", d.ID, "error", err)
			}
		}
	}

	h.route(ctx, client, &env, message)
}

// route пересылает сообщение адресату или всем остальным устройствам пользователя
func (h *Hub) route(ctx context.Context, from *Client, env *api.Envelope, raw []byte) {
	h.mu.RLock()
	peers := h.peersLocked(from)
	h.mu.RUnlock()

	if env.ToDevice == "" {
		h.broadcast(ctx, from, peers, raw)
		return
	}

	for _, peer := range peers {
		if peer.DeviceID == env.ToDevice {
			h.send(ctx, peer, raw)
			return
		}
	}

	h.logger.Debug("Relay target is offline", "from", from.DeviceID, "to", env.ToDevice, "type", env.Type)
}

func (h *Hub) broadcast(ctx context.Context, from *Client, peers []*Client, raw []byte) {
	for _, peer := range peers {
		h.send(ctx, peer, raw)
	}
	h.logger.Debug("Relay broadcast", "from", from.DeviceID, "peers", len(peers))
}

// send ставит сообщение в очередь клиента. Клиент с переполненной очередью отключается.
func (h *Hub) send(ctx context.Context, client *Client, raw []byte) {
	h.mu.RLock()
	_, alive := h.users[client.UserID][client]
	h.mu.RUnlock()
	if !alive {
		return
	}

	select {
	case client.send <- raw:
	default:
		h.logger.Warn("Relay send buffer full, closing connection", "device_id", client.DeviceID, "conn_id", client.ID)
		h.unregisterClient(ctx, client)
	}
}

func (h *Hub) replyHeartbeat(ctx context.Context, client *Client, env *api.Envelope) {
	reply, err := api.NewEnvelope(api.MessageHeartbeat, DeviceID, client.DeviceID, 0, h.now().UnixMilli(), api.HeartbeatData{
		ReplyTo: env.ID,
		Online:  true,
	})
	if err != nil {
		h.logger.Error("Failed to build heartbeat reply", "error", err)
		return
	}

	raw, err := json.Marshal(reply)
	if err != nil {
		h.logger.Error("Failed to encode heartbeat reply", "error", err)
		return
	}
	h.send(ctx, client, raw)
}

// peersLocked возвращает остальные соединения пользователя. Требует h.mu.
func (h *Hub) peersLocked(client *Client) []*Client {
	peers := make([]*Client, 0, len(h.users[client.UserID]))
	for c := range h.users[client.UserID] {
		if c != client {
			peers = append(peers, c)
		}
	}
	return peers
}

// markOnline отмечает устройство в каталоге и возвращает его запись
func (h *Hub) markOnline(ctx context.Context, client *Client) *models.Device {
	now := h.now()
	device := h.lookup(ctx, client)
	if device == nil {
		device = &models.Device{ID: client.DeviceID}
	}
	device.IsOnline = true
	device.LastSeen = now

	if h.devices != nil {
		storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err := h.devices.PutDevice(storeCtx, client.UserID, device)
		cancel()
		if err != nil {
			h.logger.Error("Failed to mark device online", "device_id", client.DeviceID, "error", err)
		}
	}

	return device
}

func (h *Hub) touch(ctx context.Context, client *Client) {
	if h.devices == nil {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	err := h.devices.SetOnline(storeCtx, client.UserID, client.DeviceID, true, h.now().UnixMilli())
	if err != nil && !errors.Is(err, storage.ErrDeviceNotFound) {
		h.logger.Warn("Failed to update device lastSeen", "device_id", client.DeviceID, "error", err)
	}
}

func (h *Hub) lookup(ctx context.Context, client *Client) *models.Device {
	if h.devices == nil {
		return nil
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	device, err := h.devices.GetDevice(storeCtx, client.UserID, client.DeviceID)
	if err != nil {
		if !errors.Is(err, storage.ErrDeviceNotFound) {
			h.logger.Warn("Failed to get device", "device_id", client.DeviceID, "error", err)
		}
		return nil
	}
	return device
}

// statusMessage кодирует device_status от имени устройства
func statusMessage(device *models.Device, now time.Time) ([]byte, error) {
	env, err := api.NewEnvelope(api.MessageDeviceStatus, device.ID, "", device.Priority, now.UnixMilli(), device)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}
