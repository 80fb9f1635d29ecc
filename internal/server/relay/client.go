package relay

import (
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one device connection served by the hub
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	ID       string
	UserID   string
	DeviceID string
	priority int
}

func newClient(hub *Hub, conn *websocket.Conn, userID, deviceID string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, hub.opts.SendBuffer),
		ID:       uuid.New().String(),
		UserID:   userID,
		DeviceID: deviceID,
	}
}

// readPump передает сообщения устройства в hub до закрытия соединения
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Relay read error", "device_id", c.DeviceID, "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.opts.PongWait))

		if msgType != websocket.TextMessage {
			continue
		}

		select {
		case c.hub.inbound <- inbound{client: c, message: message}:
		case <-c.hub.done:
			return
		}
	}
}

// writePump пишет очередь клиента, по одному конверту на фрейм, и шлет ping
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Debug("Relay write failed", "device_id", c.DeviceID, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
