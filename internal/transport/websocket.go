package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/handsync/pkg/api"
)

//go:generate moq -out conn_mock.go . Conn Dialer

// Conn is one established realtime connection exchanging envelopes.
// Read is called from one goroutine and Write from another; Close unblocks both.
type Conn interface {
	Read() (*api.Envelope, error)
	Write(env *api.Envelope) error
	Close() error
}

// Dialer opens realtime connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 10 << 20
)

// WebSocketDialer dials the relay over a websocket.
type WebSocketDialer struct {
	// Header returns request headers for each dial, e.g. a fresh Authorization header.
	Header func() http.Header
	URL    string
	dialer websocket.Dialer
}

// NewWebSocketDialer creates a dialer for url.
func NewWebSocketDialer(url string, header func() http.Header) *WebSocketDialer {
	return &WebSocketDialer{
		URL:    url,
		Header: header,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

// Dial connects to the relay. ctx bounds the handshake.
func (d *WebSocketDialer) Dial(ctx context.Context) (Conn, error) {
	var header http.Header
	if d.Header != nil {
		header = d.Header()
	}

	conn, resp, err := d.dialer.DialContext(ctx, d.URL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to dial %s: status %d: %w", d.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("failed to dial %s: %w", d.URL, err)
	}

	return NewWebSocketConn(conn), nil
}

// WebSocketConn adapts a gorilla websocket connection to Conn.
type WebSocketConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewWebSocketConn wraps an established websocket connection.
func NewWebSocketConn(conn *websocket.Conn) *WebSocketConn {
	conn.SetReadLimit(maxMessageSize)
	return &WebSocketConn{conn: conn}
}

// Read blocks until the next envelope arrives.
func (c *WebSocketConn) Read() (*api.Envelope, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType != websocket.TextMessage {
			continue
		}

		env := &api.Envelope{}
		if err := json.Unmarshal(data, env); err != nil {
			return nil, fmt.Errorf("failed to decode envelope: %w", err)
		}
		return env, nil
	}
}

// Write sends one envelope as a text frame.
func (c *WebSocketConn) Write(env *api.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame and closes the connection.
func (c *WebSocketConn) Close() error {
	c.writeMu.Lock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	return c.conn.Close()
}
