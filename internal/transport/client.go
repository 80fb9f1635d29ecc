// Package transport keeps a persistent realtime channel to the relay: heartbeats,
// idle detection, reconnection with exponential backoff and a bounded backlog of
// messages sent while disconnected.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iudanet/handsync/internal/models"
	"github.com/iudanet/handsync/pkg/api"
)

// Options параметры realtime соединения
type Options struct {
	// Device возвращает запись текущего устройства для объявления при подключении
	Device func() *models.Device
	// PendingCount возвращает число неподтвержденных изменений для heartbeat
	PendingCount func() int
	// Now источник времени для timestamp сообщений
	Now func() time.Time

	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	DialTimeout       time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	MaxAttempts       int // 0 - без ограничения
	BacklogSize       int
}

// Hooks колбэки соединения. Все вызываются из горутины соединения и не должны
// вызывать Disconnect.
type Hooks struct {
	OnEnvelope         func(env *api.Envelope)
	OnStateChange      func(state State)
	OnLatency          func(rtt time.Duration)
	OnReconnectPending func(attempt int, delay time.Duration)
	OnGiveUp           func(attempts int)
}

// Client realtime соединение одного устройства с relay.
type Client struct {
	dialer  Dialer
	hooks   Hooks
	logger  *slog.Logger
	opts    Options
	backoff *Backoff

	state atomic.Int32

	queue    []*api.Envelope // исходящие сообщения и backlog
	queueMu  sync.Mutex
	notify   chan struct{}
	dropped  int
	pings    map[string]time.Time // map[heartbeatID]sentAt
	pingsMu  sync.Mutex
	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewClient creates a disconnected client.
func NewClient(dialer Dialer, opts Options, hooks Hooks, logger *slog.Logger) *Client {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 3 * opts.HeartbeatInterval
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 10 * time.Second
	}
	if opts.BacklogSize <= 0 {
		opts.BacklogSize = 1000
	}

	return &Client{
		dialer:  dialer,
		opts:    opts,
		hooks:   hooks,
		logger:  logger,
		backoff: NewBackoff(opts.BackoffBase, opts.BackoffMax),
		notify:  make(chan struct{}, 1),
		pings:   make(map[string]time.Time),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connect starts the connection loop in the background. The loop reconnects on
// failures until Disconnect is called or the attempt limit is reached.
func (c *Client) Connect(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.backoff.Reset()

	go c.run(runCtx, c.done)

	return nil
}

// Disconnect stops the connection loop and waits for it to exit.
// No hook fires after Disconnect returns.
func (c *Client) Disconnect() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Send queues an envelope. While connected it is written right away, otherwise it
// waits in the backlog until the next connection. When the backlog is full the
// oldest message is dropped.
func (c *Client) Send(env *api.Envelope) {
	c.queueMu.Lock()
	if len(c.queue) >= c.opts.BacklogSize {
		dropped := c.queue[0]
		c.queue = c.queue[1:]
		c.dropped++
		c.logger.Warn("Realtime backlog full, dropping oldest message",
			"message_id", dropped.ID,
			"type", dropped.Type,
			"backlog_size", c.opts.BacklogSize)
	}
	c.queue = append(c.queue, env)
	c.queueMu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Backlog returns the number of queued messages not yet written.
func (c *Client) Backlog() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	return len(c.queue)
}

// Dropped returns how many messages were dropped because the backlog was full.
func (c *Client) Dropped() int {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	return c.dropped
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer c.setState(StateDisconnected)

	failures := 0
	for {
		c.setState(StateConnecting)

		conn, err := c.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}

			failures++
			c.setState(StateDisconnected)
			c.logger.Warn("Realtime connection failed", "attempt", failures, "error", err)

			if c.opts.MaxAttempts > 0 && failures >= c.opts.MaxAttempts {
				c.logger.Error("Realtime reconnection abandoned", "attempts", failures)
				if c.hooks.OnGiveUp != nil {
					c.hooks.OnGiveUp(failures)
				}
				return
			}
		} else {
			failures = 0
			c.backoff.Reset()
			c.setState(StateConnected)
			c.logger.Info("Realtime connected")

			err = c.session(ctx, conn)

			c.setState(StateDisconnected)
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("Realtime connection lost", "error", err)
		}

		delay := c.backoff.Next()
		if c.hooks.OnReconnectPending != nil {
			c.hooks.OnReconnectPending(failures+1, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (c *Client) dial(ctx context.Context) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	return c.dialer.Dial(dialCtx)
}

// session обслуживает одно установленное соединение до ошибки или отмены ctx
func (c *Client) session(ctx context.Context, conn Conn) error {
	sessCtx, cancel := context.WithCancel(ctx)

	inbound := make(chan *api.Envelope)
	readErr := make(chan error, 1)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			env, err := conn.Read()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case inbound <- env:
			case <-sessCtx.Done():
				return
			}
		}
	}()

	defer func() {
		cancel()
		_ = conn.Close()
		wg.Wait()
	}()

	if err := c.announce(conn); err != nil {
		return err
	}
	if err := c.flush(conn); err != nil {
		return err
	}

	heartbeat := time.NewTicker(c.opts.HeartbeatInterval)
	defer heartbeat.Stop()

	idle := time.NewTimer(c.opts.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-readErr:
			return fmt.Errorf("failed to read: %w", err)

		case env := <-inbound:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(c.opts.IdleTimeout)
			c.handle(env)

		case <-idle.C:
			return ErrIdleTimeout

		case <-heartbeat.C:
			if err := c.heartbeat(conn); err != nil {
				return err
			}

		case <-c.notify:
			if err := c.flush(conn); err != nil {
				return err
			}
		}
	}
}

func (c *Client) handle(env *api.Envelope) {
	if env.Type == api.MessageHeartbeat {
		var data api.HeartbeatData
		if err := env.DecodeData(&data); err == nil && data.ReplyTo != "" {
			c.pingsMu.Lock()
			sentAt, ok := c.pings[data.ReplyTo]
			delete(c.pings, data.ReplyTo)
			c.pingsMu.Unlock()

			if ok && c.hooks.OnLatency != nil {
				c.hooks.OnLatency(c.opts.Now().Sub(sentAt))
			}
			// Ответ relay на наш heartbeat дальше не передается
			return
		}
	}

	if c.hooks.OnEnvelope != nil {
		c.hooks.OnEnvelope(env)
	}
}

func (c *Client) announce(conn Conn) error {
	if c.opts.Device == nil {
		return nil
	}

	device := c.opts.Device()
	device.IsOnline = true
	device.LastSeen = c.opts.Now()

	env, err := api.NewEnvelope(api.MessageDeviceStatus, device.ID, "", device.Priority, c.opts.Now().UnixMilli(), device)
	if err != nil {
		return err
	}
	if err := conn.Write(env); err != nil {
		return fmt.Errorf("failed to announce device: %w", err)
	}
	return nil
}

func (c *Client) heartbeat(conn Conn) error {
	var deviceID string
	var priority int
	if c.opts.Device != nil {
		d := c.opts.Device()
		deviceID, priority = d.ID, d.Priority
	}

	pendingCount := 0
	if c.opts.PendingCount != nil {
		pendingCount = c.opts.PendingCount()
	}

	now := c.opts.Now()
	env, err := api.NewEnvelope(api.MessageHeartbeat, deviceID, "", priority, now.UnixMilli(), api.HeartbeatData{
		PendingChanges: pendingCount,
		Online:         true,
	})
	if err != nil {
		return err
	}

	c.pingsMu.Lock()
	// Неотвеченные heartbeat старше idle timeout уже не помогут измерить задержку
	for id, sentAt := range c.pings {
		if now.Sub(sentAt) > c.opts.IdleTimeout {
			delete(c.pings, id)
		}
	}
	c.pings[env.ID] = now
	c.pingsMu.Unlock()

	if err := conn.Write(env); err != nil {
		return fmt.Errorf("failed to send heartbeat: %w", err)
	}
	return nil
}

// flush пишет очередь в соединение. Неотправленные сообщения остаются в начале очереди.
func (c *Client) flush(conn Conn) error {
	c.queueMu.Lock()
	batch := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	for i, env := range batch {
		if err := conn.Write(env); err != nil {
			c.requeue(batch[i:])
			return fmt.Errorf("failed to write %s message: %w", env.Type, err)
		}
	}
	return nil
}

func (c *Client) requeue(envs []*api.Envelope) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	c.queue = append(append([]*api.Envelope{}, envs...), c.queue...)
	if over := len(c.queue) - c.opts.BacklogSize; over > 0 {
		c.queue = c.queue[over:]
		c.dropped += over
		c.logger.Warn("Realtime backlog full, dropping oldest messages", "dropped", over)
	}
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(s)
	}
}
