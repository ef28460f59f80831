package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client manages the WebSocket connection to the ChainWatch realtime feed.
// Construct exactly one per process at the composition root and pass it by
// reference to consumers.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	dialing bool
	state   State

	// gen is bumped whenever the active connection is replaced or torn
	// down, so stale read loops, heartbeats, and timers fire into no-ops.
	gen int

	token       string
	authed      bool
	session     ConnectionInfo
	manualClose bool

	queue sendQueue
	subs  *registry

	attempts       int
	reconnectTimer *time.Timer
	heartbeatStop  chan struct{}

	// ctx is captured from Connect and reused by scheduled reconnect dials.
	ctx context.Context

	stateSubs    map[int]StateHandler
	nextStateSub int

	// pendingStates holds transitions awaiting delivery; notifying marks an
	// active flusher so delivery stays ordered and reentrancy-safe.
	pendingStates []stateNotification
	notifying     bool

	writeMu sync.Mutex

	stats Stats
}

// stateNotification is one queued state delivery. ids snapshots the
// listeners registered when the transition occurred, so later subscribers
// never receive it.
type stateNotification struct {
	state State
	ids   []int
}

// New creates a realtime client. Zero config fields fall back to
// DefaultConfig values.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.Device == "" {
		cfg.Device = def.Device
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.ReconnectBaseDelay == 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay == 0 {
		cfg.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	return &Client{
		cfg:       cfg,
		logger:    logger,
		state:     StateDisconnected,
		subs:      newRegistry(),
		stateSubs: make(map[int]StateHandler),
		ctx:       context.Background(),
	}
}

// Connect opens the WebSocket connection and, when token is non-empty,
// starts the authenticate handshake. It is a no-op when a socket already
// exists or is currently opening. Dial failures are returned and also feed
// the reconnection scheduler; callers observing the state stream may ignore
// the error.
func (c *Client) Connect(ctx context.Context, token string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.conn != nil || c.dialing {
		c.mu.Unlock()
		return nil
	}
	c.dialing = true
	c.manualClose = false
	c.token = token
	c.ctx = ctx
	c.gen++
	gen := c.gen
	c.applyLocked(evConnect)
	c.mu.Unlock()
	c.flushStateNotifications()

	endpoint, err := ResolveEndpoint(c.cfg.URL, c.cfg.SiteURL)
	if err != nil {
		c.mu.Lock()
		c.dialing = false
		c.applyLocked(evTransportError)
		c.mu.Unlock()
		c.flushStateNotifications()
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.dialing = false
		if gen == c.gen && !c.manualClose {
			c.applyLocked(evTransportError)
			c.scheduleReconnectLocked()
		}
		c.mu.Unlock()
		c.flushStateNotifications()
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}

	c.mu.Lock()
	c.dialing = false
	if gen != c.gen || c.manualClose {
		// Disconnected while dialing.
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.authed = false
	c.session = ConnectionInfo{}
	c.applyLocked(evOpen)

	var flush []queuedMessage
	if token == "" {
		// No handshake required: the raw open is the connected signal.
		c.attempts = 0
		c.startHeartbeatLocked(gen)
		flush = c.queue.drain()
	}
	c.mu.Unlock()
	c.flushStateNotifications()

	c.logger.Debug("websocket connected", "url", endpoint, "authenticating", token != "")

	go c.readLoop(conn, gen)

	if token != "" {
		frame := authenticateFrame{
			Type:   msgTypeAuthenticate,
			Token:  token,
			Device: c.cfg.Device,
		}
		if err := c.writeFrame(conn, frame); err != nil {
			c.logger.Warn("failed to send authenticate frame", "error", err)
		}
	}
	c.flushQueued(conn, flush)

	return nil
}

// Disconnect closes the connection with a normal-closure code, clears the
// session, the reconnection counter, and all subscriptions, and guarantees
// no further automatic reconnection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.manualClose = true
	c.gen++
	c.stopHeartbeatLocked()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.token = ""
	c.authed = false
	c.session = ConnectionInfo{}
	c.attempts = 0
	c.subs.clear()
	c.applyLocked(evCleanClose)
	c.mu.Unlock()

	closeConn(conn)
	c.flushStateNotifications()

	c.logger.Info("disconnected")
}

// IsConnected reports whether the socket is open and, when a token was
// supplied, the handshake has completed.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && (c.token == "" || c.authed)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConnectionInfo returns the identifiers of the authenticated session.
// Fields are empty until an authenticated frame arrives.
func (c *Client) ConnectionInfo() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Stats returns a snapshot of client counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.QueuedMessages = c.queue.len()
	return s
}

// On subscribes h to eventType and returns an unsubscribe closure that
// removes exactly this registration.
func (c *Client) On(eventType string, h Handler) func() {
	return c.subs.on(eventType, h)
}

// OnStateChange subscribes to state transitions. The handler first receives
// the state current at subscription time; the initial delivery goes through
// the same ordered queue as transitions, so a listener never observes an
// older state after a newer one. The returned closure unsubscribes.
func (c *Client) OnStateChange(h StateHandler) func() {
	c.mu.Lock()
	c.nextStateSub++
	id := c.nextStateSub
	c.stateSubs[id] = h
	c.pendingStates = append(c.pendingStates, stateNotification{state: c.state, ids: []int{id}})
	c.mu.Unlock()

	c.flushStateNotifications()

	return func() {
		c.mu.Lock()
		delete(c.stateSubs, id)
		c.mu.Unlock()
	}
}

// Send transmits a frame of the given type immediately when the socket is
// open; otherwise the message is queued and flushed in FIFO order once the
// connection is ready. Keys in data are merged beside the type field.
func (c *Client) Send(msgType string, data map[string]any) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.queue.push(msgType, data)
		queued := c.queue.len()
		c.mu.Unlock()
		c.logger.Debug("socket not open, message queued", "type", msgType, "queued", queued)
		return
	}
	c.mu.Unlock()

	if err := c.sendNow(conn, msgType, data); err != nil {
		c.logger.Warn("send failed", "type", msgType, "error", err)
	}
}

// readLoop reads frames until the connection drops, then runs close handling.
func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, err)
			return
		}
		c.route(gen, data)
	}
}

// handleClose runs the close-event path: clean closes are terminal,
// abnormal closes feed the reconnection scheduler.
func (c *Client) handleClose(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		// Disconnect or auth failure already tore this connection down.
		c.mu.Unlock()
		return
	}

	clean := websocket.IsCloseError(err, websocket.CloseNormalClosure)
	if !clean {
		if _, isClose := err.(*websocket.CloseError); !isClose {
			// Socket-level error. Informational: the close handling below
			// carries the actionable signal.
			c.applyLocked(evTransportError)
		}
	}

	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.authed = false
	c.session = ConnectionInfo{}

	if clean {
		c.applyLocked(evCleanClose)
		c.mu.Unlock()
		// The close frame was already exchanged by the read loop;
		// release the underlying socket.
		if conn != nil {
			conn.Close()
		}
		c.flushStateNotifications()
		c.logger.Info("connection closed by peer")
		return
	}

	c.applyLocked(evAbnormalClose)
	c.scheduleReconnectLocked()
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	c.flushStateNotifications()

	c.logger.Warn("connection closed unexpectedly", "error", err)
}

// scheduleReconnectLocked arms the reconnect timer with exponential backoff.
// Past MaxReconnectAttempts it gives up; a manual Connect is still possible
// and the counter resets on the next successful authenticated connection.
func (c *Client) scheduleReconnectLocked() {
	delay := reconnectDelay(c.cfg.ReconnectBaseDelay, c.cfg.ReconnectMaxDelay, c.attempts)
	c.attempts++
	if c.attempts > c.cfg.MaxReconnectAttempts {
		c.logger.Warn("reconnect attempts exhausted", "attempts", c.attempts-1)
		return
	}

	token := c.token
	c.logger.Info("scheduling reconnect", "attempt", c.attempts, "delay", delay)

	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		// Skip when a manual Connect or Disconnect won the race.
		skip := c.manualClose || c.conn != nil || c.dialing
		if !skip {
			c.stats.Reconnects++
		}
		ctx := c.ctx
		c.mu.Unlock()
		if skip {
			return
		}
		if err := c.Connect(ctx, token); err != nil {
			c.logger.Warn("reconnect failed", "error", err)
		}
	})
}

// startHeartbeatLocked starts the ping loop for the given connection
// generation. The loop only proves liveness to the server; no pong timeout
// is enforced.
func (c *Client) startHeartbeatLocked(gen int) {
	c.stopHeartbeatLocked()
	stop := make(chan struct{})
	c.heartbeatStop = stop

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				conn := c.conn
				live := gen == c.gen && conn != nil
				c.mu.Unlock()
				if !live {
					return
				}
				frame := pingFrame{Type: msgTypePing, Timestamp: time.Now().UnixMilli()}
				if err := c.writeFrame(conn, frame); err != nil {
					c.logger.Debug("heartbeat send failed", "error", err)
				}
			}
		}
	}()
}

// stopHeartbeatLocked stops the ping loop, if running.
func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// applyLocked advances the state machine and queues a notification when the
// observable state changed.
func (c *Client) applyLocked(ev connEvent) {
	next := nextState(c.state, ev, c.token != "")
	if next == c.state {
		return
	}
	c.logger.Debug("connection state changed", "from", c.state, "to", next)
	c.state = next

	ids := make([]int, 0, len(c.stateSubs))
	for id := range c.stateSubs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	c.pendingStates = append(c.pendingStates, stateNotification{state: next, ids: ids})
}

// flushStateNotifications delivers queued transitions to listeners in order.
// Must be called without c.mu held. Reentrant transitions caused by a
// listener are drained by the active flusher, preserving order.
func (c *Client) flushStateNotifications() {
	c.mu.Lock()
	if c.notifying {
		c.mu.Unlock()
		return
	}
	c.notifying = true
	for len(c.pendingStates) > 0 {
		next := c.pendingStates[0]
		c.pendingStates = c.pendingStates[1:]

		// Listeners unsubscribed since the snapshot are skipped.
		handlers := make([]StateHandler, 0, len(next.ids))
		for _, id := range next.ids {
			if h, ok := c.stateSubs[id]; ok {
				handlers = append(handlers, h)
			}
		}
		c.mu.Unlock()

		for _, h := range handlers {
			invokeStateHandler(c.logger, h, next.state)
		}

		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}

func invokeStateHandler(logger *slog.Logger, h StateHandler, s State) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("state listener panicked", "state", s, "panic", rec)
		}
	}()
	h(s)
}

// flushQueued writes drained queue entries in enqueue order, best effort.
func (c *Client) flushQueued(conn *websocket.Conn, entries []queuedMessage) {
	if len(entries) == 0 {
		return
	}
	c.logger.Debug("flushing queued messages", "count", len(entries))
	for _, m := range entries {
		if err := c.sendNow(conn, m.Type, m.Data); err != nil {
			c.logger.Warn("queued send failed", "type", m.Type, "error", err)
		}
	}
}

// sendNow serializes {type, ...data} and writes it to the connection.
func (c *Client) sendNow(conn *websocket.Conn, msgType string, data map[string]any) error {
	frame := make(map[string]any, len(data)+1)
	for k, v := range data {
		frame[k] = v
	}
	frame["type"] = msgType
	return c.writeFrame(conn, frame)
}

// writeFrame marshals v and writes it as a single text frame. Writes are
// serialized by writeMu.
func (c *Client) writeFrame(conn *websocket.Conn, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// closeConn sends a normal-closure frame and closes the socket.
func closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	conn.Close()
}
