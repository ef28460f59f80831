package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/chainwatch/realtime/internal/model"
)

// route classifies one inbound frame and hands it to the matching handler.
// Malformed frames are logged and dropped; the connection stays alive.
func (c *Client) route(gen int, data []byte) {
	c.mu.Lock()
	c.stats.FramesReceived++
	c.mu.Unlock()

	var env frameEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.countParseError()
		c.logger.Warn("dropping malformed frame", "error", err)
		return
	}

	switch env.Type {
	case msgTypeAuthenticated:
		c.handleAuthenticated(gen, data)

	case msgTypeError:
		c.handleServerError(gen, data)

	case msgTypeNotification:
		c.handleNotification(data)

	case msgTypeEvent:
		c.handleEvent(data)

	case msgTypePong:
		// Liveness only; nothing to do.

	default:
		// Forward-compatible passthrough: server-defined types reach
		// subscribers without a client release.
		c.dispatch(env.Type, Event{Type: env.Type, Payload: json.RawMessage(data)})
	}
}

// handleAuthenticated completes the handshake: capture the session, go
// connected, start the heartbeat, reset the reconnect counter, and flush the
// outbound queue.
func (c *Client) handleAuthenticated(gen int, data []byte) {
	var f authenticatedFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.countParseError()
		c.logger.Warn("dropping malformed authenticated frame", "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.authed = true
	c.session = ConnectionInfo{ConnectionID: f.ConnectionID, UserID: f.UserID}
	c.attempts = 0
	c.applyLocked(evAuthenticated)
	c.startHeartbeatLocked(gen)
	flush := c.queue.drain()
	conn := c.conn
	c.mu.Unlock()
	c.flushStateNotifications()

	c.logger.Info("authenticated",
		"connection_id", f.ConnectionID,
		"user_id", f.UserID,
	)

	c.flushQueued(conn, flush)
}

// handleServerError runs the handshake failure path. A rejected token is
// fatal for the current session: the connection is torn down and never
// auto-retried, because retrying with the same token would just fail again.
// Error frames received after authentication are logged only.
func (c *Client) handleServerError(gen int, data []byte) {
	var f errorFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.countParseError()
		c.logger.Warn("dropping malformed error frame", "error", err)
		return
	}

	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	if c.authed {
		c.mu.Unlock()
		c.logger.Warn("server error", "message", f.Message)
		return
	}

	// Invalidate the read loop's close handling; the teardown here is
	// authoritative.
	c.gen++
	c.manualClose = true
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	c.token = ""
	c.session = ConnectionInfo{}
	c.applyLocked(evAuthFailed)
	c.mu.Unlock()

	closeConn(conn)
	c.flushStateNotifications()

	c.logger.Error("authentication failed", "message", f.Message)
}

// handleNotification decodes a notification frame and dual-delivers it: the
// legacy alias and the generic notification channel both stay supported.
func (c *Client) handleNotification(data []byte) {
	n, err := decodeNotification(data)
	if err != nil {
		c.countParseError()
		c.logger.Warn("dropping malformed notification", "error", err)
		return
	}

	ev := Event{
		Type:         msgTypeNotification,
		Notification: n,
		Payload:      json.RawMessage(data),
		Timestamp:    n.Timestamp,
	}
	c.dispatch(EventNotificationReceived, ev)
	c.dispatch(EventNotification, ev)
}

// handleEvent unwraps an event frame and re-dispatches it under its dynamic
// event_type, plus always under the generic event channel.
func (c *Client) handleEvent(data []byte) {
	var f eventFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.countParseError()
		c.logger.Warn("dropping malformed event frame", "error", err)
		return
	}

	ev := Event{
		Type:      f.EventType,
		JobID:     f.JobID,
		Payload:   f.Payload,
		Timestamp: f.Timestamp,
	}
	if f.EventType != "" {
		c.dispatch(f.EventType, ev)
	}
	c.dispatch(EventGeneric, ev)
}

// dispatch fans ev out to every subscriber of eventType.
func (c *Client) dispatch(eventType string, ev Event) {
	c.mu.Lock()
	c.stats.Dispatches++
	c.mu.Unlock()
	c.subs.dispatch(c.logger, eventType, ev)
}

func (c *Client) countParseError() {
	c.mu.Lock()
	c.stats.ParseErrors++
	c.mu.Unlock()
}

// decodeNotification validates and converts a notification frame into the
// typed model.
func decodeNotification(data []byte) (*model.Notification, error) {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}

	id, err := uuid.Parse(w.ID)
	if err != nil {
		return nil, fmt.Errorf("notification id: %w", err)
	}

	return &model.Notification{
		ID:        id,
		AlertID:   w.AlertID,
		AlertName: w.AlertName,
		Priority:  model.Priority(w.Priority),
		Message:   w.Message,
		Details:   w.Details,
		Timestamp: w.Timestamp,
		Actions:   w.Actions,
	}, nil
}
