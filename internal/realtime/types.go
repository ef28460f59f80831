package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/chainwatch/realtime/internal/model"
)

// Errors
var (
	ErrNoEndpoint = errors.New("no endpoint: neither url nor site_url configured")
)

// Wire message types, discriminated by the "type" field of each frame.
const (
	msgTypeAuthenticate  = "authenticate"
	msgTypeAuthenticated = "authenticated"
	msgTypeError         = "error"
	msgTypeNotification  = "notification"
	msgTypeEvent         = "event"
	msgTypePing          = "ping"
	msgTypePong          = "pong"
)

// Dispatch channels.
const (
	// EventNotification is the generic notification channel.
	EventNotification = "notification"

	// EventNotificationReceived is the legacy notification alias.
	// Notifications are delivered on both channels.
	EventNotificationReceived = "notification:received"

	// EventGeneric receives every unwrapped event frame regardless of its
	// event_type, for observability and debugging subscribers.
	EventGeneric = "event"
)

// Config configures a realtime Client.
type Config struct {
	URL     string // Explicit endpoint override (optional)
	SiteURL string // Dashboard origin the endpoint is derived from when URL is empty
	Device  string // Device tag reported in the authenticate frame

	HeartbeatInterval    time.Duration // Ping cadence while connected
	ReconnectBaseDelay   time.Duration // First reconnect delay
	ReconnectMaxDelay    time.Duration // Reconnect delay ceiling
	MaxReconnectAttempts int           // Automatic reconnects before giving up

	HandshakeTimeout time.Duration // WebSocket dial timeout
	WriteTimeout     time.Duration // Write deadline for outbound frames
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Device:               "dashboard",
		HeartbeatInterval:    30 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    30 * time.Second,
		MaxReconnectAttempts: 10,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
	}
}

// ConnectionInfo identifies the authenticated session.
type ConnectionInfo struct {
	ConnectionID string
	UserID       string
}

// Event is the typed payload delivered to subscribers. Known frame kinds
// populate the typed fields; Payload keeps the raw JSON as an escape hatch
// for forward-compatible server-defined types.
type Event struct {
	Type         string
	Notification *model.Notification // Set for notification frames
	JobID        string              // Set for job-scoped event frames
	Payload      json.RawMessage     // Event payload, or the whole frame for passthrough types
	Timestamp    time.Time
}

// Handler receives events dispatched from the message router.
type Handler func(Event)

// StateHandler receives connection state transitions.
type StateHandler func(State)

// Stats is a snapshot of client counters.
type Stats struct {
	FramesReceived int64
	Dispatches     int64
	ParseErrors    int64
	Reconnects     int64
	QueuedMessages int
}

// frameEnvelope is used for type extraction before full decoding.
type frameEnvelope struct {
	Type string `json:"type"`
}

// authenticateFrame upgrades a raw socket into an authorized session.
type authenticateFrame struct {
	Type   string `json:"type"`
	Token  string `json:"token"`
	Device string `json:"device"`
}

// authenticatedFrame is the server's successful handshake response.
type authenticatedFrame struct {
	UserID       string `json:"user_id"`
	ConnectionID string `json:"connection_id"`
	Device       string `json:"device"`
}

// errorFrame is the server's handshake rejection.
type errorFrame struct {
	Message string `json:"message"`
}

// notificationWire is the wire format of a notification frame.
type notificationWire struct {
	ID        string                     `json:"id"`
	AlertID   string                     `json:"alert_id"`
	AlertName string                     `json:"alert_name"`
	Priority  string                     `json:"priority"`
	Message   string                     `json:"message"`
	Details   map[string]any             `json:"details"`
	Timestamp time.Time                  `json:"timestamp"`
	Actions   []model.NotificationAction `json:"actions"`
}

// eventFrame is the wire format of a server event frame.
type eventFrame struct {
	EventType string          `json:"event_type"`
	JobID     string          `json:"job_id"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// pingFrame is the outbound heartbeat.
type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Milliseconds since epoch
}
