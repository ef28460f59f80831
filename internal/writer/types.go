package writer

import (
	"time"
)

// Config contains configuration for the notification writer.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 1 * time.Second,
	}
}

// notificationRow represents a row to be inserted into the notifications table.
type notificationRow struct {
	ID         string // UUID
	AlertID    string
	AlertName  string
	Priority   string
	Message    string
	Details    []byte // JSONB, nil when the notification carried no details
	FiredAt    time.Time
	ReceivedAt time.Time
}

// Metrics holds metrics for a writer.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
