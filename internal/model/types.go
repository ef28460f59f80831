package model

import (
	"time"

	"github.com/google/uuid"
)

// Priority is the urgency level assigned to a notification by the alert engine.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Known reports whether the priority is one of the levels this client
// understands. Unknown levels are preserved verbatim.
func (p Priority) Known() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Notification is a single alert notification pushed over the realtime feed.
type Notification struct {
	ID        uuid.UUID      // Primary key (assigned by the alert engine)
	AlertID   string         // Alert rule that fired
	AlertName string         // Display name of the alert rule
	Priority  Priority       // Urgency level
	Message   string         // Human-readable summary
	Details   map[string]any // Optional structured context (chain, tx hash, ...)
	Timestamp time.Time      // When the alert fired (server clock)
	Actions   []NotificationAction
}

// NotificationAction is an optional follow-up link attached to a notification.
type NotificationAction struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}
