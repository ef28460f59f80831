// Package model defines shared data types for ChainWatch alert notifications.
//
// Conventions:
//   - IDs: uuid.UUID for notifications, string for alert identifiers
//   - Timestamps: time.Time in UTC, RFC 3339 on the wire
//   - Priority: one of the Priority constants; unknown values pass through
//     unchanged so new server-side levels do not break clients
package model
