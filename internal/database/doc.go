// Package database provides connection pool management for PostgreSQL.
//
// Each collector maintains a local notifications store; persisted rows are
// keyed by notification ID so replays after a reconnect deduplicate cleanly.
package database
