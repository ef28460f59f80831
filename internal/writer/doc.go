// Package writer implements the batch writer that persists notifications.
//
// The realtime client pushes notifications into a growable buffer; the
// writer drains it, accumulates batches, and inserts with ON CONFLICT
// DO NOTHING so replayed notifications after a reconnect deduplicate on ID.
// Writes are append-only (never update, only insert).
package writer
