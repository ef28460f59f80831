package writer

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/chainwatch/realtime/internal/model"
)

// fakeBatchSender records every SendBatch call and reports success for each
// queued statement.
type fakeBatchSender struct {
	mu      sync.Mutex
	batches int
	rows    int
	ctxErrs []error
}

func (f *fakeBatchSender) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	f.rows += b.Len()
	f.ctxErrs = append(f.ctxErrs, ctx.Err())
	return fakeBatchResults{}
}

type fakeBatchResults struct{}

func (fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (fakeBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (fakeBatchResults) QueryRow() pgx.Row        { return nil }
func (fakeBatchResults) Close() error             { return nil }

func TestNotificationWriter_Transform(t *testing.T) {
	w := NewNotificationWriter(DefaultConfig(), nil, nil, 10)

	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	firedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	receivedAt := time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC)

	n := model.Notification{
		ID:        id,
		AlertID:   "alert-42",
		AlertName: "Whale transfer",
		Priority:  model.PriorityCritical,
		Message:   "1200 ETH moved",
		Details:   map[string]any{"tx_hash": "0xabc", "amount": 1200.0},
		Timestamp: firedAt,
	}

	row, err := w.transform(n, receivedAt)
	if err != nil {
		t.Fatalf("transform: %v", err)
	}

	if row.ID != id.String() {
		t.Errorf("ID = %s, want %s", row.ID, id)
	}
	if row.AlertID != "alert-42" {
		t.Errorf("AlertID = %s, want alert-42", row.AlertID)
	}
	if row.AlertName != "Whale transfer" {
		t.Errorf("AlertName = %s, want Whale transfer", row.AlertName)
	}
	if row.Priority != "critical" {
		t.Errorf("Priority = %s, want critical", row.Priority)
	}
	if row.Message != "1200 ETH moved" {
		t.Errorf("Message = %s", row.Message)
	}
	if !row.FiredAt.Equal(firedAt) {
		t.Errorf("FiredAt = %v, want %v", row.FiredAt, firedAt)
	}
	if !row.ReceivedAt.Equal(receivedAt) {
		t.Errorf("ReceivedAt = %v, want %v", row.ReceivedAt, receivedAt)
	}

	var details map[string]any
	if err := json.Unmarshal(row.Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if details["tx_hash"] != "0xabc" {
		t.Errorf("details tx_hash = %v, want 0xabc", details["tx_hash"])
	}
}

func TestNotificationWriter_Transform_NoDetails(t *testing.T) {
	w := NewNotificationWriter(DefaultConfig(), nil, nil, 10)

	row, err := w.transform(model.Notification{ID: uuid.New()}, time.Now())
	if err != nil {
		t.Fatalf("transform: %v", err)
	}
	if row.Details != nil {
		t.Errorf("Details = %q, want nil for empty details", row.Details)
	}
}

func TestNotificationWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
	}
	// Note: We can't test actual DB writes without a database.
	// This tests the goroutine lifecycle.
	w := NewNotificationWriter(cfg, nil, nil, 10)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Give goroutines time to start
	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}

	if w.Enqueue(model.Notification{ID: uuid.New()}) {
		t.Error("Enqueue after Stop returned true")
	}
}

func TestNotificationWriter_HandleNotification_AddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // large batch so no auto-flush
		FlushInterval: time.Hour,
	}
	w := NewNotificationWriter(cfg, nil, nil, 10)

	w.handleNotification(received{
		Notification: model.Notification{
			ID:       uuid.New(),
			Priority: model.PriorityLow,
		},
		At: time.Now(),
	})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestNotificationWriter_StopFlushesPendingBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // large batch so nothing auto-flushes
		FlushInterval: time.Hour,
	}
	db := &fakeBatchSender{}
	w := NewNotificationWriter(cfg, db, nil, 10)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if !w.Enqueue(model.Notification{ID: uuid.New(), Priority: model.PriorityHigh}) {
		t.Fatal("Enqueue returned false")
	}

	// Wait for the consume loop to batch the notification.
	deadline := time.Now().Add(time.Second)
	for {
		w.batchMu.Lock()
		n := len(w.batch)
		w.batchMu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for notification to reach the batch")
		}
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	db.mu.Lock()
	batches, rows, ctxErrs := db.batches, db.rows, db.ctxErrs
	db.mu.Unlock()

	if batches != 1 || rows != 1 {
		t.Fatalf("flushed %d batches / %d rows, want 1 / 1", batches, rows)
	}
	// The final flush must not run on the writer's cancelled context.
	if ctxErrs[0] != nil {
		t.Errorf("final flush context error = %v, want nil", ctxErrs[0])
	}

	stats := w.Stats()
	if stats.Inserts != 1 {
		t.Errorf("Inserts = %d, want 1", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("Errors = %d, want 0", stats.Errors)
	}
}

func TestNotificationWriter_Stats(t *testing.T) {
	w := NewNotificationWriter(DefaultConfig(), nil, nil, 10)

	stats := w.Stats()
	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
}
