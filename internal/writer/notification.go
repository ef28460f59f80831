package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/chainwatch/realtime/internal/model"
)

// BatchSender is the subset of pgxpool.Pool the writer needs.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// received pairs a notification with the local time it arrived.
type received struct {
	Notification model.Notification
	At           time.Time
}

// NotificationWriter consumes notifications from the input buffer and
// writes them to the notifications table.
type NotificationWriter struct {
	cfg    Config
	logger *slog.Logger

	// Input from the realtime client
	input *GrowableBuffer[received]

	// Database
	db BatchSender

	// Batching
	batch       []notificationRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewNotificationWriter creates a new NotificationWriter.
func NewNotificationWriter(cfg Config, db BatchSender, logger *slog.Logger, bufferSize int) *NotificationWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationWriter{
		cfg:    cfg,
		input:  NewGrowableBuffer[received](bufferSize),
		db:     db,
		logger: logger,
		batch:  make([]notificationRow, 0, cfg.BatchSize),
	}
}

// Enqueue hands a notification to the writer. Returns false if the
// writer has been stopped.
func (w *NotificationWriter) Enqueue(n model.Notification) bool {
	return w.input.Send(received{Notification: n, At: time.Now().UTC()})
}

// Start begins consuming notifications and writing to the database.
func (w *NotificationWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("notification writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer.
func (w *NotificationWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping notification writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("notification writer stopped")
	case <-ctx.Done():
		w.logger.Warn("notification writer stop timed out")
	}

	// Final flush on the caller's context: w.ctx is already cancelled and
	// would fail the insert, dropping whatever is still batched.
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *NotificationWriter) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// Buffered returns the number of notifications waiting in the input buffer.
func (w *NotificationWriter) Buffered() int {
	return w.input.Len()
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *NotificationWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			msg, ok := w.input.TryReceive()
			if !ok {
				// Buffer empty, wait a bit before trying again
				select {
				case <-w.ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
					continue
				}
			}

			w.handleNotification(msg)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *NotificationWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleNotification transforms and adds a notification to the batch.
func (w *NotificationWriter) handleNotification(msg received) {
	row, err := w.transform(msg.Notification, msg.At)
	if err != nil {
		w.logger.Error("transform notification failed", "error", err, "notification_id", msg.Notification.ID)
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a notification to a notificationRow.
func (w *NotificationWriter) transform(n model.Notification, receivedAt time.Time) (notificationRow, error) {
	var details []byte
	if len(n.Details) > 0 {
		b, err := json.Marshal(n.Details)
		if err != nil {
			return notificationRow{}, err
		}
		details = b
	}

	return notificationRow{
		ID:         n.ID.String(),
		AlertID:    n.AlertID,
		AlertName:  n.AlertName,
		Priority:   string(n.Priority),
		Message:    n.Message,
		Details:    details,
		FiredAt:    n.Timestamp.UTC(),
		ReceivedAt: receivedAt.UTC(),
	}, nil
}

// flush writes the current batch to the database.
func (w *NotificationWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]notificationRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed notifications",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *NotificationWriter) batchInsert(ctx context.Context, rows []notificationRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO notifications (id, alert_id, alert_name, priority, message, details, fired_at, received_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.AlertID, r.AlertName, r.Priority, r.Message, r.Details, r.FiredAt, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
