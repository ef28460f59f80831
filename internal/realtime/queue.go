package realtime

import "time"

// queuedMessage is an outbound frame buffered while the socket is not open.
type queuedMessage struct {
	Type       string
	Data       map[string]any
	EnqueuedAt time.Time
}

// sendQueue buffers outbound messages in FIFO order until the connection is
// ready to flush them. It is not self-locking: the Client mutex guards it.
type sendQueue struct {
	entries []queuedMessage
}

func (q *sendQueue) push(msgType string, data map[string]any) {
	q.entries = append(q.entries, queuedMessage{
		Type:       msgType,
		Data:       data,
		EnqueuedAt: time.Now(),
	})
}

// drain removes and returns all entries in enqueue order.
func (q *sendQueue) drain() []queuedMessage {
	entries := q.entries
	q.entries = nil
	return entries
}

func (q *sendQueue) len() int {
	return len(q.entries)
}
