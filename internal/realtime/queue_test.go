package realtime

import "testing"

func TestSendQueue_FIFO(t *testing.T) {
	var q sendQueue

	q.push("first", map[string]any{"n": 1})
	q.push("second", map[string]any{"n": 2})
	q.push("third", nil)

	if q.len() != 3 {
		t.Fatalf("len = %d, want 3", q.len())
	}

	entries := q.drain()
	want := []string{"first", "second", "third"}
	for i := range want {
		if entries[i].Type != want[i] {
			t.Errorf("entry %d = %q, want %q", i, entries[i].Type, want[i])
		}
		if entries[i].EnqueuedAt.IsZero() {
			t.Errorf("entry %d has zero EnqueuedAt", i)
		}
	}

	if q.len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.len())
	}
	if again := q.drain(); len(again) != 0 {
		t.Errorf("second drain returned %d entries", len(again))
	}
}
