package realtime

import (
	"testing"
	"time"
)

func TestReconnectDelay_ExponentialGrowth(t *testing.T) {
	base := 1 * time.Second
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{6, 30 * time.Second},
		{50, 30 * time.Second}, // large exponents never overflow past the cap
	}

	for _, tt := range tests {
		if got := reconnectDelay(base, max, tt.attempt); got != tt.want {
			t.Errorf("reconnectDelay(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestReconnectDelay_MonotonicallyNonDecreasing(t *testing.T) {
	base := 250 * time.Millisecond
	max := 10 * time.Second

	prev := time.Duration(0)
	for attempt := 0; attempt < 64; attempt++ {
		d := reconnectDelay(base, max, attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > max {
			t.Fatalf("delay %v exceeds max %v at attempt %d", d, max, attempt)
		}
		prev = d
	}
}

func TestReconnectDelay_DegenerateConfig(t *testing.T) {
	max := 5 * time.Second
	if got := reconnectDelay(0, max, 3); got != max {
		t.Errorf("zero base: got %v, want %v", got, max)
	}
	if got := reconnectDelay(10*time.Second, max, 0); got != max {
		t.Errorf("base above max: got %v, want %v", got, max)
	}
}
