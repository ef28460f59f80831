package realtime

import (
	"math"
	"time"
)

// reconnectDelay computes the backoff before reconnect attempt number
// attempt (0-based): min(base * 2^attempt, max). Growth is monotonically
// non-decreasing and capped at max.
func reconnectDelay(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 || max <= 0 || base >= max {
		return max
	}
	d := float64(base) * math.Pow(2, float64(attempt))
	if d > float64(max) || d < 0 {
		return max
	}
	return time.Duration(d)
}
