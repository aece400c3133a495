package queue

import "time"

// BackoffStrategy calculates the redelivery delay after a failed attempt.
// Attempt starts at 1 for the first failure.
type BackoffStrategy interface {
	NextInterval(attempt int) time.Duration
}

// FixedBackoff walks a fixed list of delays. Attempts past the end of the
// list reuse the last delay.
type FixedBackoff struct {
	Delays []time.Duration
}

// DefaultBackoff retries after 1, 5 and 15 minutes, then every 15 minutes.
var DefaultBackoff = FixedBackoff{
	Delays: []time.Duration{60 * time.Second, 300 * time.Second, 900 * time.Second},
}

// NextInterval returns Delays[attempt-1], capped at the last entry.
func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 || len(f.Delays) == 0 {
		return 0
	}
	if attempt > len(f.Delays) {
		return f.Delays[len(f.Delays)-1]
	}
	return f.Delays[attempt-1]
}

// BackoffFunc adapts a function to BackoffStrategy.
type BackoffFunc func(attempt int) time.Duration

func (f BackoffFunc) NextInterval(attempt int) time.Duration {
	return f(attempt)
}
