package engine

import (
	"math/rand/v2"
	"time"
)

// RetryStrategy implements exponential backoff with jitter for delivery
// attempts. The schedule holds the backoff after each failed attempt, so a
// budget of N attempts carries N-1 entries.
type RetryStrategy struct {
	MaxAttempts int
	Schedule    []time.Duration
}

// NewRetryStrategy creates a RetryStrategy with the given attempt budget and
// base backoff; each subsequent backoff doubles the previous one.
func NewRetryStrategy(maxAttempts int, base time.Duration) *RetryStrategy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	schedule := make([]time.Duration, 0, maxAttempts-1)
	d := base
	for i := 0; i < maxAttempts-1; i++ {
		schedule = append(schedule, d)
		d *= 2
	}

	return &RetryStrategy{
		MaxAttempts: maxAttempts,
		Schedule:    schedule,
	}
}

// ShouldRetry returns true if the given 1-based attempt has not exhausted
// the attempt budget.
func (r *RetryStrategy) ShouldRetry(attempt int) bool {
	return attempt < r.MaxAttempts
}

// NextBackoff returns the backoff duration after the given failed attempt
// with jitter applied. Jitter is calculated as: base * (0.5 + rand * 0.5).
func (r *RetryStrategy) NextBackoff(attempt int) time.Duration {
	if len(r.Schedule) == 0 {
		return 0
	}

	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.Schedule) {
		idx = len(r.Schedule) - 1
	}

	base := r.Schedule[idx]
	jitter := 0.5 + rand.Float64()*0.5
	return time.Duration(float64(base) * jitter)
}
