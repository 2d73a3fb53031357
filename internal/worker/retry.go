package worker

import (
	"math"
	"time"
)

// RetryPolicy defines exponential backoff parameters for re-queued entries.
// A zero policy means immediate re-queue: failed entries become claimable by
// the very next drain, which is the queue's visible contract.
type RetryPolicy struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the delay before attempt (1-based) may run again.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if r.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(factor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	return d
}

// NextAttemptAt converts the delay to the claimable-after timestamp stored on
// the entry; nil means immediately claimable.
func (r RetryPolicy) NextAttemptAt(attempt int) *time.Time {
	d := r.NextDelay(attempt)
	if d <= 0 {
		return nil
	}
	t := time.Now().Add(d)
	return &t
}
