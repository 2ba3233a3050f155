package streaming

import (
	"math"
	"time"
)

// RetryPolicy computes the delay before each reconnection attempt. The
// delay grows exponentially from BaseDelay by Factor per attempt and is
// capped at MaxDelay. After MaxAttempts consecutive failures the client
// stops retrying and returns to idle.
type RetryPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
}

// DefaultRetryPolicy returns the production reconnection policy: delays of
// 2, 4, 8, 16 and 30 seconds for attempts 1 through 5, then give up.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:   2 * time.Second,
		Factor:      2.0,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the backoff before the given retry attempt. Attempts are
// numbered from 1 for the first retry.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(p.Factor, float64(attempt-1)))
	if delay <= 0 || delay > p.MaxDelay {
		// Zero or negative means the multiplication overflowed.
		return p.MaxDelay
	}
	return delay
}

// Exhausted reports whether no further retry may be scheduled after the
// given number of consecutive failures.
func (p RetryPolicy) Exhausted(failures int) bool {
	return failures > p.MaxAttempts
}
