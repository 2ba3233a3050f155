package streaming

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// TestDefaultRetryPolicy_Delays tests the production backoff schedule
func TestDefaultRetryPolicy_Delays(t *testing.T) {
	policy := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 1, want: 2 * time.Second},
		{attempt: 2, want: 4 * time.Second},
		{attempt: 3, want: 8 * time.Second},
		{attempt: 4, want: 16 * time.Second},
		{attempt: 5, want: 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

// TestDefaultRetryPolicy_Exhaustion tests that no sixth retry is allowed
func TestDefaultRetryPolicy_Exhaustion(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.False(t, policy.Exhausted(1))
	assert.False(t, policy.Exhausted(5), "the fifth failure still schedules a retry")
	assert.True(t, policy.Exhausted(6), "after the fifth retry fails the client gives up")
}

// TestRetryPolicy_DelayClampsLowAttempts tests attempt normalization
func TestRetryPolicy_DelayClampsLowAttempts(t *testing.T) {
	policy := DefaultRetryPolicy()
	assert.Equal(t, policy.Delay(1), policy.Delay(0))
	assert.Equal(t, policy.Delay(1), policy.Delay(-3))
}

// TestRetryPolicy_Bounds verifies the delay stays within [0, MaxDelay]
// and never shrinks as attempts accumulate
func TestRetryPolicy_Bounds(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		policy := RetryPolicy{
			BaseDelay:   time.Duration(rapid.Int64Range(int64(time.Millisecond), int64(5*time.Second)).Draw(t, "base")),
			Factor:      rapid.Float64Range(1.0, 4.0).Draw(t, "factor"),
			MaxAttempts: 5,
		}
		policy.MaxDelay = policy.BaseDelay + time.Duration(rapid.Int64Range(0, int64(time.Minute)).Draw(t, "headroom"))

		previous := time.Duration(0)
		for attempt := 1; attempt <= 20; attempt++ {
			delay := policy.Delay(attempt)
			assert.GreaterOrEqual(t, delay, time.Duration(0))
			assert.LessOrEqual(t, delay, policy.MaxDelay)
			assert.GreaterOrEqual(t, delay, previous, "delay must not shrink between attempts")
			previous = delay
		}
	})
}
