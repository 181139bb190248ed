package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		attempt int
		want    time.Duration
	}{
		{"fixed", FixedBackoff(50 * time.Millisecond), 0, 50 * time.Millisecond},
		{"fixed later attempt", FixedBackoff(50 * time.Millisecond), 7, 50 * time.Millisecond},
		{"linear first", LinearBackoff(100 * time.Millisecond), 0, 100 * time.Millisecond},
		{"linear third", LinearBackoff(100 * time.Millisecond), 2, 300 * time.Millisecond},
		{"exponential first", ExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, false), 0, 100 * time.Millisecond},
		{"exponential doubles", ExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, false), 2, 400 * time.Millisecond},
		{"exponential capped", ExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, false), 5, 800 * time.Millisecond},
		{"negative attempt clamps", LinearBackoff(100 * time.Millisecond), -3, 100 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestRetryPolicyJitterStaysWithinBand(t *testing.T) {
	policy := ExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, true)

	for attempt := 0; attempt < 8; attempt++ {
		capped := 100 * time.Millisecond << uint(attempt)
		if capped > 800*time.Millisecond {
			capped = 800 * time.Millisecond
		}
		d := policy.Delay(attempt)
		assert.GreaterOrEqual(t, d, capped-capped/8, "attempt %d", attempt)
		assert.LessOrEqual(t, d, capped+capped/8, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 800*time.Millisecond, "attempt %d never exceeds max", attempt)
	}
}

func TestRetryPolicyJitterIsDeterministic(t *testing.T) {
	policy := ExponentialBackoff(100*time.Millisecond, 800*time.Millisecond, true)

	for attempt := 0; attempt < 5; attempt++ {
		assert.Equal(t, policy.Delay(attempt), policy.Delay(attempt))
	}
	// Adjacent attempts land on opposite sides of the curve.
	assert.Equal(t, 112500*time.Microsecond, policy.Delay(0))
	assert.Equal(t, 175*time.Millisecond, policy.Delay(1))
}

func TestRetryConfigMaxAttemptsFloor(t *testing.T) {
	assert.Equal(t, 1, RetryConfig{}.maxAttempts())
	assert.Equal(t, 1, DefaultRetryConfig().maxAttempts())
	assert.Equal(t, 4, RetryConfig{MaxAttempts: 4}.maxAttempts())
}
