package workflow

import "time"

// BackoffKind selects the retry delay curve.
type BackoffKind string

const (
	// BackoffFixed waits the same delay between attempts.
	BackoffFixed BackoffKind = "fixed"
	// BackoffLinear grows the delay by a fixed increment per attempt.
	BackoffLinear BackoffKind = "linear"
	// BackoffExponential doubles the delay each attempt, capped at Max.
	BackoffExponential BackoffKind = "exponential"
)

// RetryPolicy describes the delay between attempts.
type RetryPolicy struct {
	Kind BackoffKind `json:"kind"`
	// Base is the delay for the first retry. For Fixed it is every delay.
	Base time.Duration `json:"base"`
	// Increment grows a Linear delay per attempt.
	Increment time.Duration `json:"increment,omitempty"`
	// Max caps the delay. Zero means uncapped for Fixed and Linear;
	// Exponential requires a cap.
	Max time.Duration `json:"max,omitempty"`
	// Jitter spreads delays by an eighth of the capped value, alternating
	// above and below by attempt parity so runs stay deterministic.
	Jitter bool `json:"jitter,omitempty"`
}

// FixedBackoff waits delay between every attempt.
func FixedBackoff(delay time.Duration) RetryPolicy {
	return RetryPolicy{Kind: BackoffFixed, Base: delay}
}

// LinearBackoff starts at base and grows by base per attempt.
func LinearBackoff(base time.Duration) RetryPolicy {
	return RetryPolicy{Kind: BackoffLinear, Base: base, Increment: base}
}

// ExponentialBackoff doubles from base up to max, with optional jitter.
func ExponentialBackoff(base, max time.Duration, jitter bool) RetryPolicy {
	return RetryPolicy{Kind: BackoffExponential, Base: base, Max: max, Jitter: jitter}
}

// Delay computes the wait before retrying after attempt (0-indexed). With
// jitter enabled, even attempts add an eighth of the capped delay and odd
// attempts subtract it; the result never exceeds Max.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	var d time.Duration
	switch p.Kind {
	case BackoffLinear:
		d = p.Base + time.Duration(attempt)*p.Increment
	case BackoffExponential:
		shift := attempt
		if shift > 30 {
			shift = 30
		}
		d = p.Base << uint(shift)
	default:
		d = p.Base
	}
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter {
		eighth := d / 8
		if attempt%2 == 0 {
			d += eighth
		} else {
			d -= eighth
		}
		if p.Max > 0 && d > p.Max {
			d = p.Max
		}
		if d < 0 {
			d = 0
		}
	}
	return d
}

// RetryConfig bounds how often a node is retried.
type RetryConfig struct {
	// MaxAttempts counts the first try. Zero or one means no retries.
	MaxAttempts int `json:"max_attempts"`
	// Policy shapes the delay between attempts.
	Policy RetryPolicy `json:"policy"`
}

// DefaultRetryConfig retries nothing.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 1}
}

func (c RetryConfig) maxAttempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}
