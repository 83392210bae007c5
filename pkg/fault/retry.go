package fault

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures the pause between orchestration attempts.
type RetryConfig struct {
	MaxAttempts   int           // Total attempts per record, including the first
	InitialDelay  time.Duration // Delay before the second attempt
	MaxDelay      time.Duration // Cap on any single delay
	BackoffFactor float64       // Exponential backoff multiplier
	JitterPercent float32       // Random jitter percentage (0.0-1.0)
}

// DefaultRetryConfig matches the behaviour operators expect from the CLI:
// three attempts, two seconds apart, no growth.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:   3,
	InitialDelay:  2 * time.Second,
	MaxDelay:      30 * time.Second,
	BackoffFactor: 1.0,
	JitterPercent: 0,
}

// Delay computes the pause before the given attempt (2 is the first retry).
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 2 || c.InitialDelay <= 0 {
		return 0
	}

	factor := c.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	delay := float64(c.InitialDelay) * math.Pow(factor, float64(attempt-2))

	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}

	if c.JitterPercent > 0 {
		jitterRange := delay * float64(c.JitterPercent)
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
	}

	if delay < 0 {
		delay = float64(c.InitialDelay)
	}

	return time.Duration(delay)
}
