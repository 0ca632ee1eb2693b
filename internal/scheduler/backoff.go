package scheduler

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy controls how transient failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int `yaml:"max_attempts" validate:"gte=0,lte=20"`

	InitialDelay time.Duration `yaml:"initial_delay" validate:"gte=0"`
	MaxDelay     time.Duration `yaml:"max_delay" validate:"gte=0"`
	Multiplier   float64       `yaml:"multiplier" validate:"gte=0"`
	Jitter       bool          `yaml:"jitter"`
}

// DefaultRetryPolicy returns three attempts with exponential backoff from 250ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2,
		Jitter:       true,
	}
}

// NextDelay returns the wait before retry N (1-based).
func NextDelay(p RetryPolicy, retry int, rng *rand.Rand) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 1.0
	}
	delay := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(max(retry, 1)-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}
