package outbox

import "time"

// BackoffStrategy decides when a failed event becomes eligible for another
// publish attempt.
type BackoffStrategy interface {
	CalculateNextAttempt(attempt int) time.Time
}

// ExponentialBackoff doubles the delay on every attempt, capped at MaxDelay.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultBackoffStrategy returns the backoff used when none is configured.
func DefaultBackoffStrategy() BackoffStrategy {
	return ExponentialBackoff{
		BaseDelay: defaultBaseDelay,
		MaxDelay:  defaultMaxDelay,
	}
}

func (b ExponentialBackoff) CalculateNextAttempt(attempt int) time.Time {
	if attempt < 1 {
		attempt = 1
	}

	delay := b.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= b.MaxDelay {
			delay = b.MaxDelay
			break
		}
	}
	if delay > b.MaxDelay {
		delay = b.MaxDelay
	}

	return time.Now().UTC().Add(delay)
}

// ImmediateBackoff schedules the next attempt right away. Useful for tests
// and the in-process transport where redelivery is cheap.
type ImmediateBackoff struct{}

func (ImmediateBackoff) CalculateNextAttempt(int) time.Time {
	return time.Now().UTC()
}
