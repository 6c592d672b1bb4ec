package retry

import (
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

func newExponential(initialInterval, maxInterval, maxElapsed time.Duration, multiplier float64) *backoff.ExponentialBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initialInterval
	exp.MaxInterval = maxInterval
	exp.Multiplier = multiplier
	exp.MaxElapsedTime = maxElapsed
	return exp
}

// ExponentialBackoff never stops on elapsed time; bound it with WithMaxRetries.
func ExponentialBackoff(initialInterval, maxInterval time.Duration, multiplier float64) backoff.BackOff {
	return newExponential(initialInterval, maxInterval, 0, multiplier)
}

func ExponentialBackoffWithMaxElapsed(initialInterval, maxInterval, maxElapsed time.Duration, multiplier float64) backoff.BackOff {
	return newExponential(initialInterval, maxInterval, maxElapsed, multiplier)
}

// CalculateBackoffDuration is the un-jittered delay before retry number attempt+1.
func CalculateBackoffDuration(attempt int, initialInterval time.Duration, multiplier float64, maxInterval time.Duration) time.Duration {
	duration := float64(initialInterval) * math.Pow(multiplier, float64(attempt))
	if duration > float64(maxInterval) {
		return maxInterval
	}
	return time.Duration(duration)
}
