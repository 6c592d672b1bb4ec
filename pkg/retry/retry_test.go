package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
	}
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return errors.New("record not visible yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_StopsAtMaxAttempts(t *testing.T) {
	calls := 0
	var retried []int
	err := RetryWithCallback(context.Background(), fastPolicy(4), func() error {
		calls++
		return errors.New("still missing")
	}, func(attempt int, err error, nextDelay time.Duration) {
		retried = append(retried, attempt)
	})
	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []int{1, 2, 3}, retried)
}

func TestRetry_FatalErrorIsNotRetried(t *testing.T) {
	calls := 0
	sentinel := errors.New("backward transition")
	err := Retry(context.Background(), fastPolicy(5), func() error {
		calls++
		return NewFatalError(sentinel)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, Policy{MaxAttempts: 10, InitialInterval: time.Second, MaxInterval: time.Second, Multiplier: 1}, func() error {
		calls++
		return errors.New("transient")
	})
	require.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestIsFatal(t *testing.T) {
	assert.False(t, IsFatal(nil))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(NewRetryableError(errors.New("x"))))
	assert.True(t, IsFatal(NewFatalError(errors.New("x"))))
}

func TestPolicy_Merge(t *testing.T) {
	got := Policy{MaxAttempts: 7}.Merge(DefaultPolicy())
	assert.Equal(t, 7, got.MaxAttempts)
	assert.Equal(t, DefaultPolicy().InitialInterval, got.InitialInterval)
	assert.Equal(t, DefaultPolicy().MaxElapsedTime, got.MaxElapsedTime)
}

func TestCalculateBackoffDuration(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, CalculateBackoffDuration(0, 100*time.Millisecond, 2, time.Second))
	assert.Equal(t, 400*time.Millisecond, CalculateBackoffDuration(2, 100*time.Millisecond, 2, time.Second))
	assert.Equal(t, time.Second, CalculateBackoffDuration(10, 100*time.Millisecond, 2, time.Second))
}
