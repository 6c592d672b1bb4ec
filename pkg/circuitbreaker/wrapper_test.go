package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpasser/internal/config"
)

var errUnreachable = errors.New("dial tcp: connection refused")

func TestWrapper_TripsAfterFailures(t *testing.T) {
	w := NewWrapper(DefaultConfig("blob-test-trip"))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := w.Execute(ctx, func() (interface{}, error) { return nil, errUnreachable })
		require.ErrorIs(t, err, errUnreachable)
	}

	assert.True(t, w.IsOpen())
	_, err := w.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	assert.True(t, IsRejection(err))
}

func TestWrapper_IsSuccessfulKeepsBreakerClosed(t *testing.T) {
	notFound := errors.New("NoSuchKey")
	cfg := DefaultConfig("blob-test-notfound")
	cfg.IsSuccessful = func(err error) bool { return err == nil || errors.Is(err, notFound) }
	w := NewWrapper(cfg)

	for i := 0; i < 5; i++ {
		_, err := w.Execute(context.Background(), func() (interface{}, error) { return nil, notFound })
		require.ErrorIs(t, err, notFound)
	}
	assert.Equal(t, gobreaker.StateClosed, w.State())
}

func TestWrapper_CancelledContext(t *testing.T) {
	w := NewWrapper(DefaultConfig("blob-test-ctx"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	_, err := w.Execute(ctx, func() (interface{}, error) { called = true; return nil, nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestFromSettings(t *testing.T) {
	cfg := FromSettings("blob", config.CircuitBreakerConfig{
		MaxRequests:  5,
		Timeout:      time.Second,
		FailureRatio: 0.9,
		MinRequests:  10,
	})
	assert.Equal(t, uint32(5), cfg.MaxRequests)
	assert.Equal(t, time.Second, cfg.Timeout)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.False(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 9, TotalFailures: 9}))
	assert.True(t, cfg.ReadyToTrip(gobreaker.Counts{Requests: 10, TotalFailures: 9}))
}
