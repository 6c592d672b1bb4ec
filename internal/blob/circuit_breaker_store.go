package blob

import (
	"context"
	"fmt"
	"io"

	"finpasser/internal/config"
	"finpasser/pkg/circuitbreaker"
	apperrors "finpasser/pkg/errors"
)

// CircuitBreakerStore fails fast with STORAGE_UNAVAILABLE while the blob
// store is tripped. A missing object does not count as a failure.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) *CircuitBreakerStore {
	if !cfg.Enabled {
		return &CircuitBreakerStore{store: store}
	}

	cbConfig := circuitbreaker.FromSettings("blob-store", cfg)
	cbConfig.IsSuccessful = func(err error) bool {
		return err == nil || apperrors.IsBlobNotFound(err) || apperrors.IsWriteFailed(err)
	}

	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(cbConfig),
	}
}

func (s *CircuitBreakerStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if s.cb == nil {
		return s.store.Put(ctx, key, body, size, contentType)
	}

	result, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return s.store.Put(ctx, key, body, size, contentType)
	})
	if err != nil {
		return "", s.rejection(err)
	}

	ref, ok := result.(string)
	if !ok {
		return "", fmt.Errorf("blob store returned invalid result type")
	}
	return ref, nil
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if s.cb == nil {
		return s.store.Get(ctx, key)
	}

	result, err := s.cb.Execute(ctx, func() (interface{}, error) {
		return s.store.Get(ctx, key)
	})
	if err != nil {
		return nil, s.rejection(err)
	}

	body, ok := result.(io.ReadCloser)
	if !ok {
		return nil, fmt.Errorf("blob store returned invalid result type")
	}
	return body, nil
}

func (s *CircuitBreakerStore) EnsureBucket(ctx context.Context) error {
	return s.store.EnsureBucket(ctx)
}

func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CircuitBreakerStore) State() string {
	if s.cb == nil {
		return "disabled"
	}
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) rejection(err error) error {
	if circuitbreaker.IsRejection(err) {
		return apperrors.ErrStorageUnavailable.
			WithMessage(fmt.Sprintf("circuit breaker is open for %s", s.cb.Name())).
			WithCause(err)
	}
	return err
}
