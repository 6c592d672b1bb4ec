package dedup

import (
	"context"
	"fmt"
	"time"

	"finpasser/internal/config"
	"finpasser/pkg/circuitbreaker"
)

type CircuitBreakerRepository struct {
	repo Repository
	cb   *circuitbreaker.Wrapper
}

func NewCircuitBreakerRepository(repo Repository, cfg config.CircuitBreakerConfig) *CircuitBreakerRepository {
	if !cfg.Enabled {
		return &CircuitBreakerRepository{repo: repo}
	}
	return &CircuitBreakerRepository{
		repo: repo,
		cb:   circuitbreaker.NewWrapper(circuitbreaker.FromSettings("redis-dedup", cfg)),
	}
}

func (r *CircuitBreakerRepository) Exists(ctx context.Context, key string) (bool, error) {
	if r.cb == nil {
		return r.repo.Exists(ctx, key)
	}

	result, err := r.cb.Execute(ctx, func() (interface{}, error) {
		return r.repo.Exists(ctx, key)
	})
	if err != nil {
		return false, r.wrap(err)
	}

	found, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("repository returned invalid result type")
	}
	return found, nil
}

func (r *CircuitBreakerRepository) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	if r.cb == nil {
		return r.repo.MarkProcessed(ctx, key, ttl)
	}

	_, err := r.cb.Execute(ctx, func() (interface{}, error) {
		return nil, r.repo.MarkProcessed(ctx, key, ttl)
	})
	return r.wrap(err)
}

func (r *CircuitBreakerRepository) State() string {
	if r.cb == nil {
		return "disabled"
	}
	return r.cb.State().String()
}

func (r *CircuitBreakerRepository) wrap(err error) error {
	if err != nil && circuitbreaker.IsRejection(err) {
		return fmt.Errorf("circuit breaker is open for %s: %w", r.cb.Name(), err)
	}
	return err
}
