// Package dedup skips events whose id was already handled successfully. The
// mark is written only after the wrapped handler returns nil, so a crash
// mid-handler still redelivers. Cache errors never block processing.
package dedup

import (
	"context"
	"time"

	"finpasser/internal/broker"
	"finpasser/internal/constants"
	"finpasser/internal/logger"
	"finpasser/pkg/metrics"
	"finpasser/pkg/models"
)

type Cache struct {
	repo        Repository
	ttl         time.Duration
	logger      logger.Logger
	serviceName string
}

func NewCache(repo Repository, ttl time.Duration, log logger.Logger, serviceName string) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{repo: repo, ttl: ttl, logger: log, serviceName: serviceName}
}

func (c *Cache) key(eventID string) string {
	return constants.CacheKeyPrefixProcessed + c.serviceName + ":" + eventID
}

// Wrap returns a handler that consults the cache around next.
func (c *Cache) Wrap(topic string, next broker.HandlerFunc) broker.HandlerFunc {
	return func(ctx context.Context, env models.EventEnvelope) error {
		key := c.key(env.ID)

		seen, err := c.repo.Exists(ctx, key)
		if err != nil {
			c.logger.WarnwCtx(ctx, "Processed-event cache unavailable, handling event anyway",
				"error", err,
				"event_id", env.ID,
			)
		} else if seen {
			metrics.DuplicateEventsSkippedTotal.WithLabelValues(c.serviceName, topic).Inc()
			c.logger.InfowCtx(ctx, "Skipping already processed event",
				"event_id", env.ID,
				"business_id", env.BusinessID,
			)
			return nil
		}

		if err := next(ctx, env); err != nil {
			return err
		}

		if err := c.repo.MarkProcessed(ctx, key, c.ttl); err != nil {
			c.logger.WarnwCtx(ctx, "Failed to mark event processed",
				"error", err,
				"event_id", env.ID,
			)
		}
		return nil
	}
}
