// Package monitor reports uploader records that have sat in SENT_TO_ROUTER
// longer than the stuck threshold, which is how a failed publish surfaces.
package monitor

import (
	"context"
	"time"

	"finpasser/internal/config"
	"finpasser/internal/logger"
	"finpasser/internal/record"
	"finpasser/pkg/metrics"
)

// sampleSize bounds how many stuck records are logged per check.
const sampleSize = 10

type Monitor struct {
	store      record.Store
	stuckAfter time.Duration
	interval   time.Duration
	logger     logger.Logger
	now        func() time.Time
}

func New(store record.Store, cfg config.MonitorConfig, log logger.Logger) *Monitor {
	m := &Monitor{
		store:      store,
		stuckAfter: cfg.StuckAfter,
		interval:   cfg.Interval,
		logger:     log,
		now:        time.Now,
	}
	if m.stuckAfter <= 0 {
		m.stuckAfter = 10 * time.Minute
	}
	if m.interval <= 0 {
		m.interval = time.Minute
	}
	return m
}

// Run checks once immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Check(ctx); err != nil && ctx.Err() == nil {
			m.logger.ErrorwCtx(ctx, "Stuck record check failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) Check(ctx context.Context) (int, error) {
	filter := record.ListFilter{
		Status:    record.StatusSentToRouter,
		OlderThan: m.now().Add(-m.stuckAfter),
	}

	count, err := m.store.Count(ctx, filter)
	if err != nil {
		return 0, err
	}
	metrics.SetRecordsStuck(count)
	if count == 0 {
		return 0, nil
	}

	filter.Limit = sampleSize
	sample, err := m.store.List(ctx, filter)
	if err != nil {
		return count, err
	}
	for _, rec := range sample {
		m.logger.WarnwCtx(ctx, "Record stuck awaiting delivery acknowledgment",
			"business_id", rec.BusinessID,
			"blob_ref", rec.BlobRef,
			"updated_at", rec.UpdatedAt,
			"age", m.now().Sub(rec.UpdatedAt).Round(time.Second),
		)
	}
	m.logger.WarnwCtx(ctx, "Stuck records detected", "count", count, "stuck_after", m.stuckAfter)
	return count, nil
}
