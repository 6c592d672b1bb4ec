// Package acknowledgment is the uploader side of the return path: each
// delivery ack moves the uploader record from SENT_TO_ROUTER to DELIVERED.
package acknowledgment

import (
	"context"

	"finpasser/internal/logger"
	"finpasser/internal/reconcile"
	"finpasser/internal/record"
	"finpasser/pkg/errors"
	"finpasser/pkg/logging"
	"finpasser/pkg/metrics"
	"finpasser/pkg/models"
)

type Handler struct {
	reconciler *reconcile.Reconciler
	logger     logger.Logger
}

func NewHandler(reconciler *reconcile.Reconciler, log logger.Logger) *Handler {
	return &Handler{reconciler: reconciler, logger: log}
}

// Handle returns a retryable RECORD_NOT_FOUND error while the uploader record
// is missing; the consumer retries it within its budget and then parks it.
func (h *Handler) Handle(ctx context.Context, env models.EventEnvelope) error {
	var ack models.DeliveryAck
	if err := models.DecodePayload(env, models.EventTypeDeliveryAcknowledged, &ack); err != nil {
		return errors.ErrInvalidEvent.WithCause(err).AsFatal()
	}
	ctx = logging.WithBusinessID(ctx, ack.BusinessID)

	result, err := h.reconciler.Reconcile(ctx, ack.BusinessID, env.ID, reconcile.Transition{
		Target: record.StatusDelivered,
		From:   record.StatusSentToRouter,
	})
	if err != nil {
		return err
	}

	if result.Decision.Outcome == reconcile.OutcomeApply && result.Record != nil {
		uploadedAt := ack.UploadedAt
		if uploadedAt.IsZero() {
			uploadedAt = result.Record.CreatedAt
		}
		if latency := result.Record.UpdatedAt.Sub(uploadedAt); latency >= 0 {
			metrics.ObserveDeliveryLatency(latency)
		}
	}
	return nil
}
