// Package delivery is the router side of the pipeline: it records each
// upload as RECEIVED and answers with a delivery acknowledgment.
package delivery

import (
	"context"
	"time"

	"finpasser/internal/broker"
	"finpasser/internal/logger"
	"finpasser/internal/reconcile"
	"finpasser/internal/record"
	"finpasser/pkg/errors"
	"finpasser/pkg/logging"
	"finpasser/pkg/models"
	"finpasser/pkg/tracing"
)

type Handler struct {
	reconciler  *reconcile.Reconciler
	producer    broker.Producer
	ackTopic    string
	logger      logger.Logger
	serviceName string
}

func NewHandler(reconciler *reconcile.Reconciler, producer broker.Producer, ackTopic string, log logger.Logger, serviceName string) *Handler {
	return &Handler{
		reconciler:  reconciler,
		producer:    producer,
		ackTopic:    ackTopic,
		logger:      log,
		serviceName: serviceName,
	}
}

// Handle creates the router record (or finds it already present) and then
// publishes the acknowledgment. A redelivered upload re-sends the ack so a
// crash between persist and publish heals on retry.
func (h *Handler) Handle(ctx context.Context, env models.EventEnvelope) error {
	var event models.UploadEvent
	if err := models.DecodePayload(env, models.EventTypeUploadCreated, &event); err != nil {
		return errors.ErrInvalidEvent.WithCause(err).AsFatal()
	}
	ctx = logging.WithBusinessID(ctx, event.BusinessID)

	result, err := h.reconciler.Reconcile(ctx, event.BusinessID, env.ID, reconcile.Transition{
		Target:  record.StatusReceived,
		Create:  true,
		BlobRef: event.BlobRef,
	})
	if err != nil {
		return err
	}

	uploadedAt := event.ProducedAt
	if uploadedAt.IsZero() {
		uploadedAt = env.ProducedAt
	}
	now := time.Now().UTC()

	ack, err := models.NewEnvelopeBuilder(models.EventTypeDeliveryAcknowledged, event.BusinessID).
		WithSource(h.serviceName).
		WithProducedAt(now).
		WithTraceID(tracing.TraceID(ctx)).
		WithPayload(models.DeliveryAck{
			BusinessID:    event.BusinessID,
			ProducedAt:    now,
			UploadEventID: env.ID,
			UploadedAt:    uploadedAt,
		}).
		Build()
	if err != nil {
		return errors.ErrInternal.WithCause(err).AsFatal()
	}

	if err := h.producer.Publish(ctx, h.ackTopic, ack); err != nil {
		return err
	}

	h.logger.InfowCtx(ctx, "Upload received and acknowledged",
		"outcome", result.Decision.Outcome,
		"upload_event_id", env.ID,
		"ack_event_id", ack.ID,
	)
	return nil
}
