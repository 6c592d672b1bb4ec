package ingress

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"time"

	"finpasser/internal/blob"
	"finpasser/internal/broker"
	"finpasser/internal/logger"
	"finpasser/internal/record"
	"finpasser/pkg/errors"
	"finpasser/pkg/logging"
	"finpasser/pkg/metrics"
	"finpasser/pkg/models"
	"finpasser/pkg/tracing"
)

type Submission struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Service struct {
	store       record.Store
	blobs       blob.Store
	producer    broker.Producer
	extractor   Extractor
	topic       string
	logger      logger.Logger
	serviceName string
}

func NewService(store record.Store, blobs blob.Store, producer broker.Producer, extractor Extractor, topic string, log logger.Logger, serviceName string) *Service {
	return &Service{
		store:       store,
		blobs:       blobs,
		producer:    producer,
		extractor:   extractor,
		topic:       topic,
		logger:      log,
		serviceName: serviceName,
	}
}

// Submit writes the blob, records SENT_TO_ROUTER and publishes the upload
// event, in that order. It returns only after all three succeed.
func (s *Service) Submit(ctx context.Context, sub Submission) (rec *record.MessageRecord, err error) {
	start := time.Now()
	defer func() {
		status := outcomeLabel(err)
		metrics.UploadsTotal.WithLabelValues(status).Inc()
		metrics.ObserveIngressDuration(time.Since(start), status)
	}()

	businessID, err := s.extractor.Extract(ctx, FileInfo{
		Filename:    sub.Filename,
		Size:        sub.Size,
		ContentType: sub.ContentType,
	})
	if err != nil {
		return nil, err
	}
	ctx = logging.WithBusinessID(ctx, businessID)

	if _, err := s.store.Get(ctx, businessID); err == nil {
		return nil, errors.ErrConflict.
			WithMessage("business id already submitted").
			WithDetail("business_id", businessID)
	} else if !errors.IsRecordNotFound(err) {
		return nil, err
	}

	blobRef, err := s.blobs.Put(ctx, blob.NewKey(businessID, sub.Filename), sub.Body, sub.Size, sub.ContentType)
	if err != nil {
		s.logger.ErrorwCtx(ctx, "Blob write failed, submission aborted", "error", err)
		return nil, err
	}

	rec = &record.MessageRecord{
		BusinessID: businessID,
		Status:     record.StatusSentToRouter,
		BlobRef:    blobRef,
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.WarnwCtx(ctx, "Record insert failed after blob write, blob orphaned",
			"error", err,
			"blob_ref", blobRef,
		)
		return nil, err
	}

	env, err := models.NewEnvelopeBuilder(models.EventTypeUploadCreated, businessID).
		WithSource(s.serviceName).
		WithProducedAt(rec.CreatedAt).
		WithTraceID(tracing.TraceID(ctx)).
		WithPayload(models.UploadEvent{
			BusinessID:  businessID,
			BlobRef:     blobRef,
			ProducedAt:  rec.CreatedAt,
			Filename:    blob.SanitizeFilename(sub.Filename),
			ContentType: sub.ContentType,
			Size:        sub.Size,
		}).
		Build()
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}

	if err := s.producer.Publish(ctx, s.topic, env); err != nil {
		s.logger.ErrorwCtx(ctx, "Upload event publish failed, record left at SENT_TO_ROUTER",
			"error", err,
			"event_id", env.ID,
		)
		return nil, err
	}

	s.logger.InfowCtx(ctx, "Upload accepted",
		"blob_ref", blobRef,
		"event_id", env.ID,
		"size", sub.Size,
	)
	return rec, nil
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var appErr *errors.Error
	if stderrors.As(err, &appErr) {
		return strings.ToLower(appErr.Code)
	}
	return "error"
}
