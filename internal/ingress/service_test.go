package ingress

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpasser/internal/blob/blobtest"
	"finpasser/internal/broker/brokertest"
	"finpasser/internal/config"
	"finpasser/internal/constants"
	"finpasser/internal/logger"
	"finpasser/internal/record"
	"finpasser/internal/record/recordtest"
	"finpasser/pkg/errors"
	"finpasser/pkg/models"
)

type fixture struct {
	store    *recordtest.MemoryStore
	blobs    *blobtest.MemoryStore
	producer *brokertest.RecordingProducer
	service  *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ex, err := NewExtractor(config.BusinessIDConfig{})
	require.NoError(t, err)

	f := &fixture{
		store:    recordtest.NewMemoryStore(),
		blobs:    blobtest.NewMemoryStore(),
		producer: &brokertest.RecordingProducer{},
	}
	f.service = NewService(f.store, f.blobs, f.producer, ex, constants.UploadEventsTopic, logger.NopLogger(), constants.ServiceUploader)
	return f
}

func submission(filename, body string) Submission {
	return Submission{
		Filename:    filename,
		ContentType: "application/xml",
		Size:        int64(len(body)),
		Body:        strings.NewReader(body),
	}
}

func TestSubmit_Success(t *testing.T) {
	f := newFixture(t)

	rec, err := f.service.Submit(context.Background(), submission("7654321_sample_pain001.xml", "<Document/>"))
	require.NoError(t, err)
	assert.Equal(t, record.StatusSentToRouter, rec.Status)
	assert.True(t, strings.HasPrefix(rec.BlobRef, "7654321/"))
	assert.Equal(t, 1, f.blobs.Len())

	stored, err := f.store.Get(context.Background(), "7654321")
	require.NoError(t, err)
	assert.Equal(t, rec.BlobRef, stored.BlobRef)

	published := f.producer.Published()
	require.Len(t, published, 1)
	assert.Equal(t, constants.UploadEventsTopic, published[0].Topic)

	env := published[0].Envelope
	assert.Equal(t, "7654321", env.BusinessID)
	assert.Equal(t, constants.ServiceUploader, env.Source)

	var event models.UploadEvent
	require.NoError(t, models.DecodePayload(env, models.EventTypeUploadCreated, &event))
	assert.Equal(t, rec.BlobRef, event.BlobRef)
	assert.Equal(t, int64(len("<Document/>")), event.Size)
}

func TestSubmit_DuplicateRejectedBeforeBlobWrite(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Submit(context.Background(), submission("1_a.xml", "x"))
	require.NoError(t, err)

	_, err = f.service.Submit(context.Background(), submission("1_b.xml", "y"))
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 1, f.blobs.Len())
	assert.Len(t, f.producer.Published(), 1)
}

func TestSubmit_BlobFailureLeavesNothingDurable(t *testing.T) {
	f := newFixture(t)
	f.blobs.PutErr = errors.ErrStorageUnavailable

	_, err := f.service.Submit(context.Background(), submission("1_a.xml", "x"))
	assert.ErrorIs(t, err, errors.ErrStorageUnavailable)
	assert.Equal(t, 0, f.store.Len())
	assert.Empty(t, f.producer.Published())
}

func TestSubmit_InsertRaceOrphansBlob(t *testing.T) {
	f := newFixture(t)
	f.store.InsertErr = errors.ErrConflict.WithDetail("business_id", "1")

	_, err := f.service.Submit(context.Background(), submission("1_a.xml", "x"))
	assert.True(t, errors.IsConflict(err))
	assert.Equal(t, 1, f.blobs.Len())
	assert.Empty(t, f.producer.Published())
}

func TestSubmit_PublishFailureLeavesRecordPending(t *testing.T) {
	f := newFixture(t)
	f.producer.Err = errors.ErrPublishFailed

	_, err := f.service.Submit(context.Background(), submission("1_a.xml", "x"))
	assert.ErrorIs(t, err, errors.ErrPublishFailed)

	rec, err := f.store.Get(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, record.StatusSentToRouter, rec.Status)
}

func TestSubmit_UnparseableFilename(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Submit(context.Background(), submission("payload.xml", "x"))
	assert.True(t, errors.IsValidation(err))
	assert.Equal(t, 0, f.blobs.Len())
}

func TestOutcomeLabel(t *testing.T) {
	assert.Equal(t, "ok", outcomeLabel(nil))
	assert.Equal(t, "conflict", outcomeLabel(errors.ErrConflict))
	assert.Equal(t, "error", outcomeLabel(assert.AnError))
}
