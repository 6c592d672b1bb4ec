package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finpasser/internal/logger"
	"finpasser/internal/record"
	"finpasser/internal/record/recordtest"
	apperrors "finpasser/pkg/errors"
	"finpasser/pkg/retry"
)

type captureAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (a *captureAudit) Record(_ context.Context, e AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, e)
	return a.err
}

func TestReconcile_DuplicateCreateYieldsOneRecord(t *testing.T) {
	store := recordtest.NewMemoryStore()
	audit := &captureAudit{}
	r := NewReconciler(store, audit, logger.NopLogger(), "router-service")
	tr := Transition{Target: record.StatusReceived, Create: true, BlobRef: "7654321/a.xml"}

	first, err := r.Reconcile(context.Background(), "7654321", "evt-1", tr)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApply, first.Decision.Outcome)

	second, err := r.Reconcile(context.Background(), "7654321", "evt-1", tr)
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnore, second.Decision.Outcome)
	assert.Equal(t, first.Record.ID, second.Record.ID)

	assert.Equal(t, 1, store.Len())
	require.Len(t, audit.entries, 2)
	assert.Equal(t, record.StatusReceived, audit.entries[1].From)
}

func TestReconcile_ConcurrentDuplicates(t *testing.T) {
	store := recordtest.NewMemoryStore()
	r := NewReconciler(store, nil, logger.NopLogger(), "router-service")
	tr := Transition{Target: record.StatusReceived, Create: true, BlobRef: "k"}

	var wg sync.WaitGroup
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Reconcile(context.Background(), "dup", "evt", tr)
			assert.NoError(t, err)
			if res.Decision.Outcome == OutcomeApply {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, store.Len())
}

func TestReconcile_AckBeforeRecordIsRetryable(t *testing.T) {
	store := recordtest.NewMemoryStore()
	r := NewReconciler(store, nil, logger.NopLogger(), "uploader-service")
	ack := Transition{Target: record.StatusDelivered, From: record.StatusSentToRouter}

	_, err := r.Reconcile(context.Background(), "early", "ack-1", ack)
	require.Error(t, err)
	assert.True(t, apperrors.IsRecordNotFound(err))
	assert.False(t, retry.IsFatal(err))

	store.Put(record.MessageRecord{BusinessID: "early", Status: record.StatusSentToRouter})

	res, err := r.Reconcile(context.Background(), "early", "ack-1", ack)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApply, res.Decision.Outcome)
	assert.Equal(t, record.StatusDelivered, res.Record.Status)
}

func TestReconcile_BackwardIsFatal(t *testing.T) {
	store := recordtest.NewMemoryStore()
	store.Put(record.MessageRecord{BusinessID: "done", Status: record.StatusDelivered})
	r := NewReconciler(store, nil, logger.NopLogger(), "uploader-service")

	_, err := r.Reconcile(context.Background(), "done", "", Transition{Target: record.StatusSentToRouter})
	require.Error(t, err)
	assert.True(t, apperrors.IsOutOfOrder(err))
	assert.True(t, retry.IsFatal(err))

	got, err := store.Get(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, record.StatusDelivered, got.Status)
}

func TestReconcile_StoreErrorPropagates(t *testing.T) {
	store := recordtest.NewMemoryStore()
	store.ApplyErr = errors.New("connection reset")
	r := NewReconciler(store, nil, logger.NopLogger(), "router-service")

	_, err := r.Reconcile(context.Background(), "x", "", Transition{Target: record.StatusReceived, Create: true})
	assert.EqualError(t, err, "connection reset")
}

func TestReconcile_AuditFailureIgnored(t *testing.T) {
	store := recordtest.NewMemoryStore()
	r := NewReconciler(store, &captureAudit{err: errors.New("mongo down")}, logger.NopLogger(), "router-service")

	_, err := r.Reconcile(context.Background(), "x", "", Transition{Target: record.StatusReceived, Create: true})
	assert.NoError(t, err)
}
