package audit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"finpasser/internal/constants"
	"finpasser/internal/reconcile"
	"finpasser/internal/record"
	"finpasser/pkg/migrations"
)

func setupMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	if os.Getenv("TESTCONTAINERS_RYUK_DISABLED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	}

	ctx := context.Background()
	container, err := mongodb.Run(ctx, "mongo:6")
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })

	return client.Database(constants.DefaultMongoDBName)
}

func TestMongoRecorder_RecordAndHistory(t *testing.T) {
	db := setupMongo(t)
	rec := NewMongoRecorder(db, "reconcile_audit")
	ctx := context.Background()
	require.NoError(t, migrations.EnsureAuditCollection(ctx, db, "reconcile_audit"))

	base := time.Now().UTC().Truncate(time.Millisecond)
	entries := []reconcile.AuditEntry{
		{Service: constants.ServiceUploader, BusinessID: "7654321", Target: record.StatusDelivered, Outcome: reconcile.OutcomeDefer, Reason: "record absent", DecidedAt: base},
		{Service: constants.ServiceUploader, BusinessID: "7654321", From: record.StatusSentToRouter, Target: record.StatusDelivered, Outcome: reconcile.OutcomeApply, Reason: "forward", DecidedAt: base.Add(time.Second)},
		{Service: constants.ServiceUploader, BusinessID: "other", Target: record.StatusDelivered, Outcome: reconcile.OutcomeIgnore, DecidedAt: base},
	}
	for _, e := range entries {
		require.NoError(t, rec.Record(ctx, e))
	}

	history, err := rec.History(ctx, "7654321", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, reconcile.OutcomeDefer, history[0].Outcome)
	assert.Equal(t, reconcile.OutcomeApply, history[1].Outcome)
	assert.Equal(t, record.StatusSentToRouter, history[1].From)
	assert.True(t, history[1].DecidedAt.Equal(base.Add(time.Second)))
}

func TestMongoRecorder_RecordOutlivesCancelledContext(t *testing.T) {
	db := setupMongo(t)
	rec := NewMongoRecorder(db, "reconcile_audit")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Record(ctx, reconcile.AuditEntry{BusinessID: "late", Outcome: reconcile.OutcomeApply, DecidedAt: time.Now().UTC()}))

	history, err := rec.History(context.Background(), "late", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
