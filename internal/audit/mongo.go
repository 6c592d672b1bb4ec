// Package audit keeps an append-only trail of reconciler decisions in MongoDB.
package audit

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"finpasser/internal/constants"
	"finpasser/internal/reconcile"
)

const writeTimeout = 2 * time.Second

type MongoRecorder struct {
	collection *mongo.Collection
}

var _ reconcile.AuditSink = (*MongoRecorder)(nil)

func NewMongoRecorder(db *mongo.Database, collection string) *MongoRecorder {
	return &MongoRecorder{collection: db.Collection(collection)}
}

// Record writes entry with its own short deadline so a slow audit store does
// not hold up the consumer loop.
func (r *MongoRecorder) Record(ctx context.Context, entry reconcile.AuditEntry) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// History returns the decisions for businessID, oldest first.
func (r *MongoRecorder) History(ctx context.Context, businessID string, limit int) ([]reconcile.AuditEntry, error) {
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "decided_at", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, bson.M{"business_id": businessID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	entries := make([]reconcile.AuditEntry, 0)
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}
