package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureAuditCollection creates the indexes the reconcile audit trail is
// queried by. The collection itself appears on first insert.
func EnsureAuditCollection(ctx context.Context, db *mongo.Database, name string) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "business_id", Value: 1}, {Key: "decided_at", Value: 1}},
			Options: options.Index().SetName("idx_reconcile_audit_business_id_decided_at"),
		},
		{
			Keys:    bson.D{{Key: "outcome", Value: 1}, {Key: "decided_at", Value: -1}},
			Options: options.Index().SetName("idx_reconcile_audit_outcome_decided_at"),
		},
	}

	_, err := db.Collection(name).Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
