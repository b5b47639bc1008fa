// Package mongodb manages the console's MongoDB collections.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionNotifications holds notifications that stay until removed.
const CollectionNotifications = "notifications"

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Collection string
	Keys       bson.D
	Options    *options.IndexOptionsBuilder
}

// CreateAllIndexes creates all necessary indexes for the application.
// This function is idempotent - calling it multiple times is safe.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	return createIndexes(ctx, db, GetAllIndexDefinitions())
}

// EnsureIndexes is an alias for CreateAllIndexes for semantic clarity.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return CreateAllIndexes(ctx, db)
}

// GetAllIndexDefinitions returns all index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	return GetNotificationIndexes()
}

// GetNotificationIndexes returns index definitions for the notifications collection.
func GetNotificationIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			// one document per notification and user
			Collection: CollectionNotifications,
			Keys:       bson.D{{Key: "user_id", Value: 1}, {Key: "notification_id", Value: 1}},
			Options:    options.Index().SetUnique(true).SetName("idx_notifications_user_id_unique"),
		},
		{
			// restoring a user's list in creation order
			Collection: CollectionNotifications,
			Keys:       bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options:    options.Index().SetName("idx_notifications_user_time"),
		},
	}
}

// CreateCollectionIndexes creates indexes for a specific collection only.
func CreateCollectionIndexes(ctx context.Context, db *mongo.Database, collectionName string) error {
	var indexes []IndexDefinition
	for _, idx := range GetAllIndexDefinitions() {
		if idx.Collection == collectionName {
			indexes = append(indexes, idx)
		}
	}
	if len(indexes) == 0 {
		return fmt.Errorf("unknown collection: %s", collectionName)
	}
	return createIndexes(ctx, db, indexes)
}

func createIndexes(ctx context.Context, db *mongo.Database, indexes []IndexDefinition) error {
	for _, idx := range indexes {
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: idx.Options,
		}
		if _, err := db.Collection(idx.Collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", idx.Collection, err)
		}
	}
	return nil
}
