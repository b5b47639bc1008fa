package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/flowctl/console/internal/domain/errs"
	notificationdomain "github.com/flowctl/console/internal/domain/notification"
	"github.com/flowctl/console/internal/domain/uuid"
)

// MongoNotificationRepository implements notification.Repository.
type MongoNotificationRepository struct {
	collection *mongo.Collection
}

// NewMongoNotificationRepository creates a repository backed by collection.
func NewMongoNotificationRepository(collection *mongo.Collection) *MongoNotificationRepository {
	return &MongoNotificationRepository{
		collection: collection,
	}
}

var _ notificationdomain.Repository = (*MongoNotificationRepository)(nil)

// FindByUserID returns the user's notifications, oldest first.
func (r *MongoNotificationRepository) FindByUserID(
	ctx context.Context,
	userID string,
) ([]notificationdomain.Notification, error) {
	if userID == "" {
		return nil, errs.ErrInvalidInput
	}

	filter := bson.M{"user_id": userID}
	opts := options.Find().SetSort(bson.D{
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, HandleMongoError(err, "notifications")
	}
	defer cursor.Close(ctx)

	notifications := make([]notificationdomain.Notification, 0)
	for cursor.Next(ctx) {
		var doc notificationDocument
		if decodeErr := cursor.Decode(&doc); decodeErr != nil {
			return nil, fmt.Errorf("decode notification: %w", decodeErr)
		}
		notifications = append(notifications, doc.toNotification())
	}

	if err = cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return notifications, nil
}

// Save upserts the notification of the user.
func (r *MongoNotificationRepository) Save(
	ctx context.Context,
	userID string,
	notification notificationdomain.Notification,
) error {
	if userID == "" || notification.ID.IsZero() {
		return errs.ErrInvalidInput
	}

	doc := newNotificationDocument(userID, notification)
	filter := bson.M{"user_id": userID, "notification_id": doc.NotificationID}
	update := bson.M{"$set": doc}

	_, err := r.collection.UpdateOne(ctx, filter, update, UpsertOptions())
	return HandleMongoError(err, "notification")
}

// Delete removes one notification. A missing notification is not an error.
func (r *MongoNotificationRepository) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	if userID == "" || id.IsZero() {
		return errs.ErrInvalidInput
	}

	filter := bson.M{"user_id": userID, "notification_id": id.String()}
	_, err := r.collection.DeleteOne(ctx, filter)
	return HandleMongoError(err, "notification")
}

// DeleteByUserID removes all notifications of the user.
func (r *MongoNotificationRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if userID == "" {
		return errs.ErrInvalidInput
	}

	filter := bson.M{"user_id": userID}
	_, err := r.collection.DeleteMany(ctx, filter)
	return HandleMongoError(err, "notifications")
}

// notificationDocument is the stored form of a notification.
type notificationDocument struct {
	NotificationID string    `bson:"notification_id"`
	UserID         string    `bson:"user_id"`
	Type           string    `bson:"type"`
	Title          string    `bson:"title"`
	Message        string    `bson:"message"`
	DurationMS     int64     `bson:"duration_ms"`
	Dismissible    bool      `bson:"dismissible"`
	CreatedAt      time.Time `bson:"created_at"`
}

func newNotificationDocument(userID string, n notificationdomain.Notification) notificationDocument {
	return notificationDocument{
		NotificationID: n.ID.String(),
		UserID:         userID,
		Type:           string(n.Type),
		Title:          n.Title,
		Message:        n.Message,
		DurationMS:     n.Duration.Milliseconds(),
		Dismissible:    n.Dismissible,
		CreatedAt:      n.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toNotification() notificationdomain.Notification {
	return notificationdomain.Notification{
		ID:          uuid.UUID(d.NotificationID),
		Type:        notificationdomain.Type(d.Type),
		Title:       d.Title,
		Message:     d.Message,
		Duration:    time.Duration(d.DurationMS) * time.Millisecond,
		Dismissible: d.Dismissible,
		CreatedAt:   d.CreatedAt,
	}
}
