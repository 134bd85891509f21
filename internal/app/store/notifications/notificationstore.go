// internal/app/store/notifications/notificationstore.go
package notificationstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmharper/taskhub/internal/domain/models"
)

// Store persists notifications.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("notifications")}
}

// Create inserts a new unread notification, assigning id and created_at.
func (s *Store) Create(ctx context.Context, n models.Notification) (models.Notification, error) {
	n.ID = primitive.NewObjectID()
	n.CreatedAt = time.Now().UTC()
	n.IsRead = false

	if _, err := s.c.InsertOne(ctx, n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// GetByID fetches one notification. Returns mongo.ErrNoDocuments when absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Notification, error) {
	var n models.Notification
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// ListForUser returns a user's notifications, newest first, capped at limit.
func (s *Store) ListForUser(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.c.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkRead sets is_read on one of the user's notifications and returns the
// updated record. The user filter keeps one user from acknowledging
// another's notification.
func (s *Store) MarkRead(ctx context.Context, id, userID primitive.ObjectID) (models.Notification, error) {
	var n models.Notification
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "user_id": userID},
		bson.M{"$set": bson.M{"is_read": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&n)
	if err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// CountUnread returns how many of a user's notifications are unread.
func (s *Store) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID, "is_read": false})
}
