// internal/app/store/messages/messagestore.go
package messagestore

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmharper/taskhub/internal/domain/models"
)

// Store persists direct chat messages.
type Store struct {
	c *mongo.Collection

	// sent_at must be strictly increasing for a single sender's successive
	// sends even when the clock doesn't move between two inserts.
	mu       sync.Mutex
	lastSent map[primitive.ObjectID]time.Time
}

func New(db *mongo.Database) *Store {
	return &Store{
		c:        db.Collection("messages"),
		lastSent: make(map[primitive.ObjectID]time.Time),
	}
}

// nextSentAt returns a timestamp strictly after the sender's previous one.
func (s *Store) nextSentAt(senderID primitive.ObjectID) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if last, ok := s.lastSent[senderID]; ok && !now.After(last) {
		now = last.Add(time.Millisecond)
	}
	s.lastSent[senderID] = now
	return now
}

// Create inserts a new unread message, assigning its id and sent_at.
func (s *Store) Create(ctx context.Context, m models.Message) (models.Message, error) {
	m.ID = primitive.NewObjectID()
	m.SentAt = s.nextSentAt(m.SenderID)
	m.IsRead = false

	if _, err := s.c.InsertOne(ctx, m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// GetByID fetches one message. Returns mongo.ErrNoDocuments when absent.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Message, error) {
	var m models.Message
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// MarkRead sets is_read and returns the updated message. Marking an
// already-read message is a harmless no-op at this level; the one-time-flip
// rule is enforced by the delivery pipeline.
func (s *Store) MarkRead(ctx context.Context, id primitive.ObjectID) (models.Message, error) {
	var m models.Message
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_read": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&m)
	if err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// Conversation returns the messages exchanged between two users, oldest
// first, capped at limit.
func (s *Store) Conversation(ctx context.Context, a, b primitive.ObjectID, limit int64) ([]models.Message, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"sender_id": a, "receiver_id": b},
		bson.M{"sender_id": b, "receiver_id": a},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "sent_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountUnread returns how many messages addressed to userID are unread.
func (s *Store) CountUnread(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"receiver_id": userID, "is_read": false})
}
