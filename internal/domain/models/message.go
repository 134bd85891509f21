// internal/domain/models/message.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one direct chat message between two users.
//
// A message is immutable once persisted except for IsRead, which flips
// false→true exactly once. SentAt is assigned at persistence time and is
// strictly increasing across a single sender's successive sends.
type Message struct {
	ID         primitive.ObjectID `bson:"_id" json:"id"`
	SenderID   primitive.ObjectID `bson:"sender_id" json:"sender_id"`
	ReceiverID primitive.ObjectID `bson:"receiver_id" json:"receiver_id"`
	Content    string             `bson:"content" json:"content"`
	SentAt     time.Time          `bson:"sent_at" json:"sent_at"`
	IsRead     bool               `bson:"is_read" json:"is_read"`
}
