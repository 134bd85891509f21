// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"strings"
	"time"

	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmharper/taskhub/internal/domain/models"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateEmail = errors.New("an account with this email already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

// Create inserts a new user. Email is normalized to lowercase; the unique
// index on email turns races into ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, u models.User) (models.User, error) {
	now := time.Now().UTC()
	u.ID = primitive.NewObjectID()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FullNameCI = text.Fold(u.FullName)
	if u.Role == "" {
		u.Role = "member"
	}
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateEmail
		}
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var u models.User
	filter := bson.M{"email": strings.ToLower(strings.TrimSpace(email))}
	if err := s.c.FindOne(ctx, filter).Decode(&u); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// List returns all users sorted by folded name. The UI uses it for assignee
// and recipient pickers; at this app's scale a full list is fine.
func (s *Store) List(ctx context.Context) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "full_name_ci", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile updates the user's display name.
func (s *Store) UpdateProfile(ctx context.Context, id primitive.ObjectID, fullName string) error {
	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": bson.M{
		"full_name":    fullName,
		"full_name_ci": text.Fold(fullName),
		"updated_at":   time.Now().UTC(),
	}})
	return err
}
