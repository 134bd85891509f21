// internal/app/store/teams/teamstore.go
package teamstore

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

	"github.com/jmharper/taskhub/internal/domain/models"
)

type Store struct {
	c *mongo.Collection
}

var ErrDuplicateTeamName = errors.New("a team with this name already exists")

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("teams")}
}

func (s *Store) Create(ctx context.Context, t models.Team) (models.Team, error) {
	now := time.Now().UTC()
	t.ID = primitive.NewObjectID()
	t.NameCI = text.Fold(t.Name)
	if t.MemberIDs == nil {
		t.MemberIDs = []primitive.ObjectID{}
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, t); err != nil {
		if wafflemongo.IsDup(err) {
			return models.Team{}, ErrDuplicateTeamName
		}
		return models.Team{}, err
	}
	return t, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Team, error) {
	var t models.Team
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return models.Team{}, err
	}
	return t, nil
}

func (s *Store) List(ctx context.Context) ([]models.Team, error) {
	cur, err := s.c.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Team
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateInfo updates name and description. An empty name keeps the current
// one; description can be cleared.
func (s *Store) UpdateInfo(ctx context.Context, id primitive.ObjectID, name, desc string) error {
	set := bson.M{
		"description": desc,
		"updated_at":  time.Now().UTC(),
	}
	if strings.TrimSpace(name) != "" {
		set["name"] = name
		set["name_ci"] = text.Fold(name)
	}

	_, err := s.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil && wafflemongo.IsDup(err) {
		return ErrDuplicateTeamName
	}
	return err
}

// AddMember adds a user to the team; adding an existing member is a no-op.
func (s *Store) AddMember(ctx context.Context, teamID, userID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, teamID, bson.M{
		"$addToSet": bson.M{"member_ids": userID},
		"$set":      bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// RemoveMember removes a user from the team; removing a non-member is a no-op.
func (s *Store) RemoveMember(ctx context.Context, teamID, userID primitive.ObjectID) error {
	_, err := s.c.UpdateByID(ctx, teamID, bson.M{
		"$pull": bson.M{"member_ids": userID},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	})
	return err
}

// Delete removes a team. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
