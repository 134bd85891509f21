// internal/app/store/tasks/taskstore.go
package taskstore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmharper/taskhub/internal/domain/models"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("tasks")}
}

func (s *Store) Create(ctx context.Context, t models.Task) (models.Task, error) {
	now := time.Now().UTC()
	t.ID = primitive.NewObjectID()
	if t.Status == "" {
		t.Status = models.TaskOpen
	}
	t.CreatedAt = now
	t.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (models.Task, error) {
	var t models.Task
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&t); err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// ListByTeam returns a team's tasks, newest first.
func (s *Store) ListByTeam(ctx context.Context, teamID primitive.ObjectID) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"team_id": teamID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByAssignee returns the tasks assigned to a user, newest first.
func (s *Store) ListByAssignee(ctx context.Context, userID primitive.ObjectID) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cur, err := s.c.Find(ctx, bson.M{"assignee_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies the given field changes and returns the updated task.
func (s *Store) Update(ctx context.Context, id primitive.ObjectID, set bson.M) (models.Task, error) {
	set["updated_at"] = time.Now().UTC()

	var t models.Task
	err := s.c.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&t)
	if err != nil {
		return models.Task{}, err
	}
	return t, nil
}

// Delete removes a task. Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// ListOverdue returns unfinished tasks whose due date has passed. The
// overdue sweep worker uses it to emit task-overdue notifications.
func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]models.Task, error) {
	filter := bson.M{
		"status": bson.M{"$ne": models.TaskDone},
		"due_at": bson.M{"$lt": now},
	}
	cur, err := s.c.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []models.Task
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
