package testutil

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/waffle/pantry/text"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/jmharper/taskhub/internal/domain/models"
)

// WithChiURLParam adds a chi URL parameter to the request context.
// Use this in handler tests that need to access chi.URLParam values.
// Calls can be chained to add multiple parameters.
func WithChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx, ok := r.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok || rctx == nil {
		rctx = chi.NewRouteContext()
		r = r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return r
}

// Fixtures provides helper methods for creating test data.
type Fixtures struct {
	db *mongo.Database
	t  *testing.T
}

// NewFixtures creates a new Fixtures instance for the given test database.
func NewFixtures(t *testing.T, db *mongo.Database) *Fixtures {
	t.Helper()
	return &Fixtures{db: db, t: t}
}

// DB returns the underlying database for direct access in tests.
func (f *Fixtures) DB() *mongo.Database {
	return f.db
}

// CreateUser creates a test user with the given name, email, and role.
func (f *Fixtures) CreateUser(ctx context.Context, fullName, email, role string) models.User {
	f.t.Helper()

	now := time.Now().UTC()
	user := models.User{
		ID:           primitive.NewObjectID(),
		FullName:     fullName,
		FullNameCI:   text.Fold(fullName),
		Email:        email,
		PasswordHash: "not-a-real-hash",
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := f.db.Collection("users").InsertOne(ctx, user)
	if err != nil {
		f.t.Fatalf("failed to create test user: %v", err)
	}

	return user
}

// CreateTeam creates a test team with the given name and members.
func (f *Fixtures) CreateTeam(ctx context.Context, name string, memberIDs ...primitive.ObjectID) models.Team {
	f.t.Helper()

	now := time.Now().UTC()
	if memberIDs == nil {
		memberIDs = []primitive.ObjectID{}
	}
	team := models.Team{
		ID:        primitive.NewObjectID(),
		Name:      name,
		NameCI:    text.Fold(name),
		MemberIDs: memberIDs,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := f.db.Collection("teams").InsertOne(ctx, team)
	if err != nil {
		f.t.Fatalf("failed to create test team: %v", err)
	}

	return team
}

// CreateTask creates an open test task on the given team, assigned to the
// given user.
func (f *Fixtures) CreateTask(ctx context.Context, title string, teamID, assigneeID primitive.ObjectID) models.Task {
	f.t.Helper()

	now := time.Now().UTC()
	task := models.Task{
		ID:         primitive.NewObjectID(),
		Title:      title,
		TeamID:     teamID,
		AssigneeID: &assigneeID,
		CreatorID:  assigneeID,
		Status:     models.TaskOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	_, err := f.db.Collection("tasks").InsertOne(ctx, task)
	if err != nil {
		f.t.Fatalf("failed to create test task: %v", err)
	}

	return task
}

// CreateMessage creates a test message between two users.
func (f *Fixtures) CreateMessage(ctx context.Context, senderID, receiverID primitive.ObjectID, content string) models.Message {
	f.t.Helper()

	msg := models.Message{
		ID:         primitive.NewObjectID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}

	_, err := f.db.Collection("messages").InsertOne(ctx, msg)
	if err != nil {
		f.t.Fatalf("failed to create test message: %v", err)
	}

	return msg
}

// CreateNotification creates an unread test notification for the given user.
func (f *Fixtures) CreateNotification(ctx context.Context, userID primitive.ObjectID, typ models.NotificationType, title string) models.Notification {
	f.t.Helper()

	n := models.Notification{
		ID:        primitive.NewObjectID(),
		UserID:    userID,
		Title:     title,
		Type:      typ,
		CreatedAt: time.Now().UTC(),
	}

	_, err := f.db.Collection("notifications").InsertOne(ctx, n)
	if err != nil {
		f.t.Fatalf("failed to create test notification: %v", err)
	}

	return n
}
