// internal/app/store/tasks/taskstore_test.go
package taskstore_test

import (
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	taskstore "github.com/jmharper/taskhub/internal/app/store/tasks"
	"github.com/jmharper/taskhub/internal/domain/models"
	"github.com/jmharper/taskhub/internal/testutil"
)

func TestCreateDefaultsToOpen(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, models.Task{
		Title:     "Write release notes",
		TeamID:    primitive.NewObjectID(),
		CreatorID: primitive.NewObjectID(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != models.TaskOpen {
		t.Errorf("status = %q, want %q", created.Status, models.TaskOpen)
	}
	if created.ID.IsZero() {
		t.Error("Create should assign an id")
	}
}

func TestListByTeamNewestFirst(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	teamID := primitive.NewObjectID()
	creator := primitive.NewObjectID()
	for _, title := range []string{"first", "second", "third"} {
		if _, err := store.Create(ctx, models.Task{Title: title, TeamID: teamID, CreatorID: creator}); err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
		time.Sleep(5 * time.Millisecond) // distinct created_at
	}
	// A task in another team must not leak in.
	if _, err := store.Create(ctx, models.Task{Title: "other", TeamID: primitive.NewObjectID(), CreatorID: creator}); err != nil {
		t.Fatalf("Create other: %v", err)
	}

	tasks, err := store.ListByTeam(ctx, teamID)
	if err != nil {
		t.Fatalf("ListByTeam: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	if tasks[0].Title != "third" {
		t.Errorf("newest first: got %q at index 0", tasks[0].Title)
	}
}

func TestListByAssignee(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	me := primitive.NewObjectID()
	teamID := primitive.NewObjectID()
	if _, err := store.Create(ctx, models.Task{Title: "mine", TeamID: teamID, CreatorID: me, AssigneeID: &me}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, models.Task{Title: "unassigned", TeamID: teamID, CreatorID: me}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	tasks, err := store.ListByAssignee(ctx, me)
	if err != nil {
		t.Fatalf("ListByAssignee: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Title != "mine" {
		t.Errorf("got %v", tasks)
	}
}

func TestUpdateReturnsNewDocument(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	task, err := store.Create(ctx, models.Task{
		Title:     "Fix flaky test",
		TeamID:    primitive.NewObjectID(),
		CreatorID: primitive.NewObjectID(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := store.Update(ctx, task.ID, bson.M{"status": models.TaskDone})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Status != models.TaskDone {
		t.Errorf("status = %q, want %q", updated.Status, models.TaskDone)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) {
		t.Error("UpdatedAt should advance on update")
	}

	_, err = store.Update(ctx, primitive.NewObjectID(), bson.M{"status": models.TaskDone})
	if !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("unknown id: got %v, want mongo.ErrNoDocuments", err)
	}
}

func TestDelete(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	task, err := store.Create(ctx, models.Task{
		Title:     "Remove me",
		TeamID:    primitive.NewObjectID(),
		CreatorID: primitive.NewObjectID(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := store.Delete(ctx, task.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	n, err = store.Delete(ctx, task.ID)
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if n != 0 {
		t.Errorf("second delete removed %d, want 0", n)
	}
}

func TestListOverdue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := taskstore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	teamID := primitive.NewObjectID()
	creator := primitive.NewObjectID()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if _, err := store.Create(ctx, models.Task{Title: "late", TeamID: teamID, CreatorID: creator, DueAt: &past}); err != nil {
		t.Fatalf("Create late: %v", err)
	}
	if _, err := store.Create(ctx, models.Task{Title: "on time", TeamID: teamID, CreatorID: creator, DueAt: &future}); err != nil {
		t.Fatalf("Create on time: %v", err)
	}
	lateDone, err := store.Create(ctx, models.Task{Title: "late but done", TeamID: teamID, CreatorID: creator, DueAt: &past})
	if err != nil {
		t.Fatalf("Create late but done: %v", err)
	}
	if _, err := store.Update(ctx, lateDone.ID, bson.M{"status": models.TaskDone}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	overdue, err := store.ListOverdue(ctx, now)
	if err != nil {
		t.Fatalf("ListOverdue: %v", err)
	}
	if len(overdue) != 1 || overdue[0].Title != "late" {
		t.Errorf("got %d overdue, want only %q", len(overdue), "late")
	}
}
