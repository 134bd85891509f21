// internal/domain/models/task.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Task status values.
const (
	TaskOpen       = "open"
	TaskInProgress = "in_progress"
	TaskDone       = "done"
)

// Task is a unit of tracked work belonging to a team, optionally assigned
// to a single user.
type Task struct {
	ID          primitive.ObjectID  `bson:"_id" json:"id"`
	Title       string              `bson:"title" json:"title"`
	Description string              `bson:"description" json:"description"`
	TeamID      primitive.ObjectID  `bson:"team_id" json:"team_id"`
	AssigneeID  *primitive.ObjectID `bson:"assignee_id,omitempty" json:"assignee_id,omitempty"`
	CreatorID   primitive.ObjectID  `bson:"creator_id" json:"creator_id"`
	Status      string              `bson:"status" json:"status"`
	DueAt       *time.Time          `bson:"due_at,omitempty" json:"due_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// IsValidTaskStatus reports whether s is one of the known task statuses.
func IsValidTaskStatus(s string) bool {
	switch s {
	case TaskOpen, TaskInProgress, TaskDone:
		return true
	}
	return false
}
