// internal/domain/models/notification.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationType is the closed set of notification kinds the system emits.
type NotificationType string

const (
	NotifyComment           NotificationType = "comment"
	NotifyMention           NotificationType = "mention"
	NotifyTaskAssigned      NotificationType = "task-assigned"
	NotifyTaskUpdated       NotificationType = "task-updated"
	NotifyTaskCompleted     NotificationType = "task-completed"
	NotifyTaskDeleted       NotificationType = "task-deleted"
	NotifyTaskOverdue       NotificationType = "task-overdue"
	NotifyReminder          NotificationType = "reminder"
	NotifyMessage           NotificationType = "message"
	NotifyCalendarCreated   NotificationType = "calendar-created"
	NotifyCalendarUpdated   NotificationType = "calendar-updated"
	NotifyCalendarDeleted   NotificationType = "calendar-deleted"
	NotifyTeamStatusCreated NotificationType = "team-status-created"
	NotifyTeamStatusUpdated NotificationType = "team-status-updated"
	NotifyTeamStatusDeleted NotificationType = "team-status-deleted"
)

var allNotificationTypes = map[NotificationType]struct{}{
	NotifyComment: {}, NotifyMention: {},
	NotifyTaskAssigned: {}, NotifyTaskUpdated: {}, NotifyTaskCompleted: {},
	NotifyTaskDeleted: {}, NotifyTaskOverdue: {}, NotifyReminder: {},
	NotifyMessage:         {},
	NotifyCalendarCreated: {}, NotifyCalendarUpdated: {}, NotifyCalendarDeleted: {},
	NotifyTeamStatusCreated: {}, NotifyTeamStatusUpdated: {}, NotifyTeamStatusDeleted: {},
}

// IsValidNotificationType reports whether t is a known notification type.
func IsValidNotificationType(t NotificationType) bool {
	_, ok := allNotificationTypes[t]
	return ok
}

// Notification is a persisted broadcast event addressed to one user.
// It is immutable after insert except for the IsRead flag.
type Notification struct {
	ID              primitive.ObjectID  `bson:"_id" json:"id"`
	UserID          primitive.ObjectID  `bson:"user_id" json:"user_id"`
	Title           string              `bson:"title" json:"title"`
	Message         string              `bson:"message" json:"message"`
	Type            NotificationType    `bson:"type" json:"type"`
	RelatedEntityID *primitive.ObjectID `bson:"related_entity_id,omitempty" json:"related_entity_id,omitempty"`
	IsRead          bool                `bson:"is_read" json:"is_read"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
}
