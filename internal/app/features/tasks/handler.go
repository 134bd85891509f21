// internal/app/features/tasks/handler.go
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/features/shared"
	"github.com/jmharper/taskhub/internal/app/ingress"
	taskstore "github.com/jmharper/taskhub/internal/app/store/tasks"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// Notifier enqueues notification events for asynchronous delivery.
// *ingress.Publisher satisfies it; tests substitute a recorder.
type Notifier interface {
	Publish(ctx context.Context, e ingress.Event) error
}

type Handler struct {
	Tasks  *taskstore.Store
	Notify Notifier
	Log    *zap.Logger
}

func NewHandler(tasks *taskstore.Store, notify Notifier, logger *zap.Logger) *Handler {
	return &Handler{Tasks: tasks, Notify: notify, Log: logger}
}

type taskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	TeamID      string     `json:"team_id"`
	AssigneeID  string     `json:"assignee_id"`
	Status      string     `json:"status"`
	DueAt       *time.Time `json:"due_at"`
}

// HandleCreate creates a task and queues a task-assigned notification for
// the assignee.
//
// POST /api/tasks
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		shared.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}
	teamID, err := shared.ParseID(req.TeamID)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid team_id")
		return
	}
	creatorID, err := shared.ParseID(su.ID)
	if err != nil {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if req.Status != "" && !models.IsValidTaskStatus(req.Status) {
		shared.WriteError(w, http.StatusBadRequest, "invalid status")
		return
	}

	task := models.Task{
		Title:       req.Title,
		Description: req.Description,
		TeamID:      teamID,
		CreatorID:   creatorID,
		Status:      req.Status,
		DueAt:       req.DueAt,
	}
	if req.AssigneeID != "" {
		assigneeID, err := shared.ParseID(req.AssigneeID)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "invalid assignee_id")
			return
		}
		task.AssigneeID = &assigneeID
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	created, err := h.Tasks.Create(ctx, task)
	if err != nil {
		h.Log.Error("create task failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not create task")
		return
	}

	if created.AssigneeID != nil && *created.AssigneeID != creatorID {
		h.queueNotification(ctx, created.AssigneeID.Hex(), models.NotifyTaskAssigned,
			"Task assigned", fmt.Sprintf("You were assigned %q", created.Title), created.ID.Hex())
	}

	shared.WriteJSON(w, http.StatusCreated, created)
}

// HandleGet fetches one task.
//
// GET /api/tasks/{taskID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	task, err := h.Tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Log.Error("get task failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not load task")
		return
	}

	shared.WriteJSON(w, http.StatusOK, task)
}

// HandleList returns tasks filtered by team_id or assignee_id.
//
// GET /api/tasks?team_id=… | GET /api/tasks?assignee_id=…
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	var (
		out []models.Task
		err error
	)
	switch {
	case r.URL.Query().Get("team_id") != "":
		var teamID primitive.ObjectID
		if teamID, err = shared.ParseID(r.URL.Query().Get("team_id")); err == nil {
			out, err = h.Tasks.ListByTeam(ctx, teamID)
		}
	case r.URL.Query().Get("assignee_id") != "":
		var userID primitive.ObjectID
		if userID, err = shared.ParseID(r.URL.Query().Get("assignee_id")); err == nil {
			out, err = h.Tasks.ListByAssignee(ctx, userID)
		}
	default:
		shared.WriteError(w, http.StatusBadRequest, "team_id or assignee_id query parameter is required")
		return
	}
	if err != nil {
		h.Log.Error("list tasks failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not list tasks")
		return
	}
	if out == nil {
		out = []models.Task{}
	}

	shared.WriteJSON(w, http.StatusOK, out)
}

// HandleUpdate applies field changes to a task and queues task-updated (or
// task-completed when status moves to done) for the assignee.
//
// PUT /api/tasks/{taskID}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := shared.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	set := bson.M{}
	if t := strings.TrimSpace(req.Title); t != "" {
		set["title"] = t
	}
	if req.Description != "" {
		set["description"] = req.Description
	}
	if req.Status != "" {
		if !models.IsValidTaskStatus(req.Status) {
			shared.WriteError(w, http.StatusBadRequest, "invalid status")
			return
		}
		set["status"] = req.Status
	}
	if req.AssigneeID != "" {
		assigneeID, err := shared.ParseID(req.AssigneeID)
		if err != nil {
			shared.WriteError(w, http.StatusBadRequest, "invalid assignee_id")
			return
		}
		set["assignee_id"] = assigneeID
	}
	if req.DueAt != nil {
		set["due_at"] = *req.DueAt
	}
	if len(set) == 0 {
		shared.WriteError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	updated, err := h.Tasks.Update(ctx, id, set)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Log.Error("update task failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not update task")
		return
	}

	if updated.AssigneeID != nil && updated.AssigneeID.Hex() != su.ID {
		typ := models.NotifyTaskUpdated
		title := "Task updated"
		if updated.Status == models.TaskDone {
			typ = models.NotifyTaskCompleted
			title = "Task completed"
		}
		h.queueNotification(ctx, updated.AssigneeID.Hex(), typ,
			title, fmt.Sprintf("%q was updated", updated.Title), updated.ID.Hex())
	}

	shared.WriteJSON(w, http.StatusOK, updated)
}

// HandleDelete removes a task and queues task-deleted for the assignee.
//
// DELETE /api/tasks/{taskID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := shared.ParseID(chi.URLParam(r, "taskID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	// Load first so we still know the assignee after the delete.
	task, err := h.Tasks.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "task not found")
			return
		}
		h.Log.Error("load task for delete failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not delete task")
		return
	}

	deleted, err := h.Tasks.Delete(ctx, id)
	if err != nil {
		h.Log.Error("delete task failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not delete task")
		return
	}
	if deleted == 0 {
		shared.WriteError(w, http.StatusNotFound, "task not found")
		return
	}

	if task.AssigneeID != nil && task.AssigneeID.Hex() != su.ID {
		h.queueNotification(ctx, task.AssigneeID.Hex(), models.NotifyTaskDeleted,
			"Task deleted", fmt.Sprintf("%q was deleted", task.Title), task.ID.Hex())
	}

	w.WriteHeader(http.StatusNoContent)
}

// queueNotification publishes to the notification stream. Queue failures are
// logged, not surfaced: the task write already succeeded.
func (h *Handler) queueNotification(ctx context.Context, userID string, typ models.NotificationType, title, message, relatedID string) {
	if h.Notify == nil {
		return
	}
	err := h.Notify.Publish(ctx, ingress.Event{
		UserID:          userID,
		Title:           title,
		Message:         message,
		Type:            typ,
		RelatedEntityID: relatedID,
	})
	if err != nil {
		h.Log.Warn("queue notification failed",
			zap.String("user_id", userID),
			zap.String("type", string(typ)),
			zap.Error(err))
	}
}
