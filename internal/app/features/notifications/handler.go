// internal/app/features/notifications/handler.go
package notifications

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/features/shared"
	notificationstore "github.com/jmharper/taskhub/internal/app/store/notifications"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
	"github.com/jmharper/taskhub/internal/domain/models"
)

const defaultListLimit = 50

type Handler struct {
	Notifications *notificationstore.Store
	Log           *zap.Logger
}

func NewHandler(notifications *notificationstore.Store, logger *zap.Logger) *Handler {
	return &Handler{Notifications: notifications, Log: logger}
}

// HandleList returns the caller's notifications, newest first.
//
// GET /api/notifications?limit=50
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	callerID, err := shared.ParseID(su.ID)
	if err != nil {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := int64(defaultListLimit)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			shared.WriteError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	out, err := h.Notifications.ListForUser(ctx, callerID, limit)
	if err != nil {
		h.Log.Error("list notifications failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not list notifications")
		return
	}
	if out == nil {
		out = []models.Notification{}
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

// HandleMarkRead marks one of the caller's notifications as read. Another
// user's notification is a 404, never a hint that it exists.
//
// POST /api/notifications/{notificationID}/read
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	callerID, err := shared.ParseID(su.ID)
	if err != nil {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := shared.ParseID(chi.URLParam(r, "notificationID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid notification id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	n, err := h.Notifications.MarkRead(ctx, id, callerID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "notification not found")
			return
		}
		h.Log.Error("mark notification read failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not mark notification read")
		return
	}
	shared.WriteJSON(w, http.StatusOK, n)
}

// HandleUnreadCount returns how many of the caller's notifications are
// unread.
//
// GET /api/notifications/unread-count
func (h *Handler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	callerID, err := shared.ParseID(su.ID)
	if err != nil {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	count, err := h.Notifications.CountUnread(ctx, callerID)
	if err != nil {
		h.Log.Error("count unread notifications failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not count unread notifications")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int64{"unread": count})
}
