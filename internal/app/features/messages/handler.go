// internal/app/features/messages/handler.go
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/features/shared"
	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	messagestore "github.com/jmharper/taskhub/internal/app/store/messages"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
	"github.com/jmharper/taskhub/internal/domain/models"
)

const defaultHistoryLimit = 100

type Handler struct {
	Messages *messagestore.Store
	Pipe     *delivery.Pipeline
	Log      *zap.Logger
}

func NewHandler(messages *messagestore.Store, pipe *delivery.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{Messages: messages, Pipe: pipe, Log: logger}
}

// HandleSend sends a direct message through the same pipeline the websocket
// path uses: persist first, then fan out to the receiver's and sender's
// connections.
//
// POST /api/messages
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		ReceiverID string `json:"receiver_id"`
		Content    string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msg, err := h.Pipe.SendDirectMessage(ctx, su.ID, su.ID, req.ReceiverID, req.Content)
	if err != nil {
		h.writePipelineError(w, err, "could not send message")
		return
	}
	shared.WriteJSON(w, http.StatusCreated, msg)
}

// HandleConversation returns the message history between the caller and
// another user, oldest first.
//
// GET /api/messages/conversation/{userID}?limit=50
func (h *Handler) HandleConversation(w http.ResponseWriter, r *http.Request) {
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
	otherID, err := shared.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	limit := int64(defaultHistoryLimit)
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

	msgs, err := h.Messages.Conversation(ctx, callerID, otherID, limit)
	if err != nil {
		h.Log.Error("load conversation failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	shared.WriteJSON(w, http.StatusOK, msgs)
}

// HandleMarkRead acknowledges one message as read. Only the receiver may do
// this; both parties' connections are notified.
//
// POST /api/messages/{messageID}/read
func (h *Handler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	msg, err := h.Pipe.MarkMessageRead(ctx, su.ID, chi.URLParam(r, "messageID"))
	if err != nil {
		h.writePipelineError(w, err, "could not mark message read")
		return
	}
	shared.WriteJSON(w, http.StatusOK, msg)
}

// HandleUnreadCount returns how many messages addressed to the caller are
// unread.
//
// GET /api/messages/unread-count
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

	count, err := h.Messages.CountUnread(ctx, callerID)
	if err != nil {
		h.Log.Error("count unread messages failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not count unread messages")
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int64{"unread": count})
}

// writePipelineError maps pipeline sentinels onto HTTP statuses.
func (h *Handler) writePipelineError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, delivery.ErrUnauthorized):
		shared.WriteError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, delivery.ErrNotFound):
		shared.WriteError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, delivery.ErrInvalidInput):
		shared.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		h.Log.Error("message pipeline error", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, fallback)
	}
}
