// internal/app/features/teams/handler.go
package teams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/features/shared"
	"github.com/jmharper/taskhub/internal/app/ingress"
	teamstore "github.com/jmharper/taskhub/internal/app/store/teams"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// Notifier enqueues notification events for asynchronous delivery.
type Notifier interface {
	Publish(ctx context.Context, e ingress.Event) error
}

type Handler struct {
	Teams  *teamstore.Store
	Notify Notifier
	Log    *zap.Logger
}

func NewHandler(teams *teamstore.Store, notify Notifier, logger *zap.Logger) *Handler {
	return &Handler{Teams: teams, Notify: notify, Log: logger}
}

type teamRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleCreate creates a team with the caller as its first member.
//
// POST /api/teams
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
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

	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		shared.WriteError(w, http.StatusBadRequest, "name is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	team, err := h.Teams.Create(ctx, models.Team{
		Name:        req.Name,
		Description: req.Description,
		MemberIDs:   []primitive.ObjectID{callerID},
	})
	if err != nil {
		if errors.Is(err, teamstore.ErrDuplicateTeamName) {
			shared.WriteError(w, http.StatusConflict, "a team with this name already exists")
			return
		}
		h.Log.Error("create team failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not create team")
		return
	}

	shared.WriteJSON(w, http.StatusCreated, team)
}

// HandleList returns all teams.
//
// GET /api/teams
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	teams, err := h.Teams.List(ctx)
	if err != nil {
		h.Log.Error("list teams failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not list teams")
		return
	}
	if teams == nil {
		teams = []models.Team{}
	}
	shared.WriteJSON(w, http.StatusOK, teams)
}

// HandleGet fetches one team.
//
// GET /api/teams/{teamID}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := shared.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid team id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	team, err := h.Teams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "team not found")
			return
		}
		h.Log.Error("get team failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not load team")
		return
	}
	shared.WriteJSON(w, http.StatusOK, team)
}

// HandleUpdate updates a team's name and description, then queues a
// team-status-updated notification for every other member.
//
// PUT /api/teams/{teamID}
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := shared.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid team id")
		return
	}

	var req teamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Teams.UpdateInfo(ctx, id, req.Name, req.Description); err != nil {
		if errors.Is(err, teamstore.ErrDuplicateTeamName) {
			shared.WriteError(w, http.StatusConflict, "a team with this name already exists")
			return
		}
		h.Log.Error("update team failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not update team")
		return
	}

	team, err := h.Teams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "team not found")
			return
		}
		h.Log.Error("reload team failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not update team")
		return
	}

	h.notifyMembers(ctx, team, su.ID, models.NotifyTeamStatusUpdated,
		"Team updated", fmt.Sprintf("Team %q was updated", team.Name))

	shared.WriteJSON(w, http.StatusOK, team)
}

// HandleAddMember adds a user to the team.
//
// POST /api/teams/{teamID}/members
func (h *Handler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := shared.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid team id")
		return
	}

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	userID, err := shared.ParseID(req.UserID)
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid user_id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Teams.AddMember(ctx, teamID, userID); err != nil {
		h.Log.Error("add team member failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not add member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemoveMember removes a user from the team.
//
// DELETE /api/teams/{teamID}/members/{userID}
func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	teamID, err := shared.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid team id")
		return
	}
	userID, err := shared.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	if err := h.Teams.RemoveMember(ctx, teamID, userID); err != nil {
		h.Log.Error("remove team member failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not remove member")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete removes a team and queues team-status-deleted for its members.
//
// DELETE /api/teams/{teamID}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	su, ok := sysauth.CurrentUser(r)
	if !ok {
		shared.WriteError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := shared.ParseID(chi.URLParam(r, "teamID"))
	if err != nil {
		shared.WriteError(w, http.StatusBadRequest, "invalid team id")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Long())
	defer cancel()

	team, err := h.Teams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			shared.WriteError(w, http.StatusNotFound, "team not found")
			return
		}
		h.Log.Error("load team for delete failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not delete team")
		return
	}

	deleted, err := h.Teams.Delete(ctx, id)
	if err != nil {
		h.Log.Error("delete team failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not delete team")
		return
	}
	if deleted == 0 {
		shared.WriteError(w, http.StatusNotFound, "team not found")
		return
	}

	h.notifyMembers(ctx, team, su.ID, models.NotifyTeamStatusDeleted,
		"Team deleted", fmt.Sprintf("Team %q was deleted", team.Name))

	w.WriteHeader(http.StatusNoContent)
}

// notifyMembers queues one event per team member, skipping the actor.
func (h *Handler) notifyMembers(ctx context.Context, team models.Team, actorID string, typ models.NotificationType, title, message string) {
	if h.Notify == nil {
		return
	}
	for _, memberID := range team.MemberIDs {
		if memberID.Hex() == actorID {
			continue
		}
		err := h.Notify.Publish(ctx, ingress.Event{
			UserID:          memberID.Hex(),
			Title:           title,
			Message:         message,
			Type:            typ,
			RelatedEntityID: team.ID.Hex(),
		})
		if err != nil {
			h.Log.Warn("queue team notification failed",
				zap.String("user_id", memberID.Hex()),
				zap.Error(err))
		}
	}
}
