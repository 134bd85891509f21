// internal/app/features/users/handler.go
package users

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/features/shared"
	"github.com/jmharper/taskhub/internal/app/realtime/registry"
	userstore "github.com/jmharper/taskhub/internal/app/store/users"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
)

type Handler struct {
	Users    *userstore.Store
	Presence *registry.Registry
	Log      *zap.Logger
}

func NewHandler(users *userstore.Store, presence *registry.Registry, logger *zap.Logger) *Handler {
	return &Handler{Users: users, Presence: presence, Log: logger}
}

// userView is a User decorated with live presence.
type userView struct {
	ID       string `json:"id"`
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Online   bool   `json:"online"`
}

// HandleList returns every user with an online flag, for assignee and
// message-recipient pickers.
//
// GET /api/users
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Medium())
	defer cancel()

	users, err := h.Users.List(ctx)
	if err != nil {
		h.Log.Error("list users failed", zap.Error(err))
		shared.WriteError(w, http.StatusInternalServerError, "could not list users")
		return
	}

	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{
			ID:       u.ID.Hex(),
			FullName: u.FullName,
			Email:    u.Email,
			Role:     u.Role,
			Online:   h.Presence != nil && h.Presence.IsOnline(u.ID.Hex()),
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

// HandleOnlineCount returns current presence numbers.
//
// GET /api/users/online-count
func (h *Handler) HandleOnlineCount(w http.ResponseWriter, r *http.Request) {
	var users, conns int
	if h.Presence != nil {
		users = h.Presence.OnlineUsers()
		conns = h.Presence.Connections()
	}
	shared.WriteJSON(w, http.StatusOK, map[string]int{
		"users":       users,
		"connections": conns,
	})
}
