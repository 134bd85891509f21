// internal/app/features/teams/routes.go
package teams

import "github.com/go-chi/chi/v5"

// Routes returns the /api/teams subrouter. Auth middleware is applied by the
// caller when mounting.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/{teamID}", h.HandleGet)
	r.Put("/{teamID}", h.HandleUpdate)
	r.Delete("/{teamID}", h.HandleDelete)
	r.Post("/{teamID}/members", h.HandleAddMember)
	r.Delete("/{teamID}/members/{userID}", h.HandleRemoveMember)
	return r
}
