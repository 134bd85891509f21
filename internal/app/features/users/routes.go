// internal/app/features/users/routes.go
package users

import "github.com/go-chi/chi/v5"

// Routes returns the /api/users subrouter. Auth middleware is applied by the
// caller when mounting.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Get("/online-count", h.HandleOnlineCount)
	return r
}
