// internal/app/features/tasks/routes.go
package tasks

import "github.com/go-chi/chi/v5"

// Routes returns the /api/tasks subrouter. Auth middleware is applied by the
// caller when mounting.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Get("/{taskID}", h.HandleGet)
	r.Put("/{taskID}", h.HandleUpdate)
	r.Delete("/{taskID}", h.HandleDelete)
	return r
}
