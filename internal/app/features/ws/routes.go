// internal/app/features/ws/routes.go
package ws

import "github.com/go-chi/chi/v5"

// Routes returns the /ws subrouter. Token validation happens inside Serve;
// the standard RequireAuth middleware is bypassed because browser websocket
// clients cannot set an Authorization header.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Serve)
	return r
}
