// internal/app/features/notifications/routes.go
package notifications

import "github.com/go-chi/chi/v5"

// Routes returns the /api/notifications subrouter. Auth middleware is
// applied by the caller when mounting.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.HandleList)
	r.Get("/unread-count", h.HandleUnreadCount)
	r.Post("/{notificationID}/read", h.HandleMarkRead)
	return r
}
