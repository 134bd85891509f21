// internal/app/features/messages/routes.go
package messages

import "github.com/go-chi/chi/v5"

// Routes returns the /api/messages subrouter. Auth middleware is applied by
// the caller when mounting.
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.HandleSend)
	r.Get("/unread-count", h.HandleUnreadCount)
	r.Get("/conversation/{userID}", h.HandleConversation)
	r.Post("/{messageID}/read", h.HandleMarkRead)
	return r
}
