// internal/app/features/auth/routes.go
package auth

import (
	"github.com/go-chi/chi/v5"

	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
)

// Routes returns the /api/auth subrouter. Register and login are public;
// /me requires a valid token.
func Routes(h *Handler, tokens *sysauth.Service) chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.HandleRegister)
	r.Post("/login", h.HandleLogin)
	r.With(tokens.RequireAuth).Get("/me", h.HandleMe)
	return r
}
