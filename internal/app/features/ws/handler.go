// internal/app/features/ws/handler.go
package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/realtime/hub"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
)

// Handler upgrades authenticated requests to websocket sessions on the hub.
type Handler struct {
	Hub      *hub.Hub
	Tokens   *sysauth.Service
	Log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewHandler(h *hub.Hub, tokens *sysauth.Service, logger *zap.Logger) *Handler {
	return &Handler{
		Hub:    h,
		Tokens: tokens,
		Log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The API is token-authenticated, not cookie-authenticated, so
			// cross-origin upgrades carry no ambient credentials.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Serve handles GET /ws?token=…
//
// The token is checked before the upgrade so an unauthenticated caller gets
// a plain 401 rather than a dangling websocket.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	token, err := sysauth.TokenFromRequest(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	user, err := h.Tokens.Validate(token)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.Log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	h.Log.Info("websocket session opened", zap.String("user_id", user.ID))
	h.Hub.NewClient(conn, user.ID).Serve()
}
