// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/pantry/fileserver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	authfeature "github.com/jmharper/taskhub/internal/app/features/auth"
	healthfeature "github.com/jmharper/taskhub/internal/app/features/health"
	messagesfeature "github.com/jmharper/taskhub/internal/app/features/messages"
	notificationsfeature "github.com/jmharper/taskhub/internal/app/features/notifications"
	tasksfeature "github.com/jmharper/taskhub/internal/app/features/tasks"
	teamsfeature "github.com/jmharper/taskhub/internal/app/features/teams"
	usersfeature "github.com/jmharper/taskhub/internal/app/features/users"
	wsfeature "github.com/jmharper/taskhub/internal/app/features/ws"
	messagestore "github.com/jmharper/taskhub/internal/app/store/messages"
	notificationstore "github.com/jmharper/taskhub/internal/app/store/notifications"
	taskstore "github.com/jmharper/taskhub/internal/app/store/tasks"
	teamstore "github.com/jmharper/taskhub/internal/app/store/teams"
	userstore "github.com/jmharper/taskhub/internal/app/store/users"
	"github.com/jmharper/taskhub/internal/app/system/ratelimit"
)

// BuildHandler wires the chi router: public auth and health endpoints,
// bearer-token guarded JSON APIs, the websocket endpoint, Prometheus
// metrics, and the static web client.
func BuildHandler(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	users := userstore.New(deps.MongoDatabase)
	teams := teamstore.New(deps.MongoDatabase)
	tasks := taskstore.New(deps.MongoDatabase)
	messages := messagestore.New(deps.MongoDatabase)
	notifications := notificationstore.New(deps.MongoDatabase)

	r.Mount("/health", healthfeature.Routes(
		healthfeature.NewHandler(deps.MongoClient, deps.Redis, logger)))
	r.Handle("/metrics", promhttp.Handler())

	r.Mount("/ws", wsfeature.Routes(
		wsfeature.NewHandler(rt.Hub, rt.Tokens, logger)))

	// Credential endpoints get a per-IP throttle against brute forcing.
	authLimit := ratelimit.New(20, time.Minute)

	r.Route("/api", func(api chi.Router) {
		api.With(authLimit.Middleware).Mount("/auth", authfeature.Routes(
			authfeature.NewHandler(users, rt.Tokens, authLimit, logger), rt.Tokens))

		api.Group(func(priv chi.Router) {
			priv.Use(rt.Tokens.RequireAuth)

			priv.Mount("/users", usersfeature.Routes(
				usersfeature.NewHandler(users, rt.Registry, logger)))
			priv.Mount("/teams", teamsfeature.Routes(
				teamsfeature.NewHandler(teams, rt.Publisher, logger)))
			priv.Mount("/tasks", tasksfeature.Routes(
				tasksfeature.NewHandler(tasks, rt.Publisher, logger)))
			priv.Mount("/messages", messagesfeature.Routes(
				messagesfeature.NewHandler(messages, rt.Pipeline, logger)))
			priv.Mount("/notifications", notificationsfeature.Routes(
				notificationsfeature.NewHandler(notifications, logger)))
		})
	})

	if appCfg.StaticDir != "" {
		r.Handle("/*", fileserver.Handler("/", appCfg.StaticDir))
	}

	return r, nil
}
