// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/ingress"
	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	"github.com/jmharper/taskhub/internal/app/realtime/hub"
	"github.com/jmharper/taskhub/internal/app/realtime/registry"
	"github.com/jmharper/taskhub/internal/app/realtime/router"
	messagestore "github.com/jmharper/taskhub/internal/app/store/messages"
	notificationstore "github.com/jmharper/taskhub/internal/app/store/notifications"
	taskstore "github.com/jmharper/taskhub/internal/app/store/tasks"
	sysauth "github.com/jmharper/taskhub/internal/app/system/auth"
	"github.com/jmharper/taskhub/internal/app/system/workers"
)

// runtime bundles the long-lived realtime components constructed once in
// Startup, used by BuildHandler, and torn down in Shutdown.
type runtime struct {
	Hub       *hub.Hub
	Pipeline  *delivery.Pipeline
	Registry  *registry.Registry
	Tokens    *sysauth.Service
	Publisher *ingress.Publisher
	Consumer  *ingress.Consumer
	Sweep     *workers.OverdueSweep
}

// rt is populated by Startup before BuildHandler runs; WAFFLE guarantees
// the ordering, so no locking is needed.
var rt runtime

// Startup wires the realtime core: registry and router feed the hub, the
// delivery pipeline persists then fans out through the hub, and the ingress
// consumer drains the Redis notification stream into the pipeline. The
// overdue sweep worker publishes task-overdue events onto that same stream.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	reg := registry.New()
	topics := router.New()
	h := hub.New(reg, topics, logger)

	pipe := delivery.New(
		messagestore.New(deps.MongoDatabase),
		notificationstore.New(deps.MongoDatabase),
		topics,
		h,
		logger,
	)
	h.Bind(pipe)

	source, err := ingress.NewRedisSource(ctx, deps.Redis,
		appCfg.NotifyStream, appCfg.NotifyGroup, appCfg.NotifyConsumer)
	if err != nil {
		return fmt.Errorf("create notification stream source: %w", err)
	}

	consumer := ingress.NewConsumer(source, pipe, ingress.Config{
		BatchSize:   appCfg.NotifyBatchSize,
		Concurrency: appCfg.NotifyConcurrency,
		MaxRetries:  appCfg.NotifyMaxRetries,
		RetryDelay:  appCfg.NotifyRetryDelay,
	}, logger)
	consumer.Start()

	publisher := ingress.NewPublisher(deps.Redis, appCfg.NotifyStream)

	sweep := workers.NewOverdueSweep(
		taskstore.New(deps.MongoDatabase), publisher, logger, appCfg.OverdueSweepInterval)
	sweep.Start()

	rt = runtime{
		Hub:       h,
		Pipeline:  pipe,
		Registry:  reg,
		Tokens:    sysauth.NewService(appCfg.JWTSecret, appCfg.JWTExpiry, logger),
		Publisher: publisher,
		Consumer:  consumer,
		Sweep:     sweep,
	}

	logger.Info("realtime core started",
		zap.String("notify_stream", appCfg.NotifyStream),
		zap.String("notify_group", appCfg.NotifyGroup),
		zap.Int("notify_batch_size", appCfg.NotifyBatchSize),
		zap.Int("notify_concurrency", appCfg.NotifyConcurrency))

	return nil
}
