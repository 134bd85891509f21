// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// appConfigKeys defines the configuration keys for TaskHub.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, redis_addr, etc.
//   - Environment variables: TASKHUB_MONGO_URI, TASKHUB_REDIS_ADDR, etc.
//   - Command-line flags: --mongo_uri, --redis_addr, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "taskhub", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// Token auth
	{Name: "jwt_secret", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Bearer token signing secret (must be strong in production)"},
	{Name: "jwt_expiry", Default: "24h", Desc: "Bearer token lifetime (e.g., 24h, 30m)"},

	// Redis / notification queue
	{Name: "redis_addr", Default: "localhost:6379", Desc: "Redis server address (host:port)"},
	{Name: "redis_password", Default: "", Desc: "Redis password (blank for none)"},
	{Name: "notify_stream", Default: "taskhub:notifications", Desc: "Redis stream for notification events"},
	{Name: "notify_group", Default: "taskhub-delivery", Desc: "Redis consumer group for the notification drain"},
	{Name: "notify_consumer", Default: "taskhub-1", Desc: "Consumer name within the group (unique per instance)"},

	// Ingress consumer tuning
	{Name: "notify_batch_size", Default: 16, Desc: "Notification events pulled per batch"},
	{Name: "notify_concurrency", Default: 4, Desc: "Parallel notification dispatches per batch"},
	{Name: "notify_max_retries", Default: 3, Desc: "Transient-failure retries before an event is dropped"},
	{Name: "notify_retry_delay", Default: "250ms", Desc: "Wait between notification dispatch retries"},

	// Background jobs
	{Name: "overdue_sweep_interval", Default: "10m", Desc: "How often to scan for overdue tasks"},

	// Static assets
	{Name: "static_dir", Default: "public", Desc: "Directory of built web client assets (blank disables)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, TASKHUB_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, "TASKHUB", appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		JWTSecret: appValues.String("jwt_secret"),
		JWTExpiry: appValues.Duration("jwt_expiry", 24*time.Hour),

		RedisAddr:      appValues.String("redis_addr"),
		RedisPassword:  appValues.String("redis_password"),
		NotifyStream:   appValues.String("notify_stream"),
		NotifyGroup:    appValues.String("notify_group"),
		NotifyConsumer: appValues.String("notify_consumer"),

		NotifyBatchSize:   appValues.Int("notify_batch_size"),
		NotifyConcurrency: appValues.Int("notify_concurrency"),
		NotifyMaxRetries:  appValues.Int("notify_max_retries"),
		NotifyRetryDelay:  appValues.Duration("notify_retry_delay", 250*time.Millisecond),

		OverdueSweepInterval: appValues.Duration("overdue_sweep_interval", 10*time.Minute),

		StaticDir: appValues.String("static_dir"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// TaskHub validates the MongoDB URI format and the queue settings early,
// before attempting to connect.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if coreCfg.Env == "prod" && appCfg.JWTSecret == "dev-only-change-me-please-0123456789ABCDEF" {
		return fmt.Errorf("jwt_secret must be changed from the development default in production")
	}

	if appCfg.NotifyStream == "" || appCfg.NotifyGroup == "" || appCfg.NotifyConsumer == "" {
		return fmt.Errorf("notify_stream, notify_group, and notify_consumer must all be set")
	}
	if appCfg.NotifyBatchSize < 1 {
		return fmt.Errorf("notify_batch_size must be at least 1, got %d", appCfg.NotifyBatchSize)
	}
	if appCfg.NotifyConcurrency < 1 {
		return fmt.Errorf("notify_concurrency must be at least 1, got %d", appCfg.NotifyConcurrency)
	}
	if appCfg.OverdueSweepInterval < time.Second {
		return fmt.Errorf("overdue_sweep_interval must be at least 1s, got %s", appCfg.OverdueSweepInterval)
	}

	return nil
}
