// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig handles
// framework-level settings (ports, TLS, logging, CORS); AppConfig is
// everything specific to TaskHub.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// Token auth configuration
	JWTSecret string        // Secret for signing bearer tokens (must be strong in production)
	JWTExpiry time.Duration // Token lifetime (e.g., 24h)

	// Redis / notification queue configuration
	RedisAddr      string // host:port of the Redis server
	RedisPassword  string // blank means no auth
	NotifyStream   string // Redis stream the producers publish notification events to
	NotifyGroup    string // consumer group name for the drain loop
	NotifyConsumer string // consumer name within the group (unique per instance)

	// Ingress consumer tuning
	NotifyBatchSize   int           // events pulled per batch
	NotifyConcurrency int           // parallel dispatches per batch
	NotifyMaxRetries  int           // transient-failure retries before an event is dropped
	NotifyRetryDelay  time.Duration // wait between retries

	// Background jobs
	OverdueSweepInterval time.Duration // how often to scan for overdue tasks

	// Static assets (the built web client)
	StaticDir string // directory served at /; blank disables static serving
}
