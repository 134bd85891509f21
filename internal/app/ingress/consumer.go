// internal/app/ingress/consumer.go
package ingress

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	"github.com/jmharper/taskhub/internal/app/system/metrics"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// Dispatcher is the slice of the delivery pipeline the consumer needs.
type Dispatcher interface {
	DispatchNotification(ctx context.Context, userID, title, message string, typ models.NotificationType, relatedEntityID string) (models.Notification, error)
}

// Config controls batching and parallelism.
type Config struct {
	BatchSize   int // max events pulled per round
	Concurrency int // max dispatches in flight at once
	MaxRetries  int // transient-failure retries before an event is terminal
	RetryDelay  time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 250 * time.Millisecond
	}
	return c
}

// Consumer drains a Source in batches and dispatches each event through the
// pipeline. Events for different users, and even two events for the same
// user pulled in one batch, may complete in any relative order; the only
// guarantee is that every pulled event is dispatched and acknowledged.
type Consumer struct {
	source Source
	disp   Dispatcher
	cfg    Config
	log    *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewConsumer builds a Consumer; zero config fields get defaults.
func NewConsumer(source Source, disp Dispatcher, cfg Config, logger *zap.Logger) *Consumer {
	return &Consumer{
		source: source,
		disp:   disp,
		cfg:    cfg.withDefaults(),
		stopCh: make(chan struct{}),
		log:    logger,
	}
}

// Start launches the drain loop.
func (c *Consumer) Start() {
	c.wg.Add(1)
	go c.run()
	c.log.Info("ingress consumer started",
		zap.Int("batch_size", c.cfg.BatchSize),
		zap.Int("concurrency", c.cfg.Concurrency))
}

// Stop signals the loop to finish and waits for the in-flight batch to
// drain. Safe to call once.
func (c *Consumer) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.log.Info("ingress consumer stopped")
}

func (c *Consumer) run() {
	defer c.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-c.stopCh
		cancel()
	}()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		events, err := c.source.Pull(ctx, c.cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("queue pull failed", zap.Error(err))
			select {
			case <-c.stopCh:
				return
			case <-time.After(c.cfg.RetryDelay):
			}
			continue
		}
		if len(events) == 0 {
			continue
		}
		c.processBatch(ctx, events)
	}
}

// processBatch dispatches up to Concurrency events in parallel. A failure in
// one event never aborts its siblings; each event is acked individually once
// its dispatch has completed, successfully or terminally.
func (c *Consumer) processBatch(ctx context.Context, events []Event) {
	sem := make(chan struct{}, c.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, evt := range events {
		wg.Add(1)
		sem <- struct{}{}
		go func(evt Event) {
			defer wg.Done()
			defer func() { <-sem }()

			c.processOne(ctx, evt)

			if err := c.source.Ack(ctx, evt.ID); err != nil && ctx.Err() == nil {
				// The entry stays pending and will be redelivered; the
				// pipeline persisting twice is the at-least-once tradeoff.
				c.log.Warn("ack failed", zap.String("event_id", evt.ID), zap.Error(err))
			}
		}(evt)
	}
	wg.Wait()
}

// processOne dispatches a single event with bounded retries. Validation
// failures are terminal immediately; anything else is treated as transient
// until the retry budget runs out, then logged and dropped from the
// realtime path (the originating system of record still holds the event).
func (c *Consumer) processOne(ctx context.Context, evt Event) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			metrics.IngressEvents.WithLabelValues("retried").Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.cfg.RetryDelay):
			}
		}

		_, err := c.disp.DispatchNotification(ctx, evt.UserID, evt.Title, evt.Message, evt.Type, evt.RelatedEntityID)
		if err == nil {
			metrics.IngressEvents.WithLabelValues("ok").Inc()
			return
		}
		if errors.Is(err, delivery.ErrInvalidInput) {
			metrics.IngressEvents.WithLabelValues("failed").Inc()
			c.log.Error("malformed queue event dropped",
				zap.String("event_id", evt.ID),
				zap.String("user_id", evt.UserID),
				zap.Error(err))
			return
		}
		lastErr = err
	}

	metrics.IngressEvents.WithLabelValues("failed").Inc()
	c.log.Error("queue event failed after retries",
		zap.String("event_id", evt.ID),
		zap.String("user_id", evt.UserID),
		zap.Int("retries", c.cfg.MaxRetries),
		zap.Error(lastErr))
}
