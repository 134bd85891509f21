// internal/app/ingress/queue.go
// Package ingress drains the inbound notification work queue and hands each
// event to the delivery pipeline with bounded concurrency.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmharper/taskhub/internal/domain/models"
)

// Event is one inbound notification request pulled off the work queue.
// ID is the queue-assigned entry id used for acknowledgement.
type Event struct {
	ID              string
	UserID          string
	Title           string
	Message         string
	Type            models.NotificationType
	RelatedEntityID string
}

// Source is the work-queue contract: an at-least-once, ordered channel of
// notification requests. Pull blocks up to the implementation's block
// window and returns at most max events; Ack removes delivered entries.
type Source interface {
	Pull(ctx context.Context, max int) ([]Event, error)
	Ack(ctx context.Context, ids ...string) error
}

// Stream field names used on the Redis wire.
const (
	fieldUserID  = "user_id"
	fieldTitle   = "title"
	fieldMessage = "message"
	fieldType    = "type"
	fieldRelated = "related_entity_id"
)

// pullBlock bounds how long Pull waits on an empty stream, which also
// bounds shutdown latency.
const pullBlock = 5 * time.Second

// RedisSource reads notification requests from a Redis Stream through a
// consumer group, so multiple taskhub instances can share one queue with
// at-least-once semantics.
type RedisSource struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
}

// NewRedisSource creates the consumer group if it does not exist yet and
// returns a Source over it. An already-existing group is not an error.
func NewRedisSource(ctx context.Context, rdb *redis.Client, stream, group, consumer string) (*RedisSource, error) {
	err := rdb.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !isBusyGroup(err) {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &RedisSource{rdb: rdb, stream: stream, group: group, consumer: consumer}, nil
}

func isBusyGroup(err error) bool {
	// XGROUP CREATE returns BUSYGROUP when the group already exists.
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

// Pull reads up to max pending entries for this consumer, blocking briefly
// when the stream is empty.
func (s *RedisSource) Pull(ctx context.Context, max int) ([]Event, error) {
	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    s.group,
		Consumer: s.consumer,
		Streams:  []string{s.stream, ">"},
		Count:    int64(max),
		Block:    pullBlock,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // block window elapsed with nothing to read
		}
		return nil, err
	}

	var events []Event
	for _, stream := range res {
		for _, entry := range stream.Messages {
			events = append(events, eventFromValues(entry.ID, entry.Values))
		}
	}
	return events, nil
}

// Ack removes entries from the pending list once dispatch has completed,
// successfully or terminally.
func (s *RedisSource) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.rdb.XAck(ctx, s.stream, s.group, ids...).Err()
}

func eventFromValues(id string, values map[string]any) Event {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}
	return Event{
		ID:              id,
		UserID:          str(fieldUserID),
		Title:           str(fieldTitle),
		Message:         str(fieldMessage),
		Type:            models.NotificationType(str(fieldType)),
		RelatedEntityID: str(fieldRelated),
	}
}

// Publisher enqueues notification requests onto the same stream the
// consumer drains. The REST task handlers publish through this instead of
// calling the pipeline directly, so bursts are absorbed by the queue.
type Publisher struct {
	rdb    *redis.Client
	stream string
}

// NewPublisher returns a Publisher for the given stream.
func NewPublisher(rdb *redis.Client, stream string) *Publisher {
	return &Publisher{rdb: rdb, stream: stream}
}

// Publish appends one notification request to the stream.
func (p *Publisher) Publish(ctx context.Context, e Event) error {
	values := map[string]any{
		fieldUserID:  e.UserID,
		fieldTitle:   e.Title,
		fieldMessage: e.Message,
		fieldType:    string(e.Type),
	}
	if e.RelatedEntityID != "" {
		values[fieldRelated] = e.RelatedEntityID
	}
	return p.rdb.XAdd(ctx, &redis.XAddArgs{Stream: p.stream, Values: values}).Err()
}
