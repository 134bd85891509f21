// internal/app/realtime/delivery/pipeline.go
// Package delivery orchestrates persist-then-deliver for direct messages and
// notifications. Persistence is authoritative: an operation only reports
// success once the record is stored, and per-connection delivery failures
// after that point are logged and swallowed.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/system/metrics"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// Expected business outcomes. These are ordinary result values, not panics:
// the transport layer maps them to close frames or error events without
// touching registry/router state.
var (
	ErrUnauthorized = errors.New("caller identity does not match claimed actor")
	ErrNotFound     = errors.New("referenced record not found")
	ErrStorage      = errors.New("storage operation failed")
	ErrInvalidInput = errors.New("invalid input")
)

// MessageStore is the persistence contract for direct messages.
type MessageStore interface {
	Create(ctx context.Context, m models.Message) (models.Message, error)
	GetByID(ctx context.Context, id primitive.ObjectID) (models.Message, error)
	MarkRead(ctx context.Context, id primitive.ObjectID) (models.Message, error)
}

// NotificationStore is the persistence contract for notifications.
type NotificationStore interface {
	Create(ctx context.Context, n models.Notification) (models.Notification, error)
}

// Sender pushes one event to one connection. Implementations must not
// block indefinitely; a slow connection is the implementation's problem
// (drop or time out), never the fan-out's.
type Sender interface {
	Send(connID string, evt models.Event) error
}

// TopicIndex resolves a topic to a snapshot of subscribed connection IDs.
type TopicIndex interface {
	MembersOf(topic string) []string
}

// Pipeline is the delivery core shared by the websocket hub, the REST
// handlers, and the ingress consumer.
type Pipeline struct {
	messages      MessageStore
	notifications NotificationStore
	topics        TopicIndex
	sender        Sender
	sanitize      *bluemonday.Policy
	log           *zap.Logger
}

// New constructs a Pipeline.
func New(msgs MessageStore, notifs NotificationStore, topics TopicIndex, sender Sender, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		messages:      msgs,
		notifications: notifs,
		topics:        topics,
		sender:        sender,
		sanitize:      bluemonday.StrictPolicy(),
		log:           logger,
	}
}

// SendDirectMessage persists a message from senderID to receiverID and fans
// it out to every live connection subscribed to either party's personal
// topic, so the sender's other open sessions see the echo. callerID is the
// transport-verified identity; it must equal senderID.
func (p *Pipeline) SendDirectMessage(ctx context.Context, callerID, senderID, receiverID, content string) (models.Message, error) {
	if callerID != senderID {
		return models.Message{}, ErrUnauthorized
	}

	sid, err := primitive.ObjectIDFromHex(senderID)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: sender id %q", ErrInvalidInput, senderID)
	}
	rid, err := primitive.ObjectIDFromHex(receiverID)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: receiver id %q", ErrInvalidInput, receiverID)
	}

	content = strings.TrimSpace(p.sanitize.Sanitize(content))
	if content == "" {
		return models.Message{}, fmt.Errorf("%w: empty message content", ErrInvalidInput)
	}

	msg, err := p.messages.Create(ctx, models.Message{
		SenderID:   sid,
		ReceiverID: rid,
		Content:    content,
	})
	if err != nil {
		// Abort before any delivery attempt; no partial state.
		return models.Message{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	p.fanOutAll(models.Event{Type: models.EventMessage, Payload: msg}, receiverID, senderID)

	return msg, nil
}

// MarkMessageRead flips a message's read flag exactly once and notifies both
// parties' topic members of the change. Marking an already-read message is a
// no-op success.
func (p *Pipeline) MarkMessageRead(ctx context.Context, callerID, messageID string) (models.Message, error) {
	id, err := primitive.ObjectIDFromHex(messageID)
	if err != nil {
		return models.Message{}, fmt.Errorf("%w: message id %q", ErrInvalidInput, messageID)
	}

	msg, err := p.messages.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	// Only the receiver may acknowledge a message.
	if msg.ReceiverID.Hex() != callerID {
		return models.Message{}, ErrUnauthorized
	}

	if !msg.IsRead {
		msg, err = p.messages.MarkRead(ctx, id)
		if err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				return models.Message{}, ErrNotFound
			}
			return models.Message{}, fmt.Errorf("%w: %v", ErrStorage, err)
		}
	}

	p.fanOutAll(models.Event{Type: models.EventMessageRead, Payload: map[string]any{
		"message_id":  msg.ID.Hex(),
		"sender_id":   msg.SenderID.Hex(),
		"receiver_id": msg.ReceiverID.Hex(),
	}}, msg.SenderID.Hex(), msg.ReceiverID.Hex())

	return msg, nil
}

// DispatchNotification persists a notification for userID and delivers it to
// the user's live connections. The persisted event is returned so queue
// consumers can use it as an acknowledgement handle. Offline recipients
// simply get no live delivery; the stored record remains queryable.
func (p *Pipeline) DispatchNotification(ctx context.Context, userID string, title, message string, typ models.NotificationType, relatedEntityID string) (models.Notification, error) {
	uid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return models.Notification{}, fmt.Errorf("%w: user id %q", ErrInvalidInput, userID)
	}
	if !models.IsValidNotificationType(typ) {
		return models.Notification{}, fmt.Errorf("%w: notification type %q", ErrInvalidInput, typ)
	}

	n := models.Notification{
		UserID:  uid,
		Title:   strings.TrimSpace(p.sanitize.Sanitize(title)),
		Message: strings.TrimSpace(p.sanitize.Sanitize(message)),
		Type:    typ,
	}
	if relatedEntityID != "" {
		rid, err := primitive.ObjectIDFromHex(relatedEntityID)
		if err != nil {
			return models.Notification{}, fmt.Errorf("%w: related entity id %q", ErrInvalidInput, relatedEntityID)
		}
		n.RelatedEntityID = &rid
	}

	stored, err := p.notifications.Create(ctx, n)
	if err != nil {
		return models.Notification{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	p.fanOut(userID, models.Event{Type: models.EventNotification, Payload: stored})

	return stored, nil
}

// Typing forwards an ephemeral typing indicator to the receiver's topic
// members. Nothing is persisted and failures are ignored beyond logging.
func (p *Pipeline) Typing(callerID, receiverID string) {
	p.fanOut(receiverID, models.Event{Type: models.EventTyping, Payload: map[string]string{"user_id": callerID}})
}

// StoppedTyping is the counterpart of Typing.
func (p *Pipeline) StoppedTyping(callerID, receiverID string) {
	p.fanOut(receiverID, models.Event{Type: models.EventStopTyping, Payload: map[string]string{"user_id": callerID}})
}

// fanOut pushes evt to every connection subscribed to topic. MembersOf
// returns a snapshot, so no registry or router lock is held while sending.
// Failures are per-connection, best-effort: logged, counted, swallowed.
func (p *Pipeline) fanOut(topic string, evt models.Event) {
	for _, connID := range p.topics.MembersOf(topic) {
		p.deliver(connID, topic, evt)
	}
}

// fanOutAll pushes evt at most once per connection across several topics.
// A connection subscribed to more than one of them (a self-message, where
// sender and receiver topics coincide) still gets a single copy.
func (p *Pipeline) fanOutAll(evt models.Event, topics ...string) {
	seen := make(map[string]struct{})
	for _, topic := range topics {
		for _, connID := range p.topics.MembersOf(topic) {
			if _, dup := seen[connID]; dup {
				continue
			}
			seen[connID] = struct{}{}
			p.deliver(connID, topic, evt)
		}
	}
}

func (p *Pipeline) deliver(connID, topic string, evt models.Event) {
	if err := p.sender.Send(connID, evt); err != nil {
		metrics.DeliveryFailures.Inc()
		p.log.Warn("delivery failed",
			zap.String("conn_id", connID),
			zap.String("topic", topic),
			zap.String("event", evt.Type),
			zap.Error(err))
		return
	}
	metrics.Deliveries.Inc()
}
