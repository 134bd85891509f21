// internal/app/realtime/hub/client.go
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	"github.com/jmharper/taskhub/internal/app/system/timeouts"
	"github.com/jmharper/taskhub/internal/domain/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// Session states. A client only accepts operational frames while Registered.
const (
	stateConnecting = iota
	stateRegistered
	stateClosed
)

// Client is one websocket connection and its session state machine.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	log    *zap.Logger

	stateMu sync.Mutex
	state   int

	closeOnce sync.Once
}

// NewClient wraps an upgraded websocket connection for the identity already
// verified by the transport handler. The client starts in the Connecting
// state; Serve registers it and runs the pumps until disconnect.
func (h *Hub) NewClient(conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		log:    h.log.With(zap.String("user_id", userID)),
	}
}

// ID returns the transport-assigned connection identifier.
func (c *Client) ID() string { return c.id }

// Serve registers the client and blocks pumping frames until the connection
// is gone. Teardown runs exactly once on every exit path.
func (c *Client) Serve() {
	c.hub.attach(c)
	c.setState(stateRegistered)
	c.hub.registerClient(c)

	go c.writePump()
	c.readPump()
}

func (c *Client) setState(s int) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Client) isRegistered() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state == stateRegistered
}

// closeSlow tears the connection down when its send queue is full. The
// writePump exits on the closed connection and runs the shared teardown.
func (c *Client) closeSlow() {
	c.closeOnce.Do(func() {
		c.log.Warn("dropping stalled connection", zap.String("conn_id", c.id))
		c.conn.Close()
	})
}

// readPump consumes client frames until the transport dies, then runs the
// lifecycle teardown. Abrupt disconnects land here the same as clean closes,
// so registry and router state can never leak.
func (c *Client) readPump() {
	defer func() {
		c.setState(stateClosed)
		c.hub.teardown(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read error", zap.Error(err))
			}
			return
		}
		c.handleFrame(data)
	}
}

// writePump drains the ordered send queue onto the wire. One writer per
// connection, so delivery order to this connection matches enqueue order.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// clientFrame is the inbound JSON envelope.
type clientFrame struct {
	Action     string `json:"action"`
	SenderID   string `json:"sender_id,omitempty"`
	ReceiverID string `json:"receiver_id,omitempty"`
	Content    string `json:"content,omitempty"`
	MessageID  string `json:"message_id,omitempty"`
	Topic      string `json:"topic,omitempty"`
}

func (c *Client) handleFrame(data []byte) {
	if !c.isRegistered() {
		c.sendError("unauthorized", "connection is not registered")
		return
	}

	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendError("bad-frame", "malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeouts.Medium())
	defer cancel()

	switch f.Action {
	case "send_message":
		sender := f.SenderID
		if sender == "" {
			sender = c.userID
		}
		if _, err := c.hub.pipe.SendDirectMessage(ctx, c.userID, sender, f.ReceiverID, f.Content); err != nil {
			c.reportError("send_message", err)
		}

	case "mark_read":
		if _, err := c.hub.pipe.MarkMessageRead(ctx, c.userID, f.MessageID); err != nil {
			c.reportError("mark_read", err)
		}

	case "typing":
		c.hub.pipe.Typing(c.userID, f.ReceiverID)

	case "stop_typing":
		c.hub.pipe.StoppedTyping(c.userID, f.ReceiverID)

	case "join_topic":
		if f.Topic == "" {
			c.sendError("bad-frame", "join_topic requires a topic")
			return
		}
		// Personal channels are named by user id. An id-shaped topic that
		// is not the caller's own id is someone else's private channel.
		if _, err := primitive.ObjectIDFromHex(f.Topic); err == nil && f.Topic != c.userID {
			c.sendError("unauthorized", "cannot join another user's channel")
			return
		}
		c.hub.router.Join(c.id, f.Topic)

	case "register":
		// Manual re-join; idempotent, no duplicate broadcast.
		c.hub.registerClient(c)

	case "online_count":
		c.sendEvent(models.Event{Type: models.EventOnlineCount, Payload: map[string]int{
			"users":       c.hub.OnlineUsers(),
			"connections": c.hub.Connections(),
		}})

	default:
		c.sendError("bad-frame", "unknown action "+f.Action)
	}
}

// reportError maps pipeline outcomes onto error events. Unauthorized frames
// additionally get the connection closed with a policy violation, matching
// the transport contract for identity mismatches.
func (c *Client) reportError(action string, err error) {
	switch {
	case errors.Is(err, delivery.ErrUnauthorized):
		c.sendError("unauthorized", action+" rejected: identity mismatch")
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
			time.Now().Add(writeWait))
	case errors.Is(err, delivery.ErrNotFound):
		c.sendError("not-found", action+": record not found")
	case errors.Is(err, delivery.ErrInvalidInput):
		c.sendError("bad-frame", err.Error())
	default:
		// Storage failure: surface "not sent" so the client can retry or
		// fall back to the REST endpoints.
		c.sendError("storage", action+" failed, not persisted")
	}
}

func (c *Client) sendError(kind, detail string) {
	c.sendEvent(models.Event{Type: models.EventError, Payload: map[string]string{
		"kind":   kind,
		"detail": detail,
	}})
}

func (c *Client) sendEvent(evt models.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.closeSlow()
	}
}
