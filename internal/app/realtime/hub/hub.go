// internal/app/realtime/hub/hub.go
// Package hub owns the live websocket connections. It ties transport
// lifecycle callbacks to the connection registry and the group router, and
// implements the per-connection Send used by the delivery pipeline.
package hub

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	"github.com/jmharper/taskhub/internal/app/realtime/registry"
	"github.com/jmharper/taskhub/internal/app/realtime/router"
	"github.com/jmharper/taskhub/internal/app/system/metrics"
	"github.com/jmharper/taskhub/internal/domain/models"
)

// ErrConnUnknown is returned by Send when the target connection is gone.
// The pipeline treats it like any other per-connection delivery failure.
var ErrConnUnknown = errors.New("connection not registered with hub")

// ErrSendBufferFull is returned when a connection's outbound queue is full.
// The connection is torn down; the fan-out moves on.
var ErrSendBufferFull = errors.New("connection send buffer full")

// Hub tracks clients by connection ID and routes outbound events to their
// send queues. It never holds its lock across a network write; Send only
// enqueues.
type Hub struct {
	registry *registry.Registry
	router   *router.Router
	log      *zap.Logger

	pipe *delivery.Pipeline

	mu      sync.RWMutex
	clients map[string]*Client
}

// New constructs a Hub over the given registry and router. Bind must be
// called with the delivery pipeline before the first connection is accepted;
// the two are constructed in sequence because the pipeline sends through the
// hub and the hub dispatches client frames into the pipeline.
func New(reg *registry.Registry, rt *router.Router, logger *zap.Logger) *Hub {
	return &Hub{
		registry: reg,
		router:   rt,
		log:      logger,
		clients:  make(map[string]*Client),
	}
}

// Bind attaches the delivery pipeline the hub dispatches client frames into.
func (h *Hub) Bind(pipe *delivery.Pipeline) { h.pipe = pipe }

// Send enqueues one event onto a single connection's ordered outbound queue.
// It returns quickly: marshal, non-blocking channel send. A full queue means
// the client has stalled; the connection is closed and the failure reported
// to the caller, which logs and moves on to the next recipient.
func (h *Hub) Send(connID string, evt models.Event) error {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return ErrConnUnknown
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.closeSlow()
		return ErrSendBufferFull
	}
}

// Broadcast enqueues evt to every live connection, best-effort.
func (h *Hub) Broadcast(evt models.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.log.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			c.closeSlow()
		}
	}
}

// OnlineUsers returns the number of distinct users currently online.
func (h *Hub) OnlineUsers() int { return h.registry.OnlineUsers() }

// Connections returns the raw live connection count.
func (h *Hub) Connections() int { return h.registry.Connections() }

// attach makes a client addressable by Send. Called once per connection
// before its pumps start.
func (h *Hub) attach(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

// detach removes the client from the addressable set. Idempotent.
func (h *Hub) detach(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

// registerClient moves a client into the Registered state: presence entry,
// personal-topic subscription, and the one-time "user connected" broadcast.
// Re-registration is idempotent: the registry and router adds are no-ops and
// the broadcast only fires on the offline→online transition.
func (h *Hub) registerClient(c *Client) {
	first := h.registry.Register(c.id, c.userID)
	h.router.Join(c.id, c.userID)

	metrics.OnlineUsers.Set(float64(h.registry.OnlineUsers()))
	metrics.Connections.Set(float64(h.registry.Connections()))

	if first {
		h.Broadcast(models.Event{Type: models.EventUserConnected, Payload: map[string]string{"user_id": c.userID}})
	}
}

// teardown runs on every disconnect path: normal close, transport error,
// write timeout, slow-consumer drop. It is safe to run more than once.
func (h *Hub) teardown(c *Client) {
	h.detach(c)
	h.router.LeaveAll(c.id)
	last := h.registry.Unregister(c.id, c.userID)

	metrics.OnlineUsers.Set(float64(h.registry.OnlineUsers()))
	metrics.Connections.Set(float64(h.registry.Connections()))

	if last {
		h.Broadcast(models.Event{Type: models.EventUserDisconnected, Payload: map[string]string{"user_id": c.userID}})
	}
}
