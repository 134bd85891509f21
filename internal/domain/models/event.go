// internal/domain/models/event.go
package models

// Event is the wire envelope for everything pushed to a websocket client.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Event types pushed to clients.
const (
	EventMessage          = "message"
	EventMessageRead      = "message-read"
	EventNotification     = "notification"
	EventTyping           = "typing"
	EventStopTyping       = "stop-typing"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventOnlineCount      = "online-count"
	EventError            = "error"
)
