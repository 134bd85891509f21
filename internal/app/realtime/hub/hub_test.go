package hub_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/jmharper/taskhub/internal/app/realtime/delivery"
	"github.com/jmharper/taskhub/internal/app/realtime/hub"
	"github.com/jmharper/taskhub/internal/app/realtime/registry"
	"github.com/jmharper/taskhub/internal/app/realtime/router"
	"github.com/jmharper/taskhub/internal/domain/models"
)

type memMessageStore struct {
	mu   sync.Mutex
	byID map[primitive.ObjectID]models.Message
	n    int
}

func (s *memMessageStore) Create(_ context.Context, m models.Message) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byID == nil {
		s.byID = map[primitive.ObjectID]models.Message{}
	}
	s.n++
	m.ID = primitive.NewObjectID()
	m.SentAt = time.Now().UTC().Add(time.Duration(s.n)) // strictly increasing
	s.byID[m.ID] = m
	return m, nil
}

func (s *memMessageStore) GetByID(_ context.Context, id primitive.ObjectID) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return models.Message{}, mongo.ErrNoDocuments
	}
	return m, nil
}

func (s *memMessageStore) MarkRead(_ context.Context, id primitive.ObjectID) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return models.Message{}, mongo.ErrNoDocuments
	}
	m.IsRead = true
	s.byID[id] = m
	return m, nil
}

type memNotificationStore struct{ mu sync.Mutex }

func (s *memNotificationStore) Create(_ context.Context, n models.Notification) (models.Notification, error) {
	n.ID = primitive.NewObjectID()
	n.CreatedAt = time.Now().UTC()
	return n, nil
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// testServer upgrades every request and serves it as the user named in the
// "user" query parameter, standing in for the JWT handshake.
func testServer(t *testing.T) (*hub.Hub, *router.Router, *registry.Registry, *httptest.Server) {
	t.Helper()

	reg := registry.New()
	rt := router.New()
	h := hub.New(reg, rt, zap.NewNop())
	pipe := delivery.New(&memMessageStore{}, &memNotificationStore{}, rt, h, zap.NewNop())
	h.Bind(pipe)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		go h.NewClient(conn, r.URL.Query().Get("user")).Serve()
	}))
	t.Cleanup(srv.Close)
	return h, rt, reg, srv
}

func dial(t *testing.T, srv *httptest.Server, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// readEvent reads frames until one of the wanted types arrives.
func readEvent(t *testing.T, conn *websocket.Conn, want ...string) models.Event {
	t.Helper()
	wanted := map[string]bool{}
	for _, w := range want {
		wanted[w] = true
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var evt models.Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wanted[evt.Type] {
			return evt
		}
	}
}

func TestConnect_RegistersPresenceAndPersonalTopic(t *testing.T) {
	_, rt, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()

	dial(t, srv, u1)

	waitFor(t, "presence", func() bool { return reg.IsOnline(u1) })
	waitFor(t, "personal topic", func() bool { return len(rt.MembersOf(u1)) == 1 })
}

func TestDisconnect_PrunesJoinedTopicsWithoutExplicitLeave(t *testing.T) {
	_, rt, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()

	conn := dial(t, srv, u1)
	waitFor(t, "presence", func() bool { return reg.IsOnline(u1) })

	if err := conn.WriteJSON(map[string]string{"action": "join_topic", "topic": "teamX"}); err != nil {
		t.Fatalf("join_topic: %v", err)
	}
	waitFor(t, "topic join", func() bool { return len(rt.MembersOf("teamX")) == 1 })

	// Abrupt close; no leave frame is ever sent.
	conn.Close()

	waitFor(t, "topic prune", func() bool { return rt.MembersOf("teamX") == nil })
	waitFor(t, "offline", func() bool { return !reg.IsOnline(u1) })
}

func TestDirectMessage_DeliveredAndEchoed(t *testing.T) {
	_, _, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()
	u2 := primitive.NewObjectID().Hex()

	conn1 := dial(t, srv, u1)
	conn2 := dial(t, srv, u2)
	waitFor(t, "both online", func() bool { return reg.IsOnline(u1) && reg.IsOnline(u2) })

	err := conn1.WriteJSON(map[string]string{
		"action":      "send_message",
		"receiver_id": u2,
		"content":     "hello",
	})
	if err != nil {
		t.Fatalf("send_message: %v", err)
	}

	got := readEvent(t, conn2, models.EventMessage)
	payload, _ := json.Marshal(got.Payload)
	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.Content != "hello" || msg.SenderID.Hex() != u1 || msg.ReceiverID.Hex() != u2 || msg.IsRead {
		t.Errorf("delivered message: %+v", msg)
	}

	// Sender's own session sees the echo.
	echo := readEvent(t, conn1, models.EventMessage)
	if echo.Type != models.EventMessage {
		t.Errorf("expected echo on sender connection, got %q", echo.Type)
	}
}

func TestDirectMessage_OrderPreservedOnOneConnection(t *testing.T) {
	_, _, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()
	u2 := primitive.NewObjectID().Hex()

	conn1 := dial(t, srv, u1)
	conn2 := dial(t, srv, u2)
	waitFor(t, "both online", func() bool { return reg.IsOnline(u1) && reg.IsOnline(u2) })

	for _, content := range []string{"M1", "M2"} {
		if err := conn1.WriteJSON(map[string]string{
			"action": "send_message", "receiver_id": u2, "content": content,
		}); err != nil {
			t.Fatalf("send %s: %v", content, err)
		}
	}

	for _, want := range []string{"M1", "M2"} {
		got := readEvent(t, conn2, models.EventMessage)
		payload, _ := json.Marshal(got.Payload)
		var msg models.Message
		json.Unmarshal(payload, &msg)
		if msg.Content != want {
			t.Fatalf("order violated: got %q, want %q", msg.Content, want)
		}
	}
}

func TestMarkRead_BothPartiesNotified(t *testing.T) {
	_, _, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()
	u2 := primitive.NewObjectID().Hex()

	conn1 := dial(t, srv, u1)
	conn2 := dial(t, srv, u2)
	waitFor(t, "both online", func() bool { return reg.IsOnline(u1) && reg.IsOnline(u2) })

	conn1.WriteJSON(map[string]string{"action": "send_message", "receiver_id": u2, "content": "hello"})
	delivered := readEvent(t, conn2, models.EventMessage)
	payload, _ := json.Marshal(delivered.Payload)
	var msg models.Message
	json.Unmarshal(payload, &msg)

	conn2.WriteJSON(map[string]string{"action": "mark_read", "message_id": msg.ID.Hex()})

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		evt := readEvent(t, conn, models.EventMessageRead)
		p, _ := json.Marshal(evt.Payload)
		var body map[string]string
		json.Unmarshal(p, &body)
		if body["message_id"] != msg.ID.Hex() {
			t.Errorf("read event carries %q, want %q", body["message_id"], msg.ID.Hex())
		}
	}
}

func TestSpoofedSender_RejectedWithUnauthorized(t *testing.T) {
	_, _, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()
	u2 := primitive.NewObjectID().Hex()

	conn1 := dial(t, srv, u1)
	waitFor(t, "online", func() bool { return reg.IsOnline(u1) })

	// Claimed sender differs from the connection's verified identity.
	conn1.WriteJSON(map[string]string{
		"action":      "send_message",
		"sender_id":   u2,
		"receiver_id": u1,
		"content":     "spoofed",
	})

	evt := readEvent(t, conn1, models.EventError)
	p, _ := json.Marshal(evt.Payload)
	var body map[string]string
	json.Unmarshal(p, &body)
	if body["kind"] != "unauthorized" {
		t.Errorf("error kind: got %q, want %q", body["kind"], "unauthorized")
	}
}

func TestJoinTopic_ForeignPersonalChannelRejected(t *testing.T) {
	_, rt, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()
	u2 := primitive.NewObjectID().Hex()

	conn1 := dial(t, srv, u1)
	waitFor(t, "online", func() bool { return reg.IsOnline(u1) })

	// u2's personal channel carries their direct messages; u1 must not be
	// able to subscribe to it.
	conn1.WriteJSON(map[string]string{"action": "join_topic", "topic": u2})

	evt := readEvent(t, conn1, models.EventError)
	p, _ := json.Marshal(evt.Payload)
	var body map[string]string
	json.Unmarshal(p, &body)
	if body["kind"] != "unauthorized" {
		t.Errorf("error kind: got %q, want %q", body["kind"], "unauthorized")
	}
	if got := rt.MembersOf(u2); got != nil {
		t.Errorf("foreign channel gained members: %v", got)
	}

	// Re-joining one's own channel and joining named group topics stay fine.
	conn1.WriteJSON(map[string]string{"action": "join_topic", "topic": u1})
	conn1.WriteJSON(map[string]string{"action": "join_topic", "topic": "team-standup"})
	waitFor(t, "group topic join", func() bool { return len(rt.MembersOf("team-standup")) == 1 })
	if got := len(rt.MembersOf(u1)); got != 1 {
		t.Errorf("own channel members: got %d, want 1", got)
	}
}

func TestSend_UnknownConnection(t *testing.T) {
	h, _, _, _ := testServer(t)

	err := h.Send("no-such-conn", models.Event{Type: models.EventOnlineCount})
	if err == nil {
		t.Fatal("expected an error for an unknown connection")
	}
}

func TestOnlineCount_DistinctUsers(t *testing.T) {
	h, _, reg, srv := testServer(t)
	u1 := primitive.NewObjectID().Hex()

	dial(t, srv, u1)
	dial(t, srv, u1) // second session, same user
	waitFor(t, "two connections", func() bool { return h.Connections() == 2 })

	if got := h.OnlineUsers(); got != 1 {
		t.Errorf("OnlineUsers: got %d, want 1", got)
	}
	if !reg.IsOnline(u1) {
		t.Error("expected user online")
	}
}
