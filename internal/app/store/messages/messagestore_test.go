// internal/app/store/messages/messagestore_test.go
package messagestore_test

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	messagestore "github.com/jmharper/taskhub/internal/app/store/messages"
	"github.com/jmharper/taskhub/internal/domain/models"
	"github.com/jmharper/taskhub/internal/testutil"
)

func TestCreateAssignsIDAndUnread(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := messagestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	m, err := store.Create(ctx, models.Message{
		SenderID:   primitive.NewObjectID(),
		ReceiverID: primitive.NewObjectID(),
		Content:    "hello",
		IsRead:     true, // must be ignored
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID.IsZero() {
		t.Error("Create should assign an id")
	}
	if m.IsRead {
		t.Error("new messages must start unread")
	}
	if m.SentAt.IsZero() {
		t.Error("Create should stamp sent_at")
	}
}

func TestSentAtStrictlyIncreasingPerSender(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := messagestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sender := primitive.NewObjectID()
	receiver := primitive.NewObjectID()

	var prev models.Message
	for i := 0; i < 10; i++ {
		m, err := store.Create(ctx, models.Message{SenderID: sender, ReceiverID: receiver, Content: "x"})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
		if i > 0 && !m.SentAt.After(prev.SentAt) {
			t.Fatalf("message %d sent_at %v not after previous %v", i, m.SentAt, prev.SentAt)
		}
		prev = m
	}
}

func TestConversationOldestFirstBothDirections(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := messagestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	alice := primitive.NewObjectID()
	bob := primitive.NewObjectID()
	carol := primitive.NewObjectID()

	for _, m := range []models.Message{
		{SenderID: alice, ReceiverID: bob, Content: "hi bob"},
		{SenderID: bob, ReceiverID: alice, Content: "hi alice"},
		{SenderID: alice, ReceiverID: carol, Content: "hi carol"},
	} {
		if _, err := store.Create(ctx, m); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	conv, err := store.Conversation(ctx, alice, bob, 0)
	if err != nil {
		t.Fatalf("Conversation: %v", err)
	}
	if len(conv) != 2 {
		t.Fatalf("got %d messages, want 2", len(conv))
	}
	if conv[0].Content != "hi bob" || conv[1].Content != "hi alice" {
		t.Errorf("unexpected order: %q then %q", conv[0].Content, conv[1].Content)
	}
}

func TestMarkReadAndCountUnread(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := messagestore.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	sender := primitive.NewObjectID()
	receiver := primitive.NewObjectID()

	m1, err := store.Create(ctx, models.Message{SenderID: sender, ReceiverID: receiver, Content: "one"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := store.Create(ctx, models.Message{SenderID: sender, ReceiverID: receiver, Content: "two"}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	n, err := store.CountUnread(ctx, receiver)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if n != 2 {
		t.Errorf("unread = %d, want 2", n)
	}

	read, err := store.MarkRead(ctx, m1.ID)
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !read.IsRead {
		t.Error("MarkRead should return the updated document")
	}

	n, err = store.CountUnread(ctx, receiver)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if n != 1 {
		t.Errorf("unread after MarkRead = %d, want 1", n)
	}

	if _, err := store.MarkRead(ctx, primitive.NewObjectID()); !errors.Is(err, mongo.ErrNoDocuments) {
		t.Errorf("unknown id: got %v, want mongo.ErrNoDocuments", err)
	}
}
