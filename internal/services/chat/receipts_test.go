package chat

import (
	"context"
	"testing"
	"time"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
	"github.com/tutorlink/go-tutorlink/internal/services"
)

func seenState(t *testing.T, store docstore.Store, room, docID string) bool {
	t.Helper()
	sub, err := store.Subscribe(context.Background(), room, "createdAt", true)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	snap := <-sub.Snapshots()
	for _, doc := range snap.Documents {
		if doc.ID == docID {
			seen, _ := doc.Fields["seenByRecipient"].(bool)
			return seen
		}
	}
	t.Fatalf("document %s not found in %s", docID, room)
	return false
}

func TestMarkIncomingSeenStampsUnseenIncoming(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()

	id, err := store.Append(context.Background(), "u1_u2", map[string]any{
		"senderId":        "u2",
		"recipientId":     "u1",
		"text":            "hello",
		"createdAt":       docstore.ServerTimestamp,
		"seenByRecipient": false,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	u := NewReceiptUpdater(store, DefaultConfig(), &services.NoOpLogger{})
	u.MarkIncomingSeen([]domain.Message{
		{RoomKey: "u1_u2", LocalID: id, SenderID: "u2", RecipientID: "u1"},
	}, "u1")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if seenState(t, store, "u1_u2", id) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("read receipt never written")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestMarkIncomingSeenIgnoresOwnAndSeenMessages(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()

	own, _ := store.Append(context.Background(), "u1_u2", map[string]any{
		"senderId": "u1", "recipientId": "u2", "text": "mine", "seenByRecipient": false,
	})

	u := NewReceiptUpdater(store, DefaultConfig(), &services.NoOpLogger{})
	u.MarkIncomingSeen([]domain.Message{
		{RoomKey: "u1_u2", LocalID: own, SenderID: "u1", RecipientID: "u2"},
		{RoomKey: "u1_u2", LocalID: "already", SenderID: "u2", RecipientID: "u1", SeenByRecipient: true},
	}, "u1")

	// Neither message is addressed to u1 and unseen, so nothing is written.
	time.Sleep(50 * time.Millisecond)
	if seenState(t, store, "u1_u2", own) {
		t.Fatalf("outgoing message must never be marked seen by the sender")
	}
}
