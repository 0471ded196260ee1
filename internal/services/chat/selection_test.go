package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
	"github.com/tutorlink/go-tutorlink/internal/services"
)

func newTestController(t *testing.T, store docstore.Store, lookup func(string) (domain.Message, bool)) *Controller {
	t.Helper()
	if lookup == nil {
		lookup = func(string) (domain.Message, bool) { return domain.Message{}, false }
	}
	return NewController(store, lookup, DefaultConfig(), &services.NoOpLogger{})
}

func TestToggleEntersAndLeavesSelectionMode(t *testing.T) {
	c := newTestController(t, docstore.NewMemoryStore(), nil)

	if c.Selecting() {
		t.Fatalf("controller must start idle")
	}
	if !c.Toggle("r:a") {
		t.Fatalf("first toggle must enter selection mode")
	}
	c.Toggle("r:b")
	if c.Count() != 2 {
		t.Fatalf("expected 2 selected, got %d", c.Count())
	}

	c.Toggle("r:a")
	if c.Count() != 1 || !c.Selecting() {
		t.Fatalf("removing one of two must stay in selection mode")
	}
	if c.Toggle("r:b") {
		t.Fatalf("removing the last selection must leave selection mode")
	}
	if c.Selecting() || c.Count() != 0 {
		t.Fatalf("controller must be idle again")
	}
}

func TestCancelClearsSelection(t *testing.T) {
	c := newTestController(t, docstore.NewMemoryStore(), nil)
	c.Toggle("r:a")
	c.Toggle("r:b")

	c.Cancel()
	if c.Selecting() || c.Count() != 0 {
		t.Fatalf("cancel must clear everything")
	}
}

func TestDeleteForMeAddsViewerToDeletedBy(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	id := seedMessage(t, store, "u1_u2", "u2", "hide me")

	c := newTestController(t, store, nil)
	c.Toggle("u1_u2:" + id)

	result, err := c.DeleteForMe(ctx, "u1")
	if err != nil {
		t.Fatalf("delete for me: %v", err)
	}
	if result.Requested != 1 || result.Succeeded != 1 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if c.Selecting() || c.Count() != 0 {
		t.Fatalf("selection must be cleared after the batch")
	}

	sub, err := store.Subscribe(ctx, "u1_u2", "createdAt", true)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	snap := <-sub.Snapshots()
	deleted, _ := snap.Documents[0].Fields["deletedBy"].([]string)
	if len(deleted) != 1 || deleted[0] != "u1" {
		t.Fatalf("viewer not recorded in deletedBy: %v", snap.Documents[0].Fields)
	}
}

func TestDeleteForMeAggregatesFailures(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	good := seedMessage(t, store, "u1_u2", "u2", "real")

	c := newTestController(t, store, nil)
	c.Toggle("u1_u2:" + good)
	c.Toggle("u1_u2:missing-doc")

	result, err := c.DeleteForMe(ctx, "u1")
	if err != nil {
		t.Fatalf("a failing message must not abort the batch: %v", err)
	}
	if result.Requested != 2 || result.Succeeded != 1 || len(result.Failed) != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if result.Failed[0].CompositeID != "u1_u2:missing-doc" {
		t.Fatalf("wrong failure recorded: %+v", result.Failed[0])
	}
}

func TestDeleteForEveryonePartitionsByOwnership(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	mine := seedMessage(t, store, "u1_u2", "u1", "my message")
	theirs := seedMessage(t, store, "u1_u2", "u2", "their message")

	byID := map[string]domain.Message{
		"u1_u2:" + mine:   {RoomKey: "u1_u2", LocalID: mine, SenderID: "u1"},
		"u1_u2:" + theirs: {RoomKey: "u1_u2", LocalID: theirs, SenderID: "u2"},
	}
	lookup := func(id string) (domain.Message, bool) {
		m, ok := byID[id]
		return m, ok
	}

	c := newTestController(t, store, lookup)
	c.Toggle("u1_u2:" + mine)
	c.Toggle("u1_u2:" + theirs)

	outcome, err := c.DeleteForEveryone(ctx, "u1")
	if err != nil {
		t.Fatalf("delete for everyone: %v", err)
	}
	if outcome.Everyone.Succeeded != 1 || outcome.ForMe.Succeeded != 1 || outcome.FellBackEntirely {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	sub, _ := store.Subscribe(ctx, "u1_u2", "createdAt", true)
	defer sub.Close()
	snap := <-sub.Snapshots()
	for _, doc := range snap.Documents {
		switch doc.ID {
		case mine:
			if doc.Fields["text"] != DeletedPlaceholder || doc.Fields["deletedForEveryone"] != true {
				t.Fatalf("own message not tombstoned: %v", doc.Fields)
			}
			if _, ok := docstore.TimestampValue(doc.Fields["deletedAt"]); !ok {
				t.Fatalf("tombstone missing deletion time: %v", doc.Fields)
			}
		case theirs:
			if doc.Fields["text"] != "their message" {
				t.Fatalf("foreign message text must be untouched: %v", doc.Fields)
			}
			deleted, _ := doc.Fields["deletedBy"].([]string)
			if len(deleted) != 1 || deleted[0] != "u1" {
				t.Fatalf("foreign message not hidden for caller: %v", doc.Fields)
			}
		}
	}
}

func TestDeleteForEveryoneFallsBackEntirely(t *testing.T) {
	store := docstore.NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	a := seedMessage(t, store, "u1_u2", "u2", "one")
	b := seedMessage(t, store, "u1_u2", "u2", "two")

	lookup := func(id string) (domain.Message, bool) {
		return domain.Message{SenderID: "u2"}, true
	}

	c := newTestController(t, store, lookup)
	c.Toggle("u1_u2:" + a)
	c.Toggle("u1_u2:" + b)

	outcome, err := c.DeleteForEveryone(ctx, "u1")
	if err != nil {
		t.Fatalf("delete for everyone: %v", err)
	}
	if !outcome.FellBackEntirely {
		t.Fatalf("expected an entirely fallen back outcome, got %+v", outcome)
	}
	if outcome.Everyone.Requested != 0 || outcome.ForMe.Succeeded != 2 {
		t.Fatalf("unexpected outcome %+v", outcome)
	}

	summary := outcome.Summary()
	if !strings.Contains(summary, "0 of 2") || !strings.Contains(summary, "none of the selected messages were yours") {
		t.Fatalf("summary must explain the fallback, got %q", summary)
	}
}

func TestDeleteForEveryoneSummary(t *testing.T) {
	outcome := DeleteOutcome{
		Everyone: BatchResult{Requested: 2, Succeeded: 2},
		ForMe:    BatchResult{Requested: 1, Succeeded: 1},
	}
	want := "deleted for everyone: 2 of 2; deleted for me: 1 of 1"
	if got := outcome.Summary(); got != want {
		t.Fatalf("summary %q, want %q", got, want)
	}
}

func TestDeleteRequiresViewer(t *testing.T) {
	c := newTestController(t, docstore.NewMemoryStore(), nil)
	if _, err := c.DeleteForMe(context.Background(), ""); err == nil {
		t.Fatalf("missing viewer must fail")
	}
	if _, err := c.DeleteForEveryone(context.Background(), ""); err == nil {
		t.Fatalf("missing viewer must fail")
	}
}
