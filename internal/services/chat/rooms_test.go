package chat

import (
	"errors"
	"testing"
)

func TestResolveConversationCanonicalSorted(t *testing.T) {
	conv, err := ResolveConversation("zoe", "adam")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.Canonical != "adam_zoe" {
		t.Fatalf("expected canonical adam_zoe, got %s", conv.Canonical)
	}
	if len(conv.Legacy) != 1 || conv.Legacy[0] != "zoe_adam" {
		t.Fatalf("expected legacy [zoe_adam], got %v", conv.Legacy)
	}
}

func TestResolveConversationAlreadySorted(t *testing.T) {
	conv, err := ResolveConversation("adam", "zoe")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if conv.Canonical != "adam_zoe" {
		t.Fatalf("expected canonical adam_zoe, got %s", conv.Canonical)
	}
	// The sorted concatenation equals the canonical key and must be deduped.
	if len(conv.Legacy) != 1 || conv.Legacy[0] != "zoe_adam" {
		t.Fatalf("expected legacy [zoe_adam], got %v", conv.Legacy)
	}
}

func TestResolveConversationRoomsCanonicalFirst(t *testing.T) {
	conv, _ := ResolveConversation("u2", "u1")
	rooms := conv.Rooms()
	if rooms[0] != conv.Canonical {
		t.Fatalf("canonical room must come first, got %v", rooms)
	}
	if len(rooms) != 2 {
		t.Fatalf("expected 2 rooms, got %v", rooms)
	}
}

func TestResolveConversationRejectsBadParticipants(t *testing.T) {
	cases := [][2]string{
		{"", "u2"},
		{"u1", ""},
		{"  ", "u2"},
		{"u1", "u1"},
		{" u1 ", "u1"},
	}
	for _, c := range cases {
		_, err := ResolveConversation(c[0], c[1])
		if err == nil {
			t.Fatalf("expected error for %q/%q", c[0], c[1])
		}
		var chatErr *ChatError
		if !errors.As(err, &chatErr) || chatErr.Type != ErrTypeValidation {
			t.Fatalf("expected validation error for %q/%q, got %v", c[0], c[1], err)
		}
	}
}
