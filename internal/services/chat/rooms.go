// File: internal/services/chat/rooms.go
package chat

import (
	"strings"
)

// RoomKey identifies one physical message collection in the store.
type RoomKey string

// GlobalRoomKey is the single fixed room backing the global chat screen.
const GlobalRoomKey RoomKey = "global_chat"

// Conversation wraps the physical rooms that make up one logical one-to-one
// thread: the canonical room new messages are written to, plus any legacy
// rooms kept for backward-compatible reads. Resolved once per screen mount
// and immutable afterwards.
type Conversation struct {
	Canonical RoomKey
	Legacy    []RoomKey
}

// Rooms returns every room to read from, canonical first.
func (c Conversation) Rooms() []RoomKey {
	return append([]RoomKey{c.Canonical}, c.Legacy...)
}

// ResolveConversation computes the room set for two participants. The
// canonical key joins the sorted identifiers; the unsorted concatenations
// are kept as legacy read-only keys, deduplicated against the canonical one.
// Empty or equal identifiers are a caller bug and fail fast.
func ResolveConversation(participantA, participantB string) (Conversation, error) {
	a := strings.TrimSpace(participantA)
	b := strings.TrimSpace(participantB)
	if a == "" || b == "" {
		return Conversation{}, NewValidationError("resolve_conversation", "participant identifiers must not be empty")
	}
	if a == b {
		return Conversation{}, NewValidationError("resolve_conversation", "participants must be distinct")
	}

	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	canonical := RoomKey(lo + "_" + hi)

	var legacy []RoomKey
	for _, key := range []RoomKey{RoomKey(a + "_" + b), RoomKey(b + "_" + a)} {
		if key == canonical {
			continue
		}
		dup := false
		for _, seen := range legacy {
			if seen == key {
				dup = true
				break
			}
		}
		if !dup {
			legacy = append(legacy, key)
		}
	}

	return Conversation{Canonical: canonical, Legacy: legacy}, nil
}
