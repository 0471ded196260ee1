// File: internal/domain/message.go
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Message is a single chat message as read from one physical room in the
// document store. RoomKey plus LocalID locate the backing document; the
// composite identifier is the only handle ever handed to the UI layer.
type Message struct {
	RoomKey            string
	LocalID            string
	SenderID           string
	RecipientID        string // empty in the global broadcast room
	Text               string
	CreatedAt          *time.Time // nil until the store acknowledges the write
	SeenByRecipient    bool
	DeletedBy          []string // users who hid this message for themselves
	DeletedForEveryone bool
	DeletedAt          *time.Time
}

// CompositeID returns the globally unique message handle, roomKey:localId.
func (m Message) CompositeID() string {
	return m.RoomKey + ":" + m.LocalID
}

// HiddenFor reports whether userID personally hid this message.
func (m Message) HiddenFor(userID string) bool {
	for _, id := range m.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// Equal compares two messages field by field. DeletedBy is compared as a
// set, since the store gives no ordering guarantee for array fields.
func (m Message) Equal(other Message) bool {
	if m.RoomKey != other.RoomKey ||
		m.LocalID != other.LocalID ||
		m.SenderID != other.SenderID ||
		m.RecipientID != other.RecipientID ||
		m.Text != other.Text ||
		m.SeenByRecipient != other.SeenByRecipient ||
		m.DeletedForEveryone != other.DeletedForEveryone {
		return false
	}
	if !timePtrEqual(m.CreatedAt, other.CreatedAt) || !timePtrEqual(m.DeletedAt, other.DeletedAt) {
		return false
	}
	if len(m.DeletedBy) != len(other.DeletedBy) {
		return false
	}
	seen := make(map[string]struct{}, len(m.DeletedBy))
	for _, id := range m.DeletedBy {
		seen[id] = struct{}{}
	}
	for _, id := range other.DeletedBy {
		if _, ok := seen[id]; !ok {
			return false
		}
	}
	return true
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// SplitCompositeID breaks a composite identifier back into its room key and
// local document id. Local ids never contain a colon, so the split happens
// at the last one.
func SplitCompositeID(compositeID string) (roomKey, localID string, err error) {
	idx := strings.LastIndex(compositeID, ":")
	if idx <= 0 || idx == len(compositeID)-1 {
		return "", "", fmt.Errorf("malformed composite id %q", compositeID)
	}
	return compositeID[:idx], compositeID[idx+1:], nil
}

// RenderedMessage is the view of a message handed to the UI layer after
// visibility filtering: identifier, display text and the flags the renderer
// needs. The underlying Message is never exposed.
type RenderedMessage struct {
	CompositeID string     `json:"composite_id"`
	Text        string     `json:"text"`
	SenderID    string     `json:"sender_id"`
	Mine        bool       `json:"mine"`
	Tombstoned  bool       `json:"tombstoned"`
	Seen        bool       `json:"seen,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}
