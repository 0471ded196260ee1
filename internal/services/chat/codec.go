// File: internal/services/chat/codec.go
package chat

import (
	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
)

// Store field names for chat message documents.
const (
	fieldSenderID           = "senderId"
	fieldRecipientID        = "recipientId"
	fieldText               = "text"
	fieldCreatedAt          = "createdAt"
	fieldSeenByRecipient    = "seenByRecipient"
	fieldDeletedBy          = "deletedBy"
	fieldDeletedForEveryone = "deletedForEveryone"
	fieldDeletedAt          = "deletedAt"
)

// decodeMessage builds the engine's message record from one store document.
// Unknown or mistyped fields decode to zero values; the snapshot is
// authoritative, so no partial patching happens here.
func decodeMessage(room RoomKey, doc docstore.Document) domain.Message {
	msg := domain.Message{
		RoomKey:            string(room),
		LocalID:            doc.ID,
		SenderID:           stringField(doc.Fields, fieldSenderID),
		RecipientID:        stringField(doc.Fields, fieldRecipientID),
		Text:               stringField(doc.Fields, fieldText),
		SeenByRecipient:    boolField(doc.Fields, fieldSeenByRecipient),
		DeletedForEveryone: boolField(doc.Fields, fieldDeletedForEveryone),
		DeletedBy:          stringSetField(doc.Fields, fieldDeletedBy),
	}
	if ts, ok := docstore.TimestampValue(doc.Fields[fieldCreatedAt]); ok {
		msg.CreatedAt = &ts
	}
	if ts, ok := docstore.TimestampValue(doc.Fields[fieldDeletedAt]); ok {
		msg.DeletedAt = &ts
	}
	return msg
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func boolField(fields map[string]any, key string) bool {
	b, _ := fields[key].(bool)
	return b
}

func stringSetField(fields map[string]any, key string) []string {
	switch v := fields[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
