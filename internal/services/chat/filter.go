// File: internal/services/chat/filter.go
package chat

import (
	"github.com/tutorlink/go-tutorlink/internal/domain"
)

// DeletedPlaceholder is the fixed text shown in place of a globally
// tombstoned message. The original content is gone for good.
const DeletedPlaceholder = "This message was deleted"

// VisibleTo applies the two suppression rules to a merged timeline and
// produces the renderable view for one viewer:
//
//   - a message the viewer personally hid stays hidden, unless it was
//     later tombstoned for everyone, which makes it visible again with the
//     placeholder text, for every viewer;
//   - a tombstoned message keeps its slot but renders only the placeholder.
//
// Pure function over value copies; the underlying messages are untouched.
// It runs on every merge re-publish and is never cached, since both
// suppression flags can change out of band.
func VisibleTo(timeline []domain.Message, viewerID string) []domain.RenderedMessage {
	out := make([]domain.RenderedMessage, 0, len(timeline))
	for _, msg := range timeline {
		if msg.HiddenFor(viewerID) && !msg.DeletedForEveryone {
			continue
		}
		rendered := domain.RenderedMessage{
			CompositeID: msg.CompositeID(),
			Text:        msg.Text,
			SenderID:    msg.SenderID,
			Mine:        msg.SenderID == viewerID,
			Tombstoned:  msg.DeletedForEveryone,
			Seen:        msg.SeenByRecipient,
			CreatedAt:   msg.CreatedAt,
		}
		if msg.DeletedForEveryone {
			rendered.Text = DeletedPlaceholder
		}
		out = append(out, rendered)
	}
	return out
}
