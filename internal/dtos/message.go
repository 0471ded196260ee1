// File: internal/dtos/message.go
package dtos

import (
	"github.com/tutorlink/go-tutorlink/internal/domain"
)

// MessageResponseDTO defines what fields to expose for a rendered chat
// message in API responses. Raw store fields like deletedBy are never
// exposed; the rendered view already reflects the viewer's perspective.
type MessageResponseDTO struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HTML       string `json:"html,omitempty"`
	SenderID   string `json:"sender_id"`
	Mine       bool   `json:"mine"`
	Tombstoned bool   `json:"tombstoned"`
	Seen       bool   `json:"seen"`
	CreatedAt  *int64 `json:"created_at,omitempty"` // Unix microseconds
}

// SendMessageRequestDTO represents the payload to send a message.
type SendMessageRequestDTO struct {
	Text string `json:"text" validate:"required,min=1"`
}

// OpenDirectChatRequestDTO represents the payload to open a direct chat.
type OpenDirectChatRequestDTO struct {
	PeerID string `json:"peer_id" validate:"required"`
}

// SessionResponseDTO represents an opened chat session.
type SessionResponseDTO struct {
	SessionID string `json:"session_id"`
	ViewerID  string `json:"viewer_id"`
	PeerID    string `json:"peer_id,omitempty"`
	Global    bool   `json:"global"`
}

// SelectionToggleRequestDTO represents a tap on a message bubble while
// picking messages for deletion.
type SelectionToggleRequestDTO struct {
	MessageID string `json:"message_id" validate:"required"`
}

// SelectionStateResponseDTO represents the current selection state.
type SelectionStateResponseDTO struct {
	Selecting bool     `json:"selecting"`
	Count     int      `json:"count"`
	Selected  []string `json:"selected,omitempty"`
}

// DeleteResultResponseDTO represents the outcome of a batch delete.
type DeleteResultResponseDTO struct {
	Requested int               `json:"requested"`
	Succeeded int               `json:"succeeded"`
	Failed    []FailedDeleteDTO `json:"failed,omitempty"`
	Everyone  *DeleteBatchDTO   `json:"everyone,omitempty"`
	ForMe     *DeleteBatchDTO   `json:"for_me,omitempty"`
	Summary   string            `json:"summary"`
}

// DeleteBatchDTO mirrors one half of a delete-for-everyone outcome.
type DeleteBatchDTO struct {
	Requested int               `json:"requested"`
	Succeeded int               `json:"succeeded"`
	Failed    []FailedDeleteDTO `json:"failed,omitempty"`
}

// FailedDeleteDTO names a message whose delete write failed.
type FailedDeleteDTO struct {
	MessageID string `json:"message_id"`
	Reason    string `json:"reason"`
}

// ToMessageResponseDTO maps a rendered message into the API shape.
// html may be empty when markdown rendering is disabled or failed.
func ToMessageResponseDTO(m domain.RenderedMessage, html string) MessageResponseDTO {
	dto := MessageResponseDTO{
		ID:         m.CompositeID,
		Text:       m.Text,
		HTML:       html,
		SenderID:   m.SenderID,
		Mine:       m.Mine,
		Tombstoned: m.Tombstoned,
		Seen:       m.Seen,
	}
	if m.CreatedAt != nil {
		micros := m.CreatedAt.UnixMicro()
		dto.CreatedAt = &micros
	}
	return dto
}
