// File: internal/services/chat/receipts.go
package chat

import (
	"context"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
)

// ReceiptUpdater marks incoming one-to-one messages as seen. Marking is
// best-effort: failures are logged and swallowed, and the writes run off
// the merge pipeline so rendering is never blocked. The global room has no
// recipient concept and never gets a ReceiptUpdater.
type ReceiptUpdater struct {
	store  docstore.Store
	cfg    *Config
	logger Logger
}

func NewReceiptUpdater(store docstore.Store, cfg *Config, logger Logger) *ReceiptUpdater {
	return &ReceiptUpdater{store: store, cfg: cfg, logger: logger}
}

// MarkIncomingSeen issues a fire-and-forget partial update for every
// message in a freshly merged (pre-filter) timeline that is addressed to
// the viewer and not yet seen. The updates are idempotent; re-issuing on a
// later republish is harmless.
func (u *ReceiptUpdater) MarkIncomingSeen(timeline []domain.Message, viewerID string) {
	var pending []domain.Message
	for _, msg := range timeline {
		if msg.RecipientID == viewerID && !msg.SeenByRecipient {
			pending = append(pending, msg)
		}
	}
	if len(pending) == 0 {
		return
	}

	go func() {
		for _, msg := range pending {
			ctx, cancel := context.WithTimeout(context.Background(), u.cfg.MarkSeenTimeout)
			err := u.store.UpdatePartial(ctx, msg.RoomKey, msg.LocalID, map[string]any{
				fieldSeenByRecipient: true,
			})
			cancel()
			if err != nil {
				u.logger.Debug("mark seen failed, will retry on next merge",
					"composite_id", msg.CompositeID(), "error", err.Error())
			}
		}
	}()
}
