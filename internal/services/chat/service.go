// File: internal/services/chat/service.go
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
)

// Service creates chat sessions over the remote message store. One Session
// corresponds to one mounted chat screen.
type Service struct {
	store  docstore.Store
	cfg    *Config
	logger Logger
}

func NewService(store docstore.Store, cfg *Config, logger Logger) (*Service, error) {
	if store == nil {
		return nil, errors.New("document store is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, &ChatError{Type: ErrTypeConfig, Operation: "new_service", Message: err.Error()}
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{store: store, cfg: cfg, logger: logger}, nil
}

// OpenDirect mounts a one-to-one chat between the viewer and a peer. The
// engine reads the canonical room plus any legacy rooms; sends go to the
// canonical room only.
func (s *Service) OpenDirect(ctx context.Context, viewerID, peerID string) (*Session, error) {
	conv, err := ResolveConversation(viewerID, peerID)
	if err != nil {
		return nil, err
	}
	return s.open(ctx, viewerID, peerID, conv.Rooms(), conv.Canonical, true)
}

// OpenGlobal mounts the global broadcast chat: one fixed room, sender-only
// messages, no read receipts.
func (s *Service) OpenGlobal(ctx context.Context, viewerID string) (*Session, error) {
	if strings.TrimSpace(viewerID) == "" {
		return nil, NewValidationError("open_global", "viewer id is required")
	}
	return s.open(ctx, viewerID, "", []RoomKey{GlobalRoomKey}, GlobalRoomKey, false)
}

func (s *Service) open(ctx context.Context, viewerID, peerID string, rooms []RoomKey, writeRoom RoomKey, receipts bool) (*Session, error) {
	engine := NewEngine(s.store, rooms, s.logger)
	if err := engine.Open(ctx); err != nil {
		return nil, err
	}

	sess := &Session{
		viewerID:  viewerID,
		peerID:    peerID,
		writeRoom: writeRoom,
		store:     s.store,
		cfg:       s.cfg,
		logger:    s.logger,
		engine:    engine,
		selection: NewController(s.store, engine.Get, s.cfg, s.logger),
		out:       make(chan []domain.RenderedMessage, 1),
	}
	if receipts {
		sess.receipts = NewReceiptUpdater(s.store, s.cfg, s.logger)
	}
	go sess.pump()

	s.logger.Info("chat session opened", "viewer", viewerID, "rooms", len(rooms))
	return sess, nil
}

// Session is the live state of one chat screen: the merge engine, the
// visibility filter applied for this viewer, the selection controller and
// (for one-to-one chats) the read-receipt updater.
type Session struct {
	viewerID  string
	peerID    string
	writeRoom RoomKey

	store  docstore.Store
	cfg    *Config
	logger Logger

	engine    *Engine
	selection *Controller
	receipts  *ReceiptUpdater

	out chan []domain.RenderedMessage

	mu     sync.Mutex
	closed bool
}

// Timelines delivers the filtered, ordered, renderable view of the
// conversation. Conflated like the engine's channel; closed after Close.
func (s *Session) Timelines() <-chan []domain.RenderedMessage { return s.out }

// ViewerID returns the identity this session filters and writes as.
func (s *Session) ViewerID() string { return s.viewerID }

func (s *Session) pump() {
	for merged := range s.engine.Merged() {
		// Receipts see the pre-filter timeline: a message the viewer hid
		// still counts as delivered.
		if s.receipts != nil {
			s.receipts.MarkIncomingSeen(merged, s.viewerID)
		}
		rendered := VisibleTo(merged, s.viewerID)
		select {
		case s.out <- rendered:
		default:
			select {
			case <-s.out:
			default:
			}
			s.out <- rendered
		}
	}
	close(s.out)
}

// Send appends a message to the canonical room. Legacy rooms are read-only
// forever; nothing is ever written to them.
func (s *Session) Send(ctx context.Context, text string) error {
	if s.isClosed() {
		return NewClosedError("send")
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return NewValidationError("send", "message text must not be empty")
	}
	if utf8.RuneCountInString(trimmed) > s.cfg.MaxMessageLength {
		return NewValidationError("send", "message text too long")
	}

	fields := map[string]any{
		fieldSenderID:           s.viewerID,
		fieldText:               trimmed,
		fieldCreatedAt:          docstore.ServerTimestamp,
		fieldDeletedForEveryone: false,
	}
	if s.peerID != "" {
		fields[fieldRecipientID] = s.peerID
		fields[fieldSeenByRecipient] = false
	}

	if _, err := s.store.Append(ctx, string(s.writeRoom), fields); err != nil {
		return NewStoreError("send", "cannot append message", err)
	}
	return nil
}

// Toggle flips selection of one rendered message; see Controller.Toggle.
func (s *Session) Toggle(compositeID string) bool { return s.selection.Toggle(compositeID) }

// CancelSelection clears the selection and leaves selection mode.
func (s *Session) CancelSelection() { s.selection.Cancel() }

func (s *Session) Selecting() bool { return s.selection.Selecting() }

func (s *Session) SelectionCount() int { return s.selection.Count() }

// Selected returns the selected composite ids in lexicographic order.
func (s *Session) Selected() []string { return s.selection.Selected() }

// PeerID returns the other participant's id, or "" for the global chat.
func (s *Session) PeerID() string { return s.peerID }

// DeleteForMe hides the selected messages for this viewer only.
func (s *Session) DeleteForMe(ctx context.Context) (BatchResult, error) {
	if s.isClosed() {
		return BatchResult{}, NewClosedError("delete_for_me")
	}
	return s.selection.DeleteForMe(ctx, s.viewerID)
}

// DeleteForEveryone tombstones the viewer's own selected messages and hides
// the rest for the viewer; see Controller.DeleteForEveryone.
func (s *Session) DeleteForEveryone(ctx context.Context) (DeleteOutcome, error) {
	if s.isClosed() {
		return DeleteOutcome{}, NewClosedError("delete_for_everyone")
	}
	return s.selection.DeleteForEveryone(ctx, s.viewerID)
}

// Close unsubscribes every room subscription. In-flight writes are not
// cancelled; they complete or fail on their own.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("chat session closed", "viewer", s.viewerID)
	return s.engine.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
