// File: internal/handlers/chat_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tutorlink/go-tutorlink/internal/domain"
	"github.com/tutorlink/go-tutorlink/internal/dtos"
	"github.com/tutorlink/go-tutorlink/internal/middleware"
	"github.com/tutorlink/go-tutorlink/internal/services/chat"
	"github.com/tutorlink/go-tutorlink/internal/services/render"
)

type ChatHandler struct {
	ChatService *chat.Service
	Renderer    *render.Renderer

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	session *chat.Session
	viewer  string
}

func NewChatHandler(cs *chat.Service, rn *render.Renderer) *ChatHandler {
	return &ChatHandler{
		ChatService: cs,
		Renderer:    rn,
		sessions:    make(map[string]*sessionEntry),
	}
}

// OpenDirectChat mounts a one-to-one chat with the requested peer and
// returns a session id for the follow-up endpoints.
func (h *ChatHandler) OpenDirectChat(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.CallerID(r.Context())
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req dtos.OpenDirectChatRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PeerID == "" {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sess, err := h.ChatService.OpenDirect(r.Context(), viewerID, req.PeerID)
	if err != nil {
		writeChatError(w, err)
		return
	}

	sessionID := h.register(viewerID, sess)
	writeJSON(w, http.StatusCreated, dtos.SessionResponseDTO{
		SessionID: sessionID,
		ViewerID:  viewerID,
		PeerID:    sess.PeerID(),
	})
}

// OpenGlobalChat mounts the shared broadcast room.
func (h *ChatHandler) OpenGlobalChat(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := middleware.CallerID(r.Context())
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	sess, err := h.ChatService.OpenGlobal(r.Context(), viewerID)
	if err != nil {
		writeChatError(w, err)
		return
	}

	sessionID := h.register(viewerID, sess)
	writeJSON(w, http.StatusCreated, dtos.SessionResponseDTO{
		SessionID: sessionID,
		ViewerID:  viewerID,
		Global:    true,
	})
}

// StreamTimeline pushes every new rendered timeline over Server-Sent Events.
// Each event carries the full conversation; the client replaces, never appends.
func (h *ChatHandler) StreamTimeline(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case timeline, open := <-sess.Timelines():
			if !open {
				return
			}
			payload, err := json.Marshal(h.toDTOs(timeline))
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("event: timeline\ndata: ")); err != nil {
				return
			}
			if _, err := w.Write(payload); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// SendMessage appends one message to the session's canonical room.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req dtos.SendMessageRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if err := sess.Send(r.Context(), req.Text); err != nil {
		writeChatError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ToggleSelection flips one message in or out of the delete selection.
func (h *ChatHandler) ToggleSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req dtos.SelectionToggleRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MessageID == "" {
		writeError(w, "Bad Request", http.StatusBadRequest)
		return
	}

	sess.Toggle(req.MessageID)
	writeJSON(w, http.StatusOK, selectionState(sess))
}

// CancelSelection clears the selection and leaves selection mode.
func (h *ChatHandler) CancelSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	sess.CancelSelection()
	writeJSON(w, http.StatusOK, selectionState(sess))
}

// GetSelection reports whether selection mode is active and what is picked.
func (h *ChatHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, selectionState(sess))
}

// DeleteForMe hides the selected messages for the caller only.
func (h *ChatHandler) DeleteForMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	result, err := sess.DeleteForMe(r.Context())
	if err != nil {
		writeChatError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dtos.DeleteResultResponseDTO{
		Requested: result.Requested,
		Succeeded: result.Succeeded,
		Failed:    toFailedDTOs(result.Failed),
		Summary:   result.Summary(),
	})
}

// DeleteForEveryone tombstones the caller's own selected messages and hides
// the rest for the caller.
func (h *ChatHandler) DeleteForEveryone(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	outcome, err := sess.DeleteForEveryone(r.Context())
	if err != nil {
		writeChatError(w, err)
		return
	}
	everyone := toBatchDTO(outcome.Everyone)
	forMe := toBatchDTO(outcome.ForMe)
	writeJSON(w, http.StatusOK, dtos.DeleteResultResponseDTO{
		Requested: outcome.Everyone.Requested + outcome.ForMe.Requested,
		Succeeded: outcome.Everyone.Succeeded + outcome.ForMe.Succeeded,
		Everyone:  &everyone,
		ForMe:     &forMe,
		Summary:   outcome.Summary(),
	})
}

// CloseChat unsubscribes the session's room subscriptions and forgets it.
func (h *ChatHandler) CloseChat(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	sessionID := mux.Vars(r)["id"]
	h.mu.Lock()
	delete(h.sessions, sessionID)
	h.mu.Unlock()

	if err := sess.Close(); err != nil {
		writeError(w, "Could not close chat cleanly", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) register(viewerID string, sess *chat.Session) string {
	sessionID := uuid.NewString()
	h.mu.Lock()
	h.sessions[sessionID] = &sessionEntry{session: sess, viewer: viewerID}
	h.mu.Unlock()
	return sessionID
}

// lookup resolves the session from the URL and checks it belongs to the
// caller. Writes the error response itself when the lookup fails.
func (h *ChatHandler) lookup(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	viewerID, ok := middleware.CallerID(r.Context())
	if !ok {
		writeError(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	sessionID := mux.Vars(r)["id"]
	h.mu.RLock()
	entry, found := h.sessions[sessionID]
	h.mu.RUnlock()
	if !found {
		writeError(w, "Chat session not found", http.StatusNotFound)
		return nil, false
	}
	if entry.viewer != viewerID {
		writeError(w, "Unauthorized", http.StatusForbidden)
		return nil, false
	}
	return entry.session, true
}

func (h *ChatHandler) toDTOs(timeline []domain.RenderedMessage) []dtos.MessageResponseDTO {
	out := make([]dtos.MessageResponseDTO, 0, len(timeline))
	for _, m := range timeline {
		html := ""
		if h.Renderer != nil && !m.Tombstoned {
			if rendered, err := h.Renderer.HTML(m.Text); err == nil {
				html = rendered
			}
		}
		out = append(out, dtos.ToMessageResponseDTO(m, html))
	}
	return out
}

func selectionState(sess *chat.Session) dtos.SelectionStateResponseDTO {
	return dtos.SelectionStateResponseDTO{
		Selecting: sess.Selecting(),
		Count:     sess.SelectionCount(),
		Selected:  sess.Selected(),
	}
}

func toBatchDTO(r chat.BatchResult) dtos.DeleteBatchDTO {
	return dtos.DeleteBatchDTO{
		Requested: r.Requested,
		Succeeded: r.Succeeded,
		Failed:    toFailedDTOs(r.Failed),
	}
}

func toFailedDTOs(failed []chat.FailedDelete) []dtos.FailedDeleteDTO {
	if len(failed) == 0 {
		return nil
	}
	out := make([]dtos.FailedDeleteDTO, 0, len(failed))
	for _, f := range failed {
		out = append(out, dtos.FailedDeleteDTO{MessageID: f.CompositeID, Reason: f.Reason})
	}
	return out
}

// writeChatError maps a service error onto the right HTTP status.
func writeChatError(w http.ResponseWriter, err error) {
	var chatErr *chat.ChatError
	if errors.As(err, &chatErr) {
		switch chatErr.Type {
		case chat.ErrTypeValidation:
			writeError(w, chatErr.Message, http.StatusBadRequest)
		case chat.ErrTypeClosed:
			writeError(w, chatErr.Message, http.StatusGone)
		case chat.ErrTypeNotFound:
			writeError(w, chatErr.Message, http.StatusNotFound)
		default:
			writeError(w, "Chat operation failed", http.StatusInternalServerError)
		}
		return
	}
	writeError(w, "Chat operation failed", http.StatusInternalServerError)
}

// writeJSON is a helper for sending JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError is a helper for sending JSON error responses.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
