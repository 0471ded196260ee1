package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/tutorlink/go-tutorlink/internal/middleware"
	"github.com/tutorlink/go-tutorlink/internal/repository/docstore"
	"github.com/tutorlink/go-tutorlink/internal/services"
	"github.com/tutorlink/go-tutorlink/internal/services/chat"
	"github.com/tutorlink/go-tutorlink/internal/services/render"
)

// testRouter wires the chat routes behind a stub identity middleware that
// trusts the X-Test-User header.
func testRouter(t *testing.T) (*mux.Router, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	svc, err := chat.NewService(store, chat.DefaultConfig(), &services.NoOpLogger{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h := NewChatHandler(svc, render.New())

	r := mux.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if user := req.Header.Get("X-Test-User"); user != "" {
				req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, user))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.HandleFunc("/api/chats/direct", h.OpenDirectChat).Methods("POST")
	r.HandleFunc("/api/chats/global", h.OpenGlobalChat).Methods("POST")
	r.HandleFunc("/api/chats/{id}/messages", h.SendMessage).Methods("POST")
	r.HandleFunc("/api/chats/{id}/selection", h.GetSelection).Methods("GET")
	r.HandleFunc("/api/chats/{id}/selection/toggle", h.ToggleSelection).Methods("POST")
	r.HandleFunc("/api/chats/{id}/selection/cancel", h.CancelSelection).Methods("POST")
	r.HandleFunc("/api/chats/{id}/selection/delete-for-me", h.DeleteForMe).Methods("POST")
	r.HandleFunc("/api/chats/{id}", h.CloseChat).Methods("DELETE")
	return r, store
}

func doJSON(t *testing.T, router *mux.Router, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func openDirect(t *testing.T, router *mux.Router, user, peer string) string {
	t.Helper()
	rec := doJSON(t, router, "POST", "/api/chats/direct", user, map[string]string{"peer_id": peer})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open direct: status %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatalf("missing session id in %s", rec.Body.String())
	}
	return resp.SessionID
}

func TestOpenDirectChatRequiresAuth(t *testing.T) {
	router, _ := testRouter(t)
	rec := doJSON(t, router, "POST", "/api/chats/direct", "", map[string]string{"peer_id": "u2"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestOpenDirectChatRejectsSamePeer(t *testing.T) {
	router, _ := testRouter(t)
	rec := doJSON(t, router, "POST", "/api/chats/direct", "u1", map[string]string{"peer_id": "u1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSendMessageFlow(t *testing.T) {
	router, _ := testRouter(t)
	sessionID := openDirect(t, router, "u1", "u2")

	rec := doJSON(t, router, "POST", "/api/chats/"+sessionID+"/messages", "u1", map[string]string{"text": "hello"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("send: status %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "POST", "/api/chats/"+sessionID+"/messages", "u1", map[string]string{"text": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank send: expected 400, got %d", rec.Code)
	}
}

func TestSessionBelongsToItsOpener(t *testing.T) {
	router, _ := testRouter(t)
	sessionID := openDirect(t, router, "u1", "u2")

	rec := doJSON(t, router, "POST", "/api/chats/"+sessionID+"/messages", "eve", map[string]string{"text": "hi"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user, got %d", rec.Code)
	}

	rec = doJSON(t, router, "POST", "/api/chats/unknown/messages", "u1", map[string]string{"text": "hi"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
}

func TestSelectionEndpoints(t *testing.T) {
	router, _ := testRouter(t)
	sessionID := openDirect(t, router, "u1", "u2")

	rec := doJSON(t, router, "POST", "/api/chats/"+sessionID+"/selection/toggle", "u1", map[string]string{"message_id": "u1_u2:doc1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle: status %d", rec.Code)
	}
	var state struct {
		Selecting bool     `json:"selecting"`
		Count     int      `json:"count"`
		Selected  []string `json:"selected"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if !state.Selecting || state.Count != 1 || len(state.Selected) != 1 {
		t.Fatalf("unexpected state %+v", state)
	}

	rec = doJSON(t, router, "POST", "/api/chats/"+sessionID+"/selection/cancel", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.Selecting || state.Count != 0 {
		t.Fatalf("cancel did not clear selection: %+v", state)
	}
}

func TestDeleteForMeEndpoint(t *testing.T) {
	router, store := testRouter(t)
	sessionID := openDirect(t, router, "u1", "u2")

	docID, err := store.Append(context.Background(), "u1_u2", map[string]any{
		"senderId": "u2", "text": "unwanted", "createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	doJSON(t, router, "POST", "/api/chats/"+sessionID+"/selection/toggle", "u1",
		map[string]string{"message_id": "u1_u2:" + docID})

	rec := doJSON(t, router, "POST", "/api/chats/"+sessionID+"/selection/delete-for-me", "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d, body %s", rec.Code, rec.Body.String())
	}
	var result struct {
		Requested int    `json:"requested"`
		Succeeded int    `json:"succeeded"`
		Summary   string `json:"summary"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Requested != 1 || result.Succeeded != 1 || result.Summary == "" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCloseChat(t *testing.T) {
	router, _ := testRouter(t)
	sessionID := openDirect(t, router, "u1", "u2")

	rec := doJSON(t, router, "DELETE", "/api/chats/"+sessionID, "u1", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("close: status %d", rec.Code)
	}

	rec = doJSON(t, router, "DELETE", "/api/chats/"+sessionID, "u1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second close: expected 404, got %d", rec.Code)
	}
}
