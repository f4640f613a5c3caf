package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

func newTestStreamableHandler(t *testing.T) *StreamableHTTPHandler {
	t.Helper()
	core, _ := testCore(t)
	sessions := NewSessionStore(nil, 0, nil)
	t.Cleanup(sessions.Close)
	return NewStreamableHTTPHandler(core, sessions, nil)
}

func doPost(h *StreamableHTTPHandler, body string, sessionID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set("Mcp-Session-Id", sessionID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStreamableHTTP_InitializeAssignsSessionID(t *testing.T) {
	h := newTestStreamableHandler(t)
	rec := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Mcp-Session-Id") == "" {
		t.Fatal("expected Mcp-Session-Id header on initialize response")
	}
	if got := rec.Header().Get("MCP-Protocol-Version"); got == "" {
		t.Fatal("expected MCP-Protocol-Version header")
	}
}

func TestStreamableHTTP_UnknownSessionIsNotFound(t *testing.T) {
	h := newTestStreamableHandler(t)
	rec := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "nonexistent")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStreamableHTTP_GetRequiresSessionHeader(t *testing.T) {
	h := newTestStreamableHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStreamableHTTP_DeleteTerminatesSession(t *testing.T) {
	h := newTestStreamableHandler(t)
	init := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`, "")
	sessionID := init.Header().Get("Mcp-Session-Id")

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", sessionID)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d, want 200", rec.Code)
	}

	rec2 := doPost(h, `{"jsonrpc":"2.0","id":2,"method":"ping"}`, sessionID)
	if rec2.Code != http.StatusNotFound {
		t.Fatalf("post-delete status = %d, want 404", rec2.Code)
	}
}

func TestStreamableHTTP_ProgressTokenStreamsSSE(t *testing.T) {
	h := newTestStreamableHandler(t)
	init := doPost(h, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`, "")
	sessionID := init.Header().Get("Mcp-Session-Id")

	body := `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ping","arguments":{},"_meta":{"progressToken":"tok-1"}}}`
	rec := doPost(h, body, sessionID)

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("event: message")) {
		t.Fatalf("expected an SSE message event in body, got %q", rec.Body.String())
	}
}

func TestStreamableHTTP_EmptyBodyIsRejected(t *testing.T) {
	h := newTestStreamableHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(""))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want 400", rec.Code)
	}
}

func TestStreamableHTTP_InvalidJSONGetsParseError(t *testing.T) {
	h := newTestStreamableHandler(t)
	rec := doPost(h, "not json", "")
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["error"] == nil {
		t.Fatalf("expected a JSON-RPC error, got %+v", resp)
	}
}

func TestSessionStore_CreateAndGet(t *testing.T) {
	s := NewSessionStore(nil, 0, nil)
	id, sess, err := s.Create(context.Background(), models.TransportStreamableHTTP)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	entry, ok := s.Get(id)
	if !ok || entry.core != sess {
		t.Fatal("expected Get() to return the same session just created")
	}
}
