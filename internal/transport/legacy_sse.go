package transport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// LegacyHandler implements the pre-2025-03-26 "HTTP+SSE" MCP transport:
// GET /sse opens a one-way event stream and announces a connection-scoped
// POST endpoint; POST /messages/{connectionId} carries client requests,
// whose responses are written back onto the matching SSE stream rather
// than the POST's own response body (§4.8 "Legacy SSE + POST").
//
// This transport predates session headers, so connection identity lives
// entirely in the URL path rather than Mcp-Session-Id.
type LegacyHandler struct {
	core     *mcpcore.Core
	sessions *SessionStore
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*legacyConn
}

type legacyConn struct {
	entry *sessionEntry
}

// NewLegacyHandler builds the legacy SSE+POST handler pair.
func NewLegacyHandler(core *mcpcore.Core, sessions *SessionStore, logger *slog.Logger) *LegacyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LegacyHandler{
		core:     core,
		sessions: sessions,
		logger:   logger.With("component", "transport.legacy_sse"),
		conns:    make(map[string]*legacyConn),
	}
}

// ServeSSE handles GET /sse.
func (h *LegacyHandler) ServeSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	connID := uuid.New().String()
	id, _, err := h.sessions.Create(r.Context(), models.TransportLegacySSE)
	if err != nil {
		h.logger.Error("failed to create legacy session", "error", err)
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	entry, _ := h.sessions.Get(id)

	h.mu.Lock()
	h.conns[connID] = &legacyConn{entry: entry}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.conns, connID)
		h.mu.Unlock()
		h.sessions.Delete(r.Context(), id)
	}()

	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	// Announce where the client should POST follow-up JSON-RPC messages,
	// per the legacy transport's "endpoint" event convention.
	writeSSEEvent(w, flusher, 0, "endpoint", []byte(`{"uri":"/messages/`+connID+`"}`))

	sub := entry.subscribe()
	defer entry.unsubscribe(sub)

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSEComment(w, flusher, "heartbeat")
		case ev := <-sub:
			writeSSEEvent(w, flusher, ev.ID, "message", ev.Data)
		}
	}
}

// ServeMessages handles POST /messages/{connectionId}.
func (h *LegacyHandler) ServeMessages(w http.ResponseWriter, r *http.Request) {
	connID := chi.URLParam(r, "connectionId")
	h.mu.Lock()
	conn, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		http.Error(w, "unknown connection", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	var req mcpcore.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON-RPC message", http.StatusBadRequest)
		return
	}

	resp := h.core.Dispatch(r.Context(), conn.entry.core, &req)
	if resp != nil {
		if b, err := json.Marshal(resp); err == nil {
			conn.entry.publish(b)
		}
	}
	w.WriteHeader(http.StatusAccepted)
}
