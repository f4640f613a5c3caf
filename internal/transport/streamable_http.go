package transport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

const maxMCPBodyBytes = 10 * 1024 * 1024

// StreamableHTTPHandler implements the MCP "Streamable HTTP" transport:
// a single /mcp endpoint accepting POST (one request/notification per
// call, JSON or SSE response), GET (a pure-read SSE subscription for
// the session), and DELETE (session teardown) (§4.8).
type StreamableHTTPHandler struct {
	core     *mcpcore.Core
	sessions *SessionStore
	logger   *slog.Logger
}

// NewStreamableHTTPHandler builds the /mcp handler over a shared Core
// and session store.
func NewStreamableHTTPHandler(core *mcpcore.Core, sessions *SessionStore, logger *slog.Logger) *StreamableHTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamableHTTPHandler{core: core, sessions: sessions, logger: logger.With("component", "transport.http")}
}

func (h *StreamableHTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *StreamableHTTPHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mediaType, _, _ := mime.ParseMediaType(ct); mediaType != "application/json" {
			http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes))
	_ = r.Body.Close()
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) == 0 {
		http.Error(w, "empty request body", http.StatusBadRequest)
		return
	}

	var req mcpcore.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONRPCError(w, mcpcore.RPCParseError, "invalid JSON-RPC message")
		return
	}

	sessionID := r.Header.Get("Mcp-Session-Id")
	ctx := r.Context()

	var (
		entry *sessionEntry
		sess  *mcpcore.Session
	)
	if sessionID != "" {
		e, ok := h.sessions.Get(sessionID)
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		entry, sess = e, e.core
		h.sessions.Touch(ctx, sessionID)
	} else if req.Method == "initialize" {
		id, core, err := h.sessions.Create(ctx, models.TransportStreamableHTTP)
		if err != nil {
			h.logger.Error("failed to create session", "error", err)
			http.Error(w, "failed to create session", http.StatusInternalServerError)
			return
		}
		sessionID = id
		entry, _ = h.sessions.Get(id)
		sess = core
	} else {
		// Stateless single-shot call: build a throwaway session so
		// dispatch has somewhere to route progress, but don't persist it.
		entry = newSessionEntry(models.TransportStreamableHTTP)
		sess = entry.core
	}

	w.Header().Set("MCP-Protocol-Version", mcpcore.ProtocolVersion)
	if sessionID != "" {
		w.Header().Set("Mcp-Session-Id", sessionID)
	}

	if streamsProgress(req) {
		h.handlePostStreaming(ctx, w, entry, sess, &req)
		return
	}

	resp := h.core.Dispatch(ctx, sess, &req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// streamsProgress reports whether a tools/call request carries a
// progressToken, meaning the caller expects intermediate
// notifications/progress events ahead of the final result (§4.7, §4.8).
func streamsProgress(req mcpcore.Request) bool {
	if req.Method != "tools/call" || len(req.Params) == 0 {
		return false
	}
	var env mcpcore.RequestEnvelope
	if err := json.Unmarshal(req.Params, &env); err != nil {
		return false
	}
	return env.Meta.ProgressToken != nil
}

// handlePostStreaming runs Dispatch in the background and relays every
// notification published on the session, in order, as SSE frames,
// terminating the stream with the JSON-RPC response once Dispatch
// returns.
func (h *StreamableHTTPHandler) handlePostStreaming(ctx context.Context, w http.ResponseWriter, entry *sessionEntry, sess *mcpcore.Session, req *mcpcore.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	sub := entry.subscribe()
	defer entry.unsubscribe(sub)

	done := make(chan *mcpcore.Response, 1)
	go func() {
		done <- h.core.Dispatch(ctx, sess, req)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub:
			writeSSEEvent(w, flusher, ev.ID, "message", ev.Data)
		case resp := <-done:
			if resp != nil {
				if b, err := json.Marshal(resp); err == nil {
					ev := entry.publish(b)
					writeSSEEvent(w, flusher, ev.ID, "message", b)
				}
			}
			return
		}
	}
}

func (h *StreamableHTTPHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}
	entry, ok := h.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)
	w.Header().Set("MCP-Protocol-Version", mcpcore.ProtocolVersion)
	w.WriteHeader(http.StatusOK)

	if lastEventID, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64); err == nil {
		events, trimmed := entry.ring.after(lastEventID)
		if trimmed {
			writeSSEEvent(w, flusher, 0, "stream_trimmed", []byte(`{"reason":"buffer_overflow"}`))
		}
		for _, ev := range events {
			writeSSEEvent(w, flusher, ev.ID, "message", ev.Data)
		}
	}

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
			h.sessions.Touch(ctx, sessionID)
		}
	}
}

func (h *StreamableHTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Mcp-Session-Id header required", http.StatusBadRequest)
		return
	}
	if !h.sessions.Delete(r.Context(), sessionID) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func writeJSONRPCError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"error":   map[string]any{"code": code, "message": message},
	})
}
