package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
)

// WebSocketHandler implements the full-duplex JSON-RPC transport at
// /mcp/ws. Unlike the streamable-HTTP transport, progress and other
// server-initiated notifications share the same socket as request
// responses rather than a side-channel SSE stream (§4.8 "WebSocket").
type WebSocketHandler struct {
	core     *mcpcore.Core
	sessions *SessionStore
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler builds the /mcp/ws handler. checkOrigin, if
// non-nil, overrides the default same-origin policy.
func NewWebSocketHandler(core *mcpcore.Core, sessions *SessionStore, logger *slog.Logger, checkOrigin func(*http.Request) bool) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{
		core:     core,
		sessions: sessions,
		logger:   logger.With("component", "transport.ws"),
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	id, sess, err := h.sessions.Create(ctx, models.TransportWebSocket)
	if err != nil {
		h.logger.Error("failed to create websocket session", "error", err)
		return
	}
	defer h.sessions.Delete(ctx, id)

	entry, _ := h.sessions.Get(id)
	sub := entry.subscribe()
	defer entry.unsubscribe(sub)

	var writeMu sync.Mutex
	writeJSON := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteJSON(v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case ev, ok := <-sub:
				if !ok {
					return
				}
				writeMu.Lock()
				err := conn.WriteMessage(websocket.TextMessage, ev.Data)
				writeMu.Unlock()
				if err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if isJSONArray(raw) {
			_ = writeJSON(map[string]any{
				"jsonrpc": "2.0",
				"error":   map[string]any{"code": mcpcore.RPCInvalidRequest, "message": "batch requests are not supported"},
			})
			continue
		}

		var req mcpcore.Request
		if err := json.Unmarshal(raw, &req); err != nil {
			_ = writeJSON(map[string]any{
				"jsonrpc": "2.0",
				"error":   map[string]any{"code": mcpcore.RPCParseError, "message": "invalid JSON-RPC message"},
			})
			continue
		}

		resp := h.core.Dispatch(ctx, sess, &req)
		if resp == nil {
			continue
		}
		if err := writeJSON(resp); err != nil {
			break
		}
	}

	<-done
}

func isJSONArray(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
	return false
}
