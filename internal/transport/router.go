package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// Router wires every HTTP-facing MCP transport (streamable-HTTP,
// WebSocket, legacy SSE+POST) plus the independent job-events stream
// onto a chi router. Callers mount the result under their own
// middleware chain (auth, rate limiting, CORS) — this package owns
// framing and session plumbing only, not access control (§4.8, §4.9).
func Router(core *mcpcore.Core, sessions *SessionStore, repos *repository.Repositories, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	streamable := NewStreamableHTTPHandler(core, sessions, logger)
	r.Method(http.MethodPost, "/mcp", streamable)
	r.Method(http.MethodGet, "/mcp", streamable)
	r.Method(http.MethodDelete, "/mcp", streamable)

	ws := NewWebSocketHandler(core, sessions, logger, nil)
	r.Method(http.MethodGet, "/mcp/ws", ws)

	legacy := NewLegacyHandler(core, sessions, logger)
	r.Get("/sse", legacy.ServeSSE)
	r.Post("/messages/{connectionId}", legacy.ServeMessages)
	r.Post("/messages", legacy.ServeMessages)

	jobEvents := NewJobEventsHandler(repos.Job, repos.JobEvent, logger)
	r.Get("/jobs/{jobId}/events", jobEvents.ServeHTTP)

	return r
}

// DefaultSessionTTL is the idle session lifetime recommended for the
// streamable-HTTP and WebSocket session stores (§5 resource model).
const DefaultSessionTTL = 30 * time.Minute
