package mcpcore

import "sync"

// Session is the MCP Core's view of one connection's negotiation state.
// Transports (C8) own the actual wire connection and durable session
// record (models.Session for HTTP/WS); this struct is the small slice of
// state the core needs to gate requests and route progress/log messages.
type Session struct {
	mu              sync.Mutex
	initialized     bool
	protocolVersion string
	logLevel        string

	// Send delivers a Notification to this session's transport (an SSE
	// stream, a WebSocket frame, or stdout for stdio). Required.
	Send func(*Notification)
}

// NewSession creates a fresh, pre-initialize Session bound to a send func.
func NewSession(send func(*Notification)) *Session {
	return &Session{Send: send, logLevel: "info"}
}

func (s *Session) markInitialized(protocolVersion string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	s.protocolVersion = protocolVersion
}

// Initialized reports whether `initialize` has completed for this session.
func (s *Session) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// SetLogLevel implements `logging/setLevel`.
func (s *Session) SetLogLevel(level string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
}

// LogLevel returns the session's current server-side log filter level.
func (s *Session) LogLevel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logLevel
}

// progressFuncFor builds a ProgressFunc bound to a specific request's
// progressToken, emitting `notifications/progress` over the session's
// transport. Returns nil if no token was supplied (§4.7).
func (s *Session) progressFuncFor(token any) ProgressFunc {
	if token == nil || s.Send == nil {
		return nil
	}
	return func(value float64, message string) {
		params := map[string]any{"progressToken": token, "progress": value}
		if message != "" {
			params["message"] = message
		}
		s.Send(newNotification("notifications/progress", params))
	}
}
