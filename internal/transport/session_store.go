package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wheattoast11/deepresearch-mcp/internal/mcpcore"
	"github.com/wheattoast11/deepresearch-mcp/internal/models"
	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// sessionEntry bundles the MCP Core's negotiation state with the
// transport-owned resumption buffer for one HTTP or WebSocket
// connection. Stdio never touches this: it has exactly one session for
// the process lifetime and no resumption story.
//
// Every server-initiated message (progress, logging, job notifications)
// flows through publish, which both appends it to the bounded replay
// ring and fans it out to whichever goroutines are currently streaming
// this session out (a GET subscription, or the SSE branch of an
// in-flight POST).
type sessionEntry struct {
	core         *mcpcore.Session
	ring         *eventRing
	kind         models.TransportKind
	lastActivity time.Time

	mu          sync.Mutex
	subscribers map[chan Event]struct{}
}

func newSessionEntry(kind models.TransportKind) *sessionEntry {
	entry := &sessionEntry{ring: newEventRing(defaultRingSize), kind: kind, lastActivity: time.Now()}
	entry.core = mcpcore.NewSession(func(n *mcpcore.Notification) {
		if b, err := json.Marshal(n); err == nil {
			entry.publish(b)
		}
	})
	return entry
}

// publish appends data to the replay ring and delivers it to every
// currently-subscribed stream, dropping it for any subscriber whose
// buffer is full rather than blocking the whole session on a slow
// reader.
func (e *sessionEntry) publish(data []byte) Event {
	ev := e.ring.append(data)
	e.mu.Lock()
	for ch := range e.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
	e.mu.Unlock()
	return ev
}

// subscribe registers a new listener for this session's live event
// stream. The caller must unsubscribe when done.
func (e *sessionEntry) subscribe() chan Event {
	ch := make(chan Event, 32)
	e.mu.Lock()
	if e.subscribers == nil {
		e.subscribers = make(map[chan Event]struct{})
	}
	e.subscribers[ch] = struct{}{}
	e.mu.Unlock()
	return ch
}

func (e *sessionEntry) unsubscribe(ch chan Event) {
	e.mu.Lock()
	delete(e.subscribers, ch)
	e.mu.Unlock()
}

// SessionStore tracks live streamable-HTTP and WebSocket sessions,
// mirroring state into the Session repository for observability and
// expiring idle entries on a TTL, the way a production MCP gateway must
// to avoid leaking memory across long-lived reconnect/retry clients
// (§4.8, §5).
type SessionStore struct {
	mu          sync.RWMutex
	entries     map[string]*sessionEntry
	repo        repository.SessionRepository
	ttl         time.Duration
	logger      *slog.Logger
	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

// NewSessionStore creates a session store. ttl <= 0 disables the
// background idle-session reaper.
func NewSessionStore(repo repository.SessionRepository, ttl time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &SessionStore{
		entries:     make(map[string]*sessionEntry),
		repo:        repo,
		ttl:         ttl,
		logger:      logger.With("component", "transport.session"),
		stopCleanup: make(chan struct{}),
	}
	if ttl > 0 {
		s.startCleanup()
	}
	return s
}

// Create allocates a new session ID, registers it in memory and in the
// Session repository, and returns the mcpcore.Session the caller should
// use to dispatch requests for it.
func (s *SessionStore) Create(ctx context.Context, kind models.TransportKind) (string, *mcpcore.Session, error) {
	id := uuid.New().String()
	now := time.Now()
	entry := newSessionEntry(kind)

	if s.repo != nil {
		if err := s.repo.CreateSession(ctx, &models.Session{
			ID:         id,
			Transport:  kind,
			CreatedAt:  now,
			LastSeenAt: now,
		}); err != nil {
			return "", nil, err
		}
	}

	s.mu.Lock()
	s.entries[id] = entry
	s.mu.Unlock()
	return id, entry.core, nil
}

// Get returns the live entry for a session ID, if any.
func (s *SessionStore) Get(id string) (*sessionEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// Touch refreshes a session's last-activity timestamp and persists the
// resume cursor (the ring's newest event ID) to the repository.
func (s *SessionStore) Touch(ctx context.Context, id string) {
	s.mu.Lock()
	entry, ok := s.entries[id]
	if ok {
		entry.lastActivity = time.Now()
	}
	s.mu.Unlock()
	if !ok || s.repo == nil {
		return
	}
	var cursor int64
	if entry.ring != nil {
		cursor = entry.ring.nextID
	}
	_ = s.repo.TouchSession(ctx, id, cursor)
}

// Delete removes a session from memory and the repository (DELETE
// /mcp, or WebSocket close).
func (s *SessionStore) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, existed := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if existed && s.repo != nil {
		_ = s.repo.DeleteSession(ctx, id)
	}
	return existed
}

// Count returns the number of live sessions, used by the status/metrics
// surface.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *SessionStore) startCleanup() {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCleanup:
				return
			case now := <-ticker.C:
				s.expire(now)
			}
		}
	}()
}

func (s *SessionStore) expire(now time.Time) {
	s.mu.Lock()
	var expired []string
	for id, entry := range s.entries {
		if now.Sub(entry.lastActivity) > s.ttl {
			expired = append(expired, id)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		if s.repo != nil {
			_ = s.repo.DeleteSession(context.Background(), id)
		}
		s.logger.Info("session expired", "session_id", id)
	}
}

// Close stops the background reaper. Safe to call multiple times.
func (s *SessionStore) Close() {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
}
