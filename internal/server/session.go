package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/fiddle/internal/composer"
	"github.com/conneroisu/fiddle/internal/registry"
	"github.com/conneroisu/fiddle/internal/sharelink"
	"github.com/conneroisu/fiddle/internal/workspace"
)

const (
	// sessionIdleExpiry is how long a session may go untouched before
	// the cleaner removes it.
	sessionIdleExpiry = 30 * time.Minute

	// maxSessions bounds how many concurrent sessions one server keeps.
	maxSessions = 512
)

// Session owns one playground workspace. All buffer mutations and the
// recompositions they trigger are serialized behind the session mutex,
// so the composer never reads a torn triple and every preview reflects
// the latest value of all three buffers.
type Session struct {
	ID        string
	workspace *workspace.Workspace
	document  string
	lastSeen  time.Time
	mutex     sync.Mutex
}

// newSession creates a session whose workspace starts from defaults.
func newSession(defaults workspace.Triple) *Session {
	ws := workspace.New(defaults)
	return &Session{
		ID:        uuid.NewString(),
		workspace: ws,
		document:  composer.Compose(ws.Snapshot()),
		lastSeen:  time.Now(),
	}
}

// Snapshot returns the current triple and revision.
func (s *Session) Snapshot() (workspace.Triple, uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastSeen = time.Now()
	return s.workspace.Snapshot(), s.workspace.Revision()
}

// Document returns the last composed preview document.
func (s *Session) Document() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastSeen = time.Now()
	return s.document
}

// UpdateBuffer replaces one buffer with its full new text and
// recomposes the preview document in the same critical section.
func (s *Session) UpdateBuffer(target workspace.Target, content string) (string, uint64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.workspace.SetBuffer(target, content); err != nil {
		return "", 0, err
	}
	s.document = composer.Compose(s.workspace.Snapshot())
	s.lastSeen = time.Now()
	return s.document, s.workspace.Revision(), nil
}

// ApplyTemplate replaces all three buffers with the template content
// atomically and recomposes.
func (s *Session) ApplyTemplate(t registry.Template) (string, uint64) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.workspace.Replace(t.Content)
	s.document = composer.Compose(s.workspace.Snapshot())
	s.lastSeen = time.Now()
	return s.document, s.workspace.Revision()
}

// RestoreFromQuery applies share-link parameters to the session. A
// failed decode resets the workspace to its defaults; the session is
// never left with a partially applied link. The bool reports whether
// the query actually carried buffer values.
func (s *Session) RestoreFromQuery(rawQuery string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	overlay, err := sharelink.Decode(rawQuery)
	if err != nil {
		s.workspace.Reset()
		s.document = composer.Compose(s.workspace.Snapshot())
		s.lastSeen = time.Now()
		return false, err
	}

	s.workspace.ApplyOverlay(overlay)
	s.document = composer.Compose(s.workspace.Snapshot())
	s.lastSeen = time.Now()
	return !overlay.Empty(), nil
}

// ShareURL encodes the session's current buffers as a share link.
func (s *Session) ShareURL(origin string, compact bool) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastSeen = time.Now()
	if compact {
		return sharelink.EncodeCompact(origin, s.workspace.Snapshot())
	}
	return sharelink.Encode(origin, s.workspace.Snapshot())
}

// idleSince reports how long ago the session was last used.
func (s *Session) idleSince(now time.Time) time.Duration {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return now.Sub(s.lastSeen)
}

// SessionManager tracks live sessions by id.
type SessionManager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
	limit    int
}

// NewSessionManager creates an empty session manager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		limit:    maxSessions,
	}
}

// Create makes a new session seeded with defaults.
func (m *SessionManager) Create(defaults workspace.Triple) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if len(m.sessions) >= m.limit {
		return nil, fmt.Errorf("session limit reached (%d)", m.limit)
	}

	session := newSession(defaults)
	m.sessions[session.ID] = session
	return session, nil
}

// Get retrieves a session by id.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	session, exists := m.sessions[id]
	return session, exists
}

// Remove removes a session by id.
func (m *SessionManager) Remove(id string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.sessions, id)
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.sessions)
}

// expire removes sessions idle for longer than maxIdle and returns how
// many were dropped.
func (m *SessionManager) expire(now time.Time, maxIdle time.Duration) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	var dropped int
	for id, session := range m.sessions {
		if session.idleSince(now) > maxIdle {
			delete(m.sessions, id)
			dropped++
		}
	}
	return dropped
}
