package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"decide-ai/internal/flow"
)

// Session is one user's decision flow on the server.
type Session struct {
	ID         string
	CreatedAt  time.Time
	LastSeenAt time.Time
	Controller *flow.Controller
}

// SessionManager keeps sessions in memory. Nothing is persisted; a restart
// drops every flow.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newFlow  func() *flow.Controller
	idleTTL  time.Duration
}

func NewSessionManager(newFlow func() *flow.Controller, idleTTL time.Duration) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		newFlow:  newFlow,
		idleTTL:  idleTTL,
	}
}

func (m *SessionManager) Create() *Session {
	now := timeNow().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		LastSeenAt: now,
		Controller: m.newFlow(),
	}

	m.mu.Lock()
	m.pruneLocked(now)
	m.sessions[session.ID] = session
	m.mu.Unlock()

	return session
}

// Get returns the session and marks it as recently used.
func (m *SessionManager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	session.LastSeenAt = timeNow().UTC()
	return session, true
}

func (m *SessionManager) Delete(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return false
	}
	session.Controller.Reset()
	delete(m.sessions, id)
	return true
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// pruneLocked drops sessions idle for longer than idleTTL. Callers hold m.mu.
func (m *SessionManager) pruneLocked(now time.Time) {
	if m.idleTTL <= 0 {
		return
	}
	for id, session := range m.sessions {
		if now.Sub(session.LastSeenAt) > m.idleTTL {
			session.Controller.Reset()
			delete(m.sessions, id)
		}
	}
}

var timeNow = time.Now
