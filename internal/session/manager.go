package session

import (
	"log/slog"
	"sync"
)

// Manager owns the per-user session contexts. The map itself is
// synchronized; an individual Context is single-writer because the message
// router processes one message per user at a time.
//
// Abandoned sessions are kept indefinitely: there is no inactivity timeout,
// which is an accepted memory-leak risk for long-running deployments.
type Manager struct {
	mu         sync.RWMutex
	sessions   map[string]*Context
	startState State
}

// NewManager creates a session manager. startState is the state assigned to
// freshly created and reset contexts.
func NewManager(startState State) *Manager {
	return &Manager{
		sessions:   make(map[string]*Context),
		startState: startState,
	}
}

// GetOrCreate returns the context for userID, creating one in the start
// state on first contact.
func (m *Manager) GetOrCreate(userID string) *Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[userID]; ok {
		return c
	}
	slog.Debug("session.Manager: creating context", "userID", userID)
	c := &Context{UserID: userID, State: m.startState}
	m.sessions[userID] = c
	return c
}

// Get returns the context for userID if one exists.
func (m *Manager) Get(userID string) (*Context, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[userID]
	return c, ok
}

// Reset clears the user's context back to the start state, discarding all
// collected data.
func (m *Manager) Reset(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.sessions[userID]; ok {
		c.Reset(m.startState)
		slog.Debug("session.Manager: context reset", "userID", userID)
	}
}

// Count returns the number of live sessions. Used for logging and tests.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
