package session

import (
	"fmt"
	"log/slog"
	"sync"
)

// Manager enforces the single-active-session rule: one recording per
// process. Starting a second session while one is live is rejected without
// touching the existing one.
type Manager struct {
	mu     sync.Mutex
	active *Session
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{}
}

// Begin creates a session and claims the active slot. Returns
// ErrAlreadyActive if a session is live. The slot is released automatically
// when the session reaches a terminal state.
func (m *Manager) Begin(cfg Config) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && !m.active.State().terminal() {
		return nil, fmt.Errorf("session: %w", ErrAlreadyActive)
	}

	s, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s.onRelease = func() { m.release(s) }
	m.active = s

	slog.Debug("session: active slot claimed", "session_id", s.id)
	return s, nil
}

// Active returns the live session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.State().terminal() {
		return nil
	}
	return m.active
}

// release frees the slot once its session terminates.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == s {
		m.active = nil
		slog.Debug("session: active slot released", "session_id", s.id)
	}
}
