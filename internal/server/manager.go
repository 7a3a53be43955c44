// manager.go

// Registry operations. Lookups are case-insensitive and scan in insertion
// order, so the first session registered under a name wins a lookup until it
// is removed. Broadcast snapshots the session list and writes outside the lock.
package server

import "strings"

// Add registers s. Sessions sharing a name are allowed.
func (m *ClientManager) Add(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, s)
}

// Remove unregisters exactly s and reports whether it was registered.
func (m *ClientManager) Remove(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.sessions {
		if existing == s {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// RemoveByName unregisters every session whose current name matches and
// returns them.
func (m *ClientManager) RemoveByName(name string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed []*Session
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if strings.EqualFold(s.Name(), name) {
			removed = append(removed, s)
			continue
		}
		kept = append(kept, s)
	}
	for i := len(kept); i < len(m.sessions); i++ {
		m.sessions[i] = nil
	}
	m.sessions = kept
	return removed
}

// Find returns the first session registered under name.
func (m *ClientManager) Find(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if strings.EqualFold(s.Name(), name) {
			return s, true
		}
	}
	return nil, false
}

// Broadcast sends text to every registered session and returns how many
// writes succeeded. A failed write does not stop the fan-out.
func (m *ClientManager) Broadcast(text string) int {
	delivered := 0
	for _, s := range m.Sessions() {
		if s.Send(text) {
			delivered++
		}
	}
	return delivered
}

// Sessions returns a copy of the registered sessions.
func (m *ClientManager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, len(m.sessions))
	copy(out, m.sessions)
	return out
}

// Snapshot returns the registered names at call time.
func (m *ClientManager) Snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.sessions))
	for _, s := range m.sessions {
		names = append(names, s.Name())
	}
	return names
}

// Infos returns id, name and remote address of every registered session.
func (m *ClientManager) Infos() []ClientInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]ClientInfo, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, ClientInfo{ID: s.ID(), Name: s.Name(), Remote: s.RemoteAddr()})
	}
	return infos
}

// Len returns the number of registered sessions.
func (m *ClientManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Clear unregisters everything and returns what was registered.
func (m *ClientManager) Clear() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sessions
	m.sessions = nil
	return out
}
