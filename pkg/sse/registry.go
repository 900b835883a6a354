package sse

import (
	"sync"
	"time"
)

// SessionInfo is a point-in-time snapshot of one session for listings.
type SessionInfo struct {
	ID        string    `json:"id"`
	Route     string    `json:"route"`
	State     State     `json:"state"`
	StartedAt time.Time `json:"started_at"`
	Sequence  uint64    `json:"sequence"`
}

// Registry tracks the engine's live sessions in memory. Registration is
// internal to the engine; consumers observe sessions through ListActive and
// Len, and shutdown paths cancel everything through CancelAll.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

func (r *Registry) register(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID()] = s
}

func (r *Registry) unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// ListActive returns snapshots of all registered sessions.
func (r *Registry) ListActive() []SessionInfo {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.Info())
	}
	return infos
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CancelAll cancels every registered session. Terminal transitions
// unregister sessions, so the registry drains as cancellations land.
func (r *Registry) CancelAll() {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Cancel()
	}
}
