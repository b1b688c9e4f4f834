package usecase

import (
	"context"
	"log"
	"sync"
	"time"
)

// SessionManager owns the live sessions, one per browser session id.
type SessionManager struct {
	deps SessionDeps

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(deps SessionDeps) *SessionManager {
	return &SessionManager{deps: deps, sessions: make(map[string]*Session)}
}

// Get returns the running session for id, creating and starting it on
// first use.
func (m *SessionManager) Get(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = NewSession(id, m.deps)
		m.sessions[id] = s
		s.Start()
	}
	s.Touch()
	return s
}

func (m *SessionManager) Dispose(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Dispose(ctx)
	}
}

// EvictIdle disposes sessions not seen for maxIdle and reports how many
// were removed.
func (m *SessionManager) EvictIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	var idle []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Dispose(ctx)
	}
	if len(idle) > 0 {
		log.Printf("evicted %d idle sessions", len(idle))
	}
	return len(idle)
}

// Close stops every session; used on shutdown.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Stop()
		}()
	}
	wg.Wait()
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
