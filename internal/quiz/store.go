package quiz

import (
	"log/slog"
	"sync"
	"time"
)

// Store keeps the in-memory sessions keyed by their session-cookie token.
// Sessions are created on first access and dropped when idle.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	backend      Backend
	broker       Broker
	audioBaseURL string
	rates        []float64
	logger       *slog.Logger
}

// NewStore creates an empty session store.
func NewStore(backend Backend, broker Broker, audioBaseURL string, rates []float64, logger *slog.Logger) *Store {
	return &Store{
		mu:           sync.RWMutex{},
		sessions:     make(map[string]*Session),
		backend:      backend,
		broker:       broker,
		audioBaseURL: audioBaseURL,
		rates:        rates,
		logger:       logger,
	}
}

// Get returns the session for id, creating a fresh one on first access.
func (st *Store) Get(id string) *Session {
	st.mu.RLock()
	session, ok := st.sessions[id]
	st.mu.RUnlock()
	if ok {
		return session
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if session, ok = st.sessions[id]; ok {
		return session
	}
	session = NewSession(id, st.backend, st.broker, st.audioBaseURL, st.rates, st.logger)
	st.sessions[id] = session
	return session
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Sweep drops sessions that have been idle for longer than maxIdle. It is
// meant to be called periodically, aligned with the session-cookie lifetime.
func (st *Store) Sweep(maxIdle time.Duration) {
	now := time.Now()
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, session := range st.sessions {
		if session.idleFor(now) > maxIdle {
			delete(st.sessions, id)
		}
	}
}

// SweepPeriodically runs Sweep every interval until stop is closed.
func (st *Store) SweepPeriodically(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			st.Sweep(maxIdle)
		}
	}
}
