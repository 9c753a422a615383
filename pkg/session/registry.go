package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry tracks the live sessions of one orchestrator, keyed by generated
// id. Sessions are added by Create and stay registered until Destroy.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. Pass nil logger for a no-op one.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger.With(zap.String("component", "session_registry")),
	}
}

// Create registers a new pending session under a fresh id. The session
// logs through the registry logger unless opts say otherwise.
func (r *Registry) Create(transport Transport, callbacks Callbacks, opts ...Option) *Session {
	id := uuid.New().String()
	base := []Option{WithLogger(r.logger)}
	s := New(transport, callbacks, append(append(base, opts...), WithID(id))...)

	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()

	r.logger.Debug("session created", zap.String("session_id", id))
	return s
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Cancel cancels the session registered under id. It reports whether the
// session exists.
func (r *Registry) Cancel(id string) bool {
	s, ok := r.Get(id)
	if !ok {
		return false
	}
	s.Cancel()
	return true
}

// Destroy cancels the session registered under id and removes it. It
// reports whether the session existed.
func (r *Registry) Destroy(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return false
	}
	s.Cancel()
	r.logger.Debug("session destroyed", zap.String("session_id", id))
	return true
}

// List returns the ids of all registered sessions, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
