package terminal

import (
	"log/slog"
	"sync"

	"github.com/ccdev-ai/ccdev-backend/internal/historydb"
	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
)

// Registry owns the live terminal sessions, keyed by client-supplied id so a
// reconnecting client lands back in its session.
type Registry struct {
	gw      sandbox.Gateway
	store   *historydb.Store
	histMax int
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. store may be nil, in which case history is
// in-memory only.
func NewRegistry(gw sandbox.Gateway, store *historydb.Store, histMax int, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		gw:       gw,
		store:    store,
		histMax:  histMax,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id, creating it on first use.
func (r *Registry) Get(id string) *Session {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		return s
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s
	}
	s = newSession(id, r.gw, r.store, r.histMax, r.log)
	r.sessions[id] = s
	r.log.Info("terminal session created", "session", id)
	return s
}

// Lookup returns the session for id without creating one.
func (r *Registry) Lookup(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the ids of all live sessions.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}
