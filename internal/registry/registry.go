// Package registry tracks the live clients of this process. It is the
// volatile counterpart of the store: entries exist only while a client is
// connected and are never persisted.
package registry

import (
	"sync"

	"github.com/lk2023060901/sessiongate-go/internal/client"
	"github.com/lk2023060901/sessiongate-go/pkg/metrics"
	"github.com/lk2023060901/sessiongate-go/pkg/util/serr"
)

// Handle is one live session entry.
type Handle struct {
	Session string
	Company string
	Client  client.Client
}

// Registry is a concurrency-safe map of session id to live client handle.
// Register is check-and-insert under one lock acquisition, so two concurrent
// registrations of the same id cannot both succeed.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*Handle
}

func New() *Registry {
	return &Registry{
		handles: make(map[string]*Handle),
	}
}

// Register adds the handle. Fails with ErrSessionDuplicate when a handle for
// the same session id is already present, leaving the existing one intact.
func (r *Registry) Register(h *Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[h.Session]; ok {
		return serr.WrapErrSessionDuplicate(h.Session)
	}
	r.handles[h.Session] = h
	metrics.SessionsActive.Set(float64(len(r.handles)))
	return nil
}

// Get returns the handle for the given session id, if present.
func (r *Registry) Get(session string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[session]
	return h, ok
}

// Unregister removes the handle for the given session id. Fails with
// ErrSessionNotFound when no handle is present.
func (r *Registry) Unregister(session string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handles[session]; !ok {
		return serr.WrapErrSessionNotFound(session)
	}
	delete(r.handles, session)
	metrics.SessionsActive.Set(float64(len(r.handles)))
	return nil
}

// Range calls fn for every registered handle until fn returns false.
// fn must not call back into the registry.
func (r *Registry) Range(fn func(h *Handle) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.handles {
		if !fn(h) {
			return
		}
	}
}

// Count returns the number of registered handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handles)
}
