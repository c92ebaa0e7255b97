package watch

import "sync"

// Registry holds at most one watch session per controller. The session
// itself carries no global state; callers that must not race two watch
// processes over one reporting channel get reuse here instead of a
// package-level singleton.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the controller's session, creating it with newFn
// on first use.
func (r *Registry) GetOrCreate(controllerID string, newFn func() *Session) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[controllerID]; ok {
		return s
	}
	s := newFn()
	r.sessions[controllerID] = s
	return s
}

// Get returns the controller's session, or nil.
func (r *Registry) Get(controllerID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[controllerID]
}

// Remove disposes and drops the controller's session.
func (r *Registry) Remove(controllerID string) {
	r.mu.Lock()
	s := r.sessions[controllerID]
	delete(r.sessions, controllerID)
	r.mu.Unlock()
	if s != nil {
		s.Dispose()
	}
}
