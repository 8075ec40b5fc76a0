package eventbridge

import "sync"

// Registry caches one Bridge per instance name.
type Registry struct {
	mu      sync.Mutex
	bridges map[string]*Bridge
}

func NewRegistry() *Registry {
	return &Registry{bridges: make(map[string]*Bridge)}
}

// Get returns the bridge for name, creating it on first use.
func (r *Registry) Get(name string) *Bridge {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bridges[name]
	if !ok {
		b = New()
		r.bridges[name] = b
	}
	return b
}

// Clear forgets every bridge.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges = make(map[string]*Bridge)
}
