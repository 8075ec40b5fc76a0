package identity

import "sync"

// Container groups the identity state of one named instance.
type Container struct {
	Manager *Manager
}

// Registry hands out one Container per instance name, so independently
// initialized modules of the same instance share an identity.
type Registry struct {
	mu        sync.Mutex
	instances map[string]*Container
}

func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]*Container)}
}

// Get returns the container for name, creating and loading it from storage
// on first use. Storage is ignored for existing containers.
func (r *Registry) Get(name string, storage Storage) (*Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.instances[name]; ok {
		return c, nil
	}
	manager := NewManager(storage)
	if err := manager.Load(); err != nil {
		return nil, err
	}
	c := &Container{Manager: manager}
	r.instances[name] = c
	return c, nil
}

// Clear forgets every container.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances = make(map[string]*Container)
}
