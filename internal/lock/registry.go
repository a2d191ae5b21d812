// Package lock serializes work per project.
package lock

import "sync"

// Registry hands out one mutex per project, created on first use and kept
// for the life of the process.
type Registry struct {
	mu    sync.RWMutex
	locks map[string]*sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
	}
}

// Lock blocks until the project's lock is held and returns its release func.
func (r *Registry) Lock(name string) (unlock func()) {
	m := r.get(name)
	m.Lock()

	return m.Unlock
}

// Len returns the number of projects that have a lock.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.locks)
}

func (r *Registry) get(name string) *sync.Mutex {
	// Try read lock first
	r.mu.RLock()
	m, exists := r.locks[name]
	r.mu.RUnlock()

	if exists {
		return m
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if m, exists = r.locks[name]; exists {
		return m
	}

	m = &sync.Mutex{}
	r.locks[name] = m

	return m
}
