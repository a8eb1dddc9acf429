package credentials

import "sync"

// InMemoryRepo is a thread-safe in-memory implementation of Repo.
type InMemoryRepo struct {
	mu      sync.RWMutex
	bundles map[string]Bundle
}

// NewInMemoryRepo creates a new in-memory credential repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		bundles: make(map[string]Bundle),
	}
}

// Store replaces the bundle stored under name.
func (r *InMemoryRepo) Store(name string, bundle Bundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bundles[name] = bundle
	return nil
}

// Get retrieves a bundle by name. Returns a copy to prevent external
// modification of the stored value.
func (r *InMemoryRepo) Get(name string) (*Bundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bundle, exists := r.bundles[name]
	if !exists {
		return nil, ErrNotFound
	}
	copied := bundle
	return &copied, nil
}

// Remove deletes a bundle by name. Removing an absent bundle is a no-op.
func (r *InMemoryRepo) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.bundles, name)
	return nil
}
