package staterepo

import (
	"errors"
	"sync"
	"time"
)

var ErrStateNotFound = errors.New("state not found")

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu      sync.Mutex
	pending map[string]*PendingAuth
}

// NewInMemoryRepo creates a new in-memory pending-auth repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		pending: make(map[string]*PendingAuth),
	}
}

func (r *InMemoryRepo) Upsert(state string, pending *PendingAuth) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}
	if pending == nil {
		return errors.New("pending auth cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Copy to prevent external modifications
	params := make(map[string]string, len(pending.Params))
	for k, v := range pending.Params {
		params[k] = v
	}
	r.pending[state] = &PendingAuth{
		Provider:     pending.Provider,
		CodeVerifier: pending.CodeVerifier,
		Params:       params,
		CreatedAt:    pending.CreatedAt,
	}
	return nil
}

func (r *InMemoryRepo) Consume(state string) (*PendingAuth, error) {
	if state == "" {
		return nil, ErrStateNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pending, exists := r.pending[state]
	if !exists {
		return nil, ErrStateNotFound
	}
	delete(r.pending, state)
	return pending, nil
}

func (r *InMemoryRepo) DeleteExpired(cutoff time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for state, pending := range r.pending {
		if pending.CreatedAt.Before(cutoff) {
			delete(r.pending, state)
		}
	}
	return nil
}
