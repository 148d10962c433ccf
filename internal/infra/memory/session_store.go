package memory

import (
	"context"
	"sync"
)

// SessionRegistry tracks which session codes are held by a live host in this process.
type SessionRegistry struct {
	mu    sync.Mutex
	codes map[string]struct{}
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		codes: make(map[string]struct{}),
	}
}

// Reserve claims code, returning false if it is already taken.
func (r *SessionRegistry) Reserve(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.codes[code]; ok {
		return false, nil
	}
	r.codes[code] = struct{}{}
	return true, nil
}

func (r *SessionRegistry) Release(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, code)
	return nil
}

func (r *SessionRegistry) Live(_ context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.codes[code]
	return ok, nil
}
