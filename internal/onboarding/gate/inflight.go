package gate

import "sync"

// InFlight records which users have a step submission running. A nil
// InFlight admits everything and leaves the per-gate pending flag as the
// only guard.
type InFlight struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func NewInFlight() *InFlight {
	return &InFlight{users: make(map[string]struct{})}
}

func (f *InFlight) acquire(userID string) bool {
	if f == nil {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; ok {
		return false
	}
	f.users[userID] = struct{}{}
	return true
}

func (f *InFlight) release(userID string) {
	if f == nil {
		return
	}
	f.mu.Lock()
	delete(f.users, userID)
	f.mu.Unlock()
}
