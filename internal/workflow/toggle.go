package workflow

import "sync"

// ToggleStore is the single authoritative click-enabled flag, shared by
// every workflow instance on a page through an explicit reference. It
// replaces the old process-wide broadcast key.
type ToggleStore struct {
	mu      sync.Mutex
	enabled bool
	subs    map[int]func(bool)
	nextID  int
}

func NewToggleStore(enabled bool) *ToggleStore {
	return &ToggleStore{enabled: enabled, subs: make(map[int]func(bool))}
}

func (s *ToggleStore) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Set updates the flag and notifies subscribers on change.
func (s *ToggleStore) Set(enabled bool) {
	s.mu.Lock()
	if s.enabled == enabled {
		s.mu.Unlock()
		return
	}
	s.enabled = enabled
	fns := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(enabled)
	}
}

// Subscribe registers a listener and returns its unsubscribe func.
func (s *ToggleStore) Subscribe(fn func(bool)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
