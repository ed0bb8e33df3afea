package reqctx

import "sync"

// Store maps request ids to their contexts. It is owned by the lifecycle
// manager and shared with the callback bridge and the translator.
type Store struct {
	mu   sync.RWMutex
	ctxs map[string]*Context
}

func NewStore() *Store { return &Store{ctxs: make(map[string]*Context)} }

// Create registers a fresh context under id, replacing any previous one.
func (s *Store) Create(id string) *Context {
	c := newContext(id)
	s.mu.Lock()
	s.ctxs[id] = c
	s.mu.Unlock()
	return c
}

func (s *Store) Get(id string) (*Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.ctxs[id]
	return c, ok
}

// Delete removes id and reports whether it was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ctxs[id]; !ok {
		return false
	}
	delete(s.ctxs, id)
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ctxs)
}
