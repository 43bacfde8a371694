package subscription

import (
	"context"
	"sync"
)

// Store is one caller's set of subscriptions. It holds at most one active
// handle per collection name; subscribing again to a name replaces the
// previous handle.
type Store struct {
	manager *Manager

	mu     sync.Mutex
	active map[string]*Handle
	closed bool
}

// NewStore creates a store backed by the manager's shared listeners.
func (m *Manager) NewStore() *Store {
	return &Store{
		manager: m,
		active:  make(map[string]*Handle),
	}
}

// Subscribe starts following a collection and returns a handle in the
// Loading state. onChange, if not nil, is called with a fresh [View] after
// every state change, one call at a time per handle. It may run on a
// listener goroutine and should not block.
//
// If the store already holds a handle for name, that handle is unsubscribed
// after the new one has joined the shared listener, so the listener is
// reused rather than closed and reopened.
func (s *Store) Subscribe(name string, onChange func(View)) (*Handle, error) {
	if name == "" {
		return nil, ErrEmptyCollection
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	s.mu.Unlock()

	h := newHandle(name, s, onChange, s.manager.logger)
	s.manager.acquire(name, h)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.Unsubscribe()
		return nil, ErrStoreClosed
	}
	prev := s.active[name]
	s.active[name] = h
	s.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	return h, nil
}

// Active returns the store's current handle for name, if any.
func (s *Store) Active(name string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.active[name]
	return h, ok
}

// Close unsubscribes every handle and rejects further subscriptions.
// Safe to call multiple times.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Unsubscribe()
	}
}

// forget drops h from the active set if it is still the active handle.
func (s *Store) forget(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.active[h.name]; ok && cur == h {
		delete(s.active, h.name)
	}
}

// Await blocks until h leaves Loading, then returns its view. It is the
// caller-side timeout for a listener that never answers: bound ctx to give
// up. Await returns ctx's error on timeout and [ErrInvalidHandle] if h is
// unsubscribed while waiting.
func Await(ctx context.Context, h *Handle) (View, error) {
	select {
	case <-h.settled:
		return h.View()
	case <-h.done:
		return View{}, invalidHandle("Await")
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
