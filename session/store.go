package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned by a Store when no snapshot with the requested
// session id exists.
var ErrNotFound = errors.New("session not found")

// Store persists session snapshots by session id.
type Store interface {
	// Save stores a snapshot, overwriting any previous snapshot with the
	// same session id.
	Save(state State) error

	// Load returns the snapshot with the given session id, or an error
	// wrapping ErrNotFound when it does not exist.
	Load(sessionID string) (State, error)

	// List returns the stored session ids in sorted order.
	List() ([]string, error)

	// Delete removes a stored snapshot. Deleting an absent id is a no-op.
	Delete(sessionID string) error
}

// InMemoryStore is a volatile Store keeping snapshots in a process-local
// map. It is safe for concurrent access and best suited for tests or
// ephemeral demos. Snapshots are deep-copied on the way in and out to
// prevent external mutation of stored state.
type InMemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewInMemoryStore constructs an empty in-memory session store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{states: make(map[string]State)}
}

// Save implements Store.
func (s *InMemoryStore) Save(state State) error {
	if state.Metadata.SessionID == "" {
		return errors.New("session id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.Metadata.SessionID] = state.clone()

	return nil
}

// Load implements Store.
func (s *InMemoryStore) Load(sessionID string) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sessionID]
	if !ok {
		return State{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}

	return state.clone(), nil
}

// List implements Store.
func (s *InMemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, sessionID)

	return nil
}
