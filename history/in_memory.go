package history

import (
	"fmt"
	"sync"

	"github.com/flowmesh/flowmesh/core"
)

// Store records the events delivered during workflow runs for later
// inspection. Implementations must be safe for concurrent use; the runner
// appends from one goroutine per run but multiple runs append concurrently.
type Store interface {
	// Append records a delivered event for the given run.
	Append(runID string, ev core.Event) error

	// Get returns the recorded events for a run in delivery order.
	Get(runID string) ([]core.Event, error)

	// List returns the IDs of all recorded runs.
	List() []string
}

// InMemoryStore is a volatile Store implementation keeping run histories in a
// process local map. It is safe for concurrent access and best suited for
// tests or ephemeral demo setups. Returned slices are copies to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu   sync.RWMutex
	runs map[string][]core.Event
}

// NewInMemoryStore constructs an empty in-memory history store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{runs: make(map[string][]core.Event)}
}

// Append records an event for a run, creating the run entry lazily.
func (s *InMemoryStore) Append(runID string, ev core.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[runID] = append(s.runs[runID], ev)

	return nil
}

// Get returns a copy of the recorded events for a run in delivery order.
func (s *InMemoryStore) Get(runID string) ([]core.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	return append([]core.Event{}, events...), nil
}

// List returns the IDs of all recorded runs in unspecified order.
func (s *InMemoryStore) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}

	return ids
}
