package core

import "sync"

// State is a run-scoped key/value store shared by all node invocations of one
// run. All access is serialized through an RWMutex; Update provides an atomic
// read-modify-write so concurrent nodes cannot lose updates. One State
// instance exists per run and is never shared across runs.
type State struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewState creates an empty state store.
func NewState() *State {
	return &State{values: map[string]any{}}
}

// Get returns the value stored under key and whether it was present.
func (s *State) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.values[key] = value
}

// Delete removes key from the store. Deleting an absent key is a no-op.
func (s *State) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.values, key)
}

// Update applies fn to the current value of key (nil, false when absent) and
// stores the result, all under the write lock. Concurrent Update calls on the
// same key serialize, so increments and merges never lose writes.
func (s *State) Update(key string, fn func(current any, ok bool) any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.values[key]
	s.values[key] = fn(current, ok)
}

// Keys returns the currently stored keys in unspecified order.
func (s *State) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	return keys
}

// Snapshot returns a shallow copy of the current contents.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(map[string]any, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	return snap
}

// Len returns the number of stored keys.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.values)
}
