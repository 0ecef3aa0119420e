package config

import "sync"

// LiveState holds the live configuration fields behind a lock so an explicit
// save can apply them to in-flight request handling without a restart. Cold
// fields have no such holder: they are read once at startup, by design.
type LiveState struct {
	mu     sync.RWMutex
	fields LiveFields
}

// NewLiveState creates a LiveState seeded from the loaded configuration.
func NewLiveState(fields LiveFields) *LiveState {
	return &LiveState{fields: fields}
}

// Snapshot returns a copy of the current live fields.
func (s *LiveState) Snapshot() LiveFields {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.fields
}

// Update replaces the live fields. Called only from the explicit config save
// path; configuration never changes implicitly.
func (s *LiveState) Update(fields LiveFields) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fields = fields
}
