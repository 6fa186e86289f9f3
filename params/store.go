package params

import (
	"fmt"
	"sync"
)

// Store holds the current parameters. The settings collaborator writes it,
// the simulation takes one Snapshot per frame. Both sides only ever see
// whole values.
type Store struct {
	mu      sync.Mutex
	current Parameters
	version uint64
}

// NewStore creates a store holding p.
func NewStore(p Parameters) *Store {
	return &Store{current: p}
}

// Snapshot returns a copy of the current parameters.
func (s *Store) Snapshot() Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SnapshotVersion returns a copy of the current parameters together with
// the version they were written at.
func (s *Store) SnapshotVersion() (Parameters, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.version
}

// Write replaces the current parameters. Invalid parameters are rejected
// and the previous value is kept.
func (s *Store) Write(p Parameters) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("rejecting parameters: %w", err)
	}
	s.mu.Lock()
	s.current = p
	s.version++
	s.mu.Unlock()
	return nil
}

// Version returns the number of accepted writes.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}
