// Package memory provides a non-durable classification cache for tests and dry runs.
package memory

import (
	"context"
	"sync"
)

// Store keeps fingerprint -> label pairs in a map.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	puts    int
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[string]string)}
}

// Get returns the cached label for fingerprint.
func (s *Store) Get(_ context.Context, fingerprint string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	label, ok := s.entries[fingerprint]
	return label, ok, nil
}

// Put records fingerprint -> label.
func (s *Store) Put(_ context.Context, fingerprint, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[fingerprint] = label
	s.puts++
	return nil
}

// Len reports the number of cached entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Puts reports how many writes have been made, including overwrites.
func (s *Store) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
