// Package memory stores capture artifacts in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// Store keeps artifact bytes in a map and hands out pseudo signed URLs.
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore creates a new in-memory object store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Put reads the file at srcPath and stores its content under name. It
// reports whether an existing object was overwritten.
func (s *Store) Put(_ context.Context, name, srcPath string) (bool, error) {
	content, err := os.ReadFile(srcPath)
	if err != nil {
		return false, fmt.Errorf("read artifact: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.data[name]
	s.data[name] = content
	return existed, nil
}

// SignedURL returns a pseudo URL carrying the expiration in the same Expires
// query parameter the real backend uses.
func (s *Store) SignedURL(_ context.Context, name string, expiry time.Duration) (string, error) {
	s.mu.RLock()
	_, ok := s.data[name]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("object %s does not exist", name)
	}
	return fmt.Sprintf("memory://archives/%s?Expires=%d", name, time.Now().Add(expiry).Unix()), nil
}

// Delete removes the named object. Missing objects are ignored.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// Get returns the stored content, for test assertions.
func (s *Store) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.data[name]
	return content, ok
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
