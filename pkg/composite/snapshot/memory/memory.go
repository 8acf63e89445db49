package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tendant/simple-composite/pkg/composite"
)

// Store is an in-memory implementation of composite.SnapshotStore
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates a new in-memory snapshot store
func New() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

var _ composite.SnapshotStore = (*Store)(nil)

// Put stores a copy of data under key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Get returns a copy of the snapshot stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[key]
	if !exists {
		return nil, fmt.Errorf("%w: %s", composite.ErrSnapshotNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// Exists reports whether key holds a snapshot
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[key]
	return exists, nil
}

// Keys lists the stored keys with the given prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
