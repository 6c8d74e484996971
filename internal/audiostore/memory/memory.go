// Package memory keeps audio artifacts in process memory, for tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"linkcast/internal/cast"
)

// Store holds artifacts in a map.
type Store struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// New creates an empty Store.
func New() *Store {
	return &Store{blobs: make(map[string][]byte)}
}

// Put stores the artifact bytes under name.
func (s *Store) Put(_ context.Context, name, _ string, data io.Reader) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = b
	return "memory://" + name, nil
}

// Open returns a reader over the stored bytes, or cast.ErrNotFound.
func (s *Store) Open(_ context.Context, name string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[name]
	if !ok {
		return nil, fmt.Errorf("audio %s: %w", name, cast.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

var _ cast.AudioStore = (*Store)(nil)
