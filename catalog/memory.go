package catalog

import (
	"bytes"
	"context"
	"io"
	"slices"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store implementation for testing.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Get opens a document for reading.
func (m *MemoryStore) Get(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[name]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(data))), nil
}

// Put writes a document atomically.
func (m *MemoryStore) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = bytes.Clone(data)
	return nil
}

// Commit implements Committer.
func (m *MemoryStore) Commit(_ context.Context, name string, prev uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkVersion(m.docs[name], prev); err != nil {
		return err
	}
	m.docs[name] = bytes.Clone(data)
	return nil
}

// Delete removes a document.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, name)
	return nil
}

// List returns all documents matching the prefix.
func (m *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name := range m.docs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// checkVersion compares the version of the stored frame current (nil if
// missing) with prev.
func checkVersion(current []byte, prev uint64) error {
	var have uint64
	if current != nil {
		v, err := FrameVersion(current)
		if err != nil {
			return err
		}
		have = v
	}
	if have != prev {
		return ErrConflict
	}
	return nil
}
