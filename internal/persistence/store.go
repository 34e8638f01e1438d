// ABOUTME: Key-value snapshot store interface and its in-memory implementation
// ABOUTME: Keys are opaque strings; values are the JSON-encoded snapshot

package persistence

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by SnapshotStore.Get when the key is absent.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore is a minimal key-value store for serialized snapshots.
type SnapshotStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is an in-memory SnapshotStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Get returns a copy of the value stored under key.
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Set stores a copy of value under key.
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Namespaced prefixes every key with a namespace, giving each visitor of a
// shared gateway its own view of one underlying store.
type Namespaced struct {
	store     SnapshotStore
	namespace string
}

// Namespace wraps store so that keys live under namespace.
func Namespace(store SnapshotStore, namespace string) *Namespaced {
	return &Namespaced{store: store, namespace: namespace}
}

func (n *Namespaced) key(k string) string {
	return n.namespace + "/" + k
}

// Get reads key within the namespace.
func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.store.Get(ctx, n.key(key))
}

// Set writes key within the namespace.
func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.store.Set(ctx, n.key(key), value)
}

// Delete removes key within the namespace.
func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.store.Delete(ctx, n.key(key))
}

var (
	_ SnapshotStore = (*MemoryStore)(nil)
	_ SnapshotStore = (*Namespaced)(nil)
	_ SnapshotStore = (*BoltStore)(nil)
)
