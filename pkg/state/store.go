package state

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Reader is the read side of a Store.
type Reader interface {
	// Get returns the value at key. The bool reports whether the key exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Iterate calls fn for every key with the given prefix in ascending key order until fn returns
	// false.
	Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) bool) error
}

// Store is a durable key/value backend.
type Store interface {
	Reader

	// Apply writes the batch atomically: either every op is visible afterwards or none is.
	Apply(ctx context.Context, batch Batch) error

	Close() error
}

// Op is one write in a Batch. A nil Value deletes the key.
type Op struct {
	Key   string
	Value []byte
}

// Batch is an ordered list of writes.
type Batch []Op

// -------------------------------------------------------------------------------------------------
// In-memory store
// -------------------------------------------------------------------------------------------------

var _ Store = (*MemStore)(nil)

// MemStore is a Store backed by a map. It is used for dev nodes and tests.
type MemStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string][]byte)}
}

func (m *MemStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(v), true, nil
}

func (m *MemStore) Iterate(_ context.Context, prefix string, fn func(string, []byte) bool) error {
	m.mu.RLock()
	keys := make([]string, 0)
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = slices.Clone(m.data[k])
	}
	m.mu.RUnlock()

	for i, k := range keys {
		if !fn(k, values[i]) {
			return nil
		}
	}
	return nil
}

func (m *MemStore) Apply(_ context.Context, batch Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range batch {
		if op.Value == nil {
			delete(m.data, op.Key)
			continue
		}
		m.data[op.Key] = slices.Clone(op.Value)
	}
	return nil
}

func (m *MemStore) Close() error { return nil }

// Len returns the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
