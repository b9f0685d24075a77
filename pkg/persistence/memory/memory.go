package memory

import (
	"sync"

	"github.com/dropop-labs/dropop-go/pkg/persistence"
)

// MemoryPersistence is an in-memory implementation of IKVStore.
//
// All data is stored in memory and will be lost when the process exits.
// Thread-safe using sync.RWMutex for concurrent access.
// Values are copied on the way in and out to prevent external mutation.
type MemoryPersistence struct {
	mu sync.RWMutex

	data map[string][]byte

	// Closed flag
	closed bool
}

// NewMemoryPersistence creates a new in-memory persistence layer.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		data: make(map[string][]byte),
	}
}

// Get returns the value stored under key, or nil if the key doesn't exist.
func (m *MemoryPersistence) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, persistence.ErrClosed
	}

	v, ok := m.data[string(key)]
	if !ok {
		return nil, nil // Not found is not an error
	}
	return append([]byte{}, v...), nil
}

// Set stores value under key.
func (m *MemoryPersistence) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	m.data[string(key)] = append([]byte{}, value...)
	return nil
}

// WriteBatch applies all writes under a single lock acquisition.
func (m *MemoryPersistence) WriteBatch(writes []persistence.KV) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return persistence.ErrClosed
	}

	for _, w := range writes {
		m.data[string(w.Key)] = append([]byte{}, w.Value...)
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryPersistence) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Close marks the persistence layer as closed.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}

// HealthCheck verifies the persistence layer is operational.
func (m *MemoryPersistence) HealthCheck() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return persistence.ErrClosed
	}
	return nil
}
