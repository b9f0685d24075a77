package persistence

// IKVStore is the flat key-value capability the ledger keeps all of its state in.
// All implementations must be thread-safe: queries read committed state concurrently
// with the single ledger writer.
//
// The interface supports:
// - Point reads and writes by composite byte key
// - Atomic multi-key batches (a ledger call commits all of its writes or none)
// - Lifecycle management (close, health check)
type IKVStore interface {
	// Get returns the value stored under key.
	// Returns nil if the key doesn't exist, error only on storage failure.
	Get(key []byte) ([]byte, error)

	// Set stores value under key, overwriting any existing value.
	Set(key, value []byte) error

	// WriteBatch applies every write atomically. Either all writes become visible
	// to subsequent reads or none do. An empty batch is a no-op.
	WriteBatch(writes []KV) error

	// Close cleanly shuts down the store.
	// Idempotent - safe to call multiple times.
	// After Close(), all other operations should return errors.
	Close() error

	// HealthCheck verifies the store is operational.
	// Returns nil if healthy, error describing the problem if not.
	HealthCheck() error
}
