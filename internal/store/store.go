package store

import "errors"

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("key not found")

// Store is the persistence primitive: versionless key to blob. The auth token
// and the message queue are the only durable artifacts in the core.
type Store interface {
	// Get returns the blob for key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put writes the blob for key, replacing any previous value.
	Put(key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Close releases underlying resources.
	Close() error
}
