package lms

import "context"

// Store is the durable key-value primitive the entity cache is built on.
// Values are opaque bytes; keys are flat strings.
type Store interface {
	// Get returns the value stored under key, or (nil, nil) if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// List returns all keys starting with prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}
