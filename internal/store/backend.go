package store

import "context"

// Backend persists entities. Implementations must be safe for concurrent use
// and must copy entities in and out so that callers never share attribute
// maps with the stored state.
type Backend interface {
	// Get returns the entity at key, or nil when there is none.
	Get(ctx context.Context, key Key) (Entity, error)
	Put(ctx context.Context, key Key, entity Entity) error
	// Delete removes the entity at key and reports whether it existed.
	Delete(ctx context.Context, key Key) (bool, error)
	// Scan returns every entity of the type, in no particular order.
	Scan(ctx context.Context, entityType string) ([]Entity, error)
	Close() error
}
