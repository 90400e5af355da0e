package leasekeeper

import (
	"context"
)

// Store is the single source of truth for resources and their leases.
//
// Implementations must make CompareAndSet atomic per resource name: the write happens only if
// the stored lease still equals expected. They report ErrNotFound, ErrConflict and
// ErrAlreadyExists (possibly wrapped); any other error is treated as the store being unavailable.
type Store interface {
	// Get returns the resource with its stored lease, without applying expiry.
	Get(ctx context.Context, name string) (Resource, error)

	// List returns every resource ordered by name.
	List(ctx context.Context) ([]Resource, error)

	// CompareAndSet replaces the lease of name with next if it still equals expected.
	CompareAndSet(ctx context.Context, name string, expected, next Lease) error

	// Create inserts a resource. The stored lease is whatever res carries, normally free.
	Create(ctx context.Context, res Resource) error

	// Delete removes a resource and its lease.
	Delete(ctx context.Context, name string) error
}
