package interfaces

import "context"

// Store owns the datastore handle for the process lifetime and hands out
// request-scoped gateways.
type Store interface {
	// Acquire reserves one connection (or session) for a request. The
	// returned gateway must be closed on every exit path.
	Acquire(ctx context.Context) (Gateway, error)

	// Ping checks the datastore is reachable
	Ping(ctx context.Context) error

	// Bootstrap creates the tables/collections and indexes if missing
	Bootstrap(ctx context.Context) error

	// Close releases the underlying handle
	Close() error
}

// Gateway is the persistence surface available to a single request
type Gateway interface {
	ReadingRepository
	ThresholdRepository
	UserRepository

	// Close releases the connection back to the pool. Safe to call twice.
	Close() error
}
