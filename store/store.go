// Package store defines the aggregate persistence interface. The record
// subsystem defines the claim-protocol contract; the composite Store adds
// lifecycle operations. Backends: Mongo, Postgres, Bun, Redis, and Memory.
package store

import (
	"context"

	"github.com/machinalis/featureforge/record"
)

// Store is the aggregate persistence interface a backend implements.
type Store interface {
	record.Store

	// Migrate creates the indexes or schema the backend requires.
	Migrate(ctx context.Context) error

	// Ping checks store connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
