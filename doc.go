// Package featureforge provides a distributed experiment-booking protocol
// for Go. Many independent worker processes, sharing no memory and
// coordinated by no lock service, safely claim and execute items from a
// shared backlog of experiment configurations.
//
// Featureforge is designed as a library, not a service. Import it, configure
// a store, and run your backlog with an ordinary Go function as the
// experiment:
//
//	s := memory.New()
//	r, err := runner.New(s, func(ctx context.Context, cfg featureforge.Config) (featureforge.Results, error) {
//	    return trainAndScore(ctx, cfg)
//	})
//	summary, err := r.Run(ctx, backlog)
//
// # Protocol
//
// Every configuration is reduced to a canonical key (package canonical).
// A worker claims a key by atomically creating its record in the Booked
// state, or by compare-and-swapping the booking timestamp of a stale claim
// whose lease has expired (package record). The claim holder runs the
// experiment and writes the results in a single conditional update. A worker
// that crashes mid-run leaves its record Booked; once the lease elapses any
// other worker may reclaim it. Correctness and liveness both derive from the
// store's two atomic primitives, insert-if-absent and compare-and-swap,
// with no heartbeats and no consensus.
//
// # Stores
//
// Backends: Mongo, Postgres, Bun, Redis, and Memory. Any store offering
// atomic conditional writes can back the protocol; see package record for
// the contract.
//
// Worker identifiers use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package featureforge
