package record

import (
	"context"
	"time"

	"github.com/machinalis/featureforge"
)

// ListOpts controls filtering and pagination for record list queries.
type ListOpts struct {
	// Status filters by record status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of records to return. Zero means no limit.
	Limit int
	// Offset is the number of records to skip.
	Offset int
}

// Store defines the persistence contract the claim protocol consumes.
// Every mutation is a conditioned atomic operation; no method ever
// unconditionally overwrites another owner's record. Implementations
// return featureforge sentinel errors for the conditions below and wrap
// transport failures so they satisfy
// errors.Is(err, featureforge.ErrStoreUnavailable).
type Store interface {
	// CreateRecord atomically persists a new Booked record. Returns
	// featureforge.ErrRecordExists iff the key is already present —
	// of any number of racing creates for one key, exactly one succeeds.
	CreateRecord(ctx context.Context, rec *Record) error

	// GetRecord retrieves the record for key, or
	// featureforge.ErrRecordNotFound.
	GetRecord(ctx context.Context, key string) (*Record, error)

	// SwapBookedAt atomically re-books a stale claim: it sets BookedAt to
	// next (and BookedBy to by) iff the record is still Booked and its
	// stored BookedAt equals expected. A failed condition returns
	// featureforge.ErrClaimConflict — the caller lost the race and must
	// treat the key as owned elsewhere.
	SwapBookedAt(ctx context.Context, key string, expected, next time.Time, by string) error

	// WriteResults atomically transitions the record for key from Booked
	// to Solved with the given results. Called only after ownership was
	// established. If the record is no longer Booked — a usurper already
	// solved it — the write is rejected with featureforge.ErrClaimConflict
	// and the stored results stand.
	WriteResults(ctx context.Context, key string, results featureforge.Results, solvedAt time.Time) error

	// ListRecords returns records for external inspection tooling. The
	// claim protocol never calls it.
	ListRecords(ctx context.Context, opts ListOpts) ([]*Record, error)
}
