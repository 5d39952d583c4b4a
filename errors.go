package featureforge

import "errors"

var (
	// Configuration errors.
	ErrNoStore          = errors.New("featureforge: no store configured")
	ErrNoExperiment     = errors.New("featureforge: no experiment function configured")
	ErrUnsupportedValue = errors.New("featureforge: unsupported configuration value")

	// Record errors.
	ErrRecordNotFound = errors.New("featureforge: record not found")
	ErrRecordExists   = errors.New("featureforge: record already exists")

	// ErrClaimConflict reports a lost claim race: a conditional create or
	// compare-and-swap found the record already owned, or already solved.
	// It is the expected outcome of concurrent workers and is absorbed
	// inside the claim protocol, never surfaced from a run.
	ErrClaimConflict = errors.New("featureforge: claim conflict")

	// ErrStoreUnavailable reports that the store is unreachable or a
	// write's durability could not be confirmed. Fatal to a run: the
	// protocol depends on every transition being durably committed
	// before it is acted on.
	ErrStoreUnavailable = errors.New("featureforge: store unavailable")
)
