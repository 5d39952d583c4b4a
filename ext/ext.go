// Package ext defines the extension system for featureforge.
// Extensions are notified of claim-protocol lifecycle events (experiment
// booked, skipped, solved, failed, etc.) and can react to them — logging,
// metrics, audit, etc.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
package ext

import (
	"context"
	"time"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ExperimentBooked is called after a worker wins a claim, whether by
// creating the record or by re-booking a stale one.
type ExperimentBooked interface {
	OnExperimentBooked(ctx context.Context, rec *record.Record) error
}

// ExperimentSkipped is called when a backlog item is passed over because
// its record is already solved or actively booked elsewhere.
type ExperimentSkipped interface {
	OnExperimentSkipped(ctx context.Context, key string) error
}

// ExperimentSolved is called after the worker stores the results of an
// experiment it claimed and ran.
type ExperimentSolved interface {
	OnExperimentSolved(ctx context.Context, rec *record.Record, elapsed time.Duration) error
}

// ExperimentFailed is called when a claimed experiment's function returns
// an error or panics. The record stays Booked pending lease expiry.
type ExperimentFailed interface {
	OnExperimentFailed(ctx context.Context, rec *record.Record, err error) error
}

// ExperimentOvertaken is called when an experiment finished but its
// results were rejected because another worker had already re-claimed or
// solved the key.
type ExperimentOvertaken interface {
	OnExperimentOvertaken(ctx context.Context, rec *record.Record) error
}

// ConfigRejected is called when a backlog item cannot be canonicalized
// (or its extender failed) and is dropped from the run.
type ConfigRejected interface {
	OnConfigRejected(ctx context.Context, cfg featureforge.Config, err error) error
}

// RunFinished is called once when a worker exhausts its backlog.
type RunFinished interface {
	OnRunFinished(ctx context.Context, summary featureforge.Summary) error
}
