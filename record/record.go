package record

import (
	"time"

	"github.com/machinalis/featureforge"
)

// Status represents the lifecycle state of an experiment record.
type Status string

const (
	// StatusBooked means a worker holds a claim on the experiment and is
	// (or was, until it crashed) executing it.
	StatusBooked Status = "booked"
	// StatusSolved means the experiment finished and its results are stored.
	StatusSolved Status = "solved"
)

// Record is the persisted entity for one experiment, keyed by the canonical
// key of its configuration. A record is created only by a successful claim,
// transitions Booked to Solved exactly once per generation of ownership,
// and is never deleted — the store doubles as an audit trail of every
// experiment ever attempted.
type Record struct {
	// Key is the canonical identity key of the configuration.
	Key string `json:"key"`
	// Status is Booked or Solved.
	Status Status `json:"status"`
	// BookedAt is when the current owner took the claim. A Booked record
	// may be reclaimed by a different owner once its lease expires,
	// producing a new BookedAt on the same record.
	BookedAt time.Time `json:"booked_at"`
	// BookedBy is the worker ID string of the claim holder, for inspection.
	BookedBy string `json:"booked_by,omitempty"`
	// SolvedAt is set by the transition to Solved.
	SolvedAt *time.Time `json:"solved_at,omitempty"`
	// Config carries the full (extended) configuration for inspection.
	Config featureforge.Config `json:"config"`
	// Results is present iff Status is Solved.
	Results featureforge.Results `json:"results,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Config = r.Config.Clone()
	cp.Results = r.Results.Clone()
	if r.SolvedAt != nil {
		t := *r.SolvedAt
		cp.SolvedAt = &t
	}
	return &cp
}
