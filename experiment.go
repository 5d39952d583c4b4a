package featureforge

import (
	"context"
	"encoding/json"
)

// Config is one experiment configuration: a mapping of string keys to
// JSON-safe values — string, number, bool, nil, ordered sequence ([]any),
// unordered collection (Set), or a nested map — recursively. Two configs
// describe the same experiment iff they are structurally equal under this
// model, where Sets compare ignoring element order and sequences compare
// in order.
type Config map[string]any

// Set is an unordered collection value inside a Config. Element order is
// ignored when deriving the canonical key: Set{"a", "b"} and Set{"b", "a"}
// identify the same experiment, while []any{"a", "b"} and []any{"b", "a"}
// do not.
type Set []any

// Results is the mapping an experiment function produces on success.
type Results map[string]any

// ExperimentFunc runs a single experiment for the given configuration and
// returns its results. It is fully opaque to the protocol: unbounded in
// duration, free to panic, free to fail. A slow experiment blocks only its
// own worker's progress, never other workers or other keys.
type ExperimentFunc func(ctx context.Context, cfg Config) (Results, error)

// Extender augments a configuration before it is canonicalized and claimed,
// e.g. attaching the current git revision or a dataset fingerprint. It must
// be deterministic for a given input: two workers extending the same raw
// config must arrive at the same canonical key.
type Extender func(cfg Config) (Config, error)

// Clone returns a deep copy of the config. Configurations are passed by
// value end to end; no component mutates a caller's map in place.
func (c Config) Clone() Config {
	if c == nil {
		return nil
	}
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

// Clone returns a deep copy of the results mapping.
func (r Results) Clone() Results {
	if r == nil {
		return nil
	}
	out := make(Results, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Config:
		return t.Clone()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case Set:
		out := make(Set, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		// Scalars (string, numbers, bool, nil, json.Number) are immutable.
		return v
	}
}

// Summary aggregates the per-item outcomes of one backlog run.
type Summary struct {
	// Solved counts experiments this worker claimed, ran, and stored.
	Solved int `json:"solved"`
	// Skipped counts items already solved or actively booked elsewhere.
	Skipped int `json:"skipped"`
	// Rejected counts items whose configuration could not be canonicalized.
	Rejected int `json:"rejected"`
	// Failed counts claimed experiments whose function returned an error
	// or panicked; their records stay Booked pending lease expiry.
	Failed int `json:"failed"`
	// Overtaken counts experiments this worker finished after another
	// worker had already re-claimed or solved the key, so the results
	// were discarded.
	Overtaken int `json:"overtaken"`
}

// Total returns the number of backlog items accounted for.
func (s Summary) Total() int {
	return s.Solved + s.Skipped + s.Rejected + s.Failed + s.Overtaken
}

// String renders the summary as a single JSON object, convenient for logs.
func (s Summary) String() string {
	b, _ := json.Marshal(s)
	return string(b)
}
