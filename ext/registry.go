package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type bookedEntry struct {
	name string
	hook ExperimentBooked
}

type skippedEntry struct {
	name string
	hook ExperimentSkipped
}

type solvedEntry struct {
	name string
	hook ExperimentSolved
}

type failedEntry struct {
	name string
	hook ExperimentFailed
}

type overtakenEntry struct {
	name string
	hook ExperimentOvertaken
}

type rejectedEntry struct {
	name string
	hook ConfigRejected
}

type finishedEntry struct {
	name string
	hook RunFinished
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	booked    []bookedEntry
	skipped   []skippedEntry
	solved    []solvedEntry
	failed    []failedEntry
	overtaken []overtakenEntry
	rejected  []rejectedEntry
	finished  []finishedEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(ExperimentBooked); ok {
		r.booked = append(r.booked, bookedEntry{name, h})
	}
	if h, ok := e.(ExperimentSkipped); ok {
		r.skipped = append(r.skipped, skippedEntry{name, h})
	}
	if h, ok := e.(ExperimentSolved); ok {
		r.solved = append(r.solved, solvedEntry{name, h})
	}
	if h, ok := e.(ExperimentFailed); ok {
		r.failed = append(r.failed, failedEntry{name, h})
	}
	if h, ok := e.(ExperimentOvertaken); ok {
		r.overtaken = append(r.overtaken, overtakenEntry{name, h})
	}
	if h, ok := e.(ConfigRejected); ok {
		r.rejected = append(r.rejected, rejectedEntry{name, h})
	}
	if h, ok := e.(RunFinished); ok {
		r.finished = append(r.finished, finishedEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitExperimentBooked notifies all extensions implementing ExperimentBooked.
func (r *Registry) EmitExperimentBooked(ctx context.Context, rec *record.Record) {
	for _, e := range r.booked {
		if err := e.hook.OnExperimentBooked(ctx, rec); err != nil {
			r.logHookError("OnExperimentBooked", e.name, err)
		}
	}
}

// EmitExperimentSkipped notifies all extensions implementing ExperimentSkipped.
func (r *Registry) EmitExperimentSkipped(ctx context.Context, key string) {
	for _, e := range r.skipped {
		if err := e.hook.OnExperimentSkipped(ctx, key); err != nil {
			r.logHookError("OnExperimentSkipped", e.name, err)
		}
	}
}

// EmitExperimentSolved notifies all extensions implementing ExperimentSolved.
func (r *Registry) EmitExperimentSolved(ctx context.Context, rec *record.Record, elapsed time.Duration) {
	for _, e := range r.solved {
		if err := e.hook.OnExperimentSolved(ctx, rec, elapsed); err != nil {
			r.logHookError("OnExperimentSolved", e.name, err)
		}
	}
}

// EmitExperimentFailed notifies all extensions implementing ExperimentFailed.
func (r *Registry) EmitExperimentFailed(ctx context.Context, rec *record.Record, expErr error) {
	for _, e := range r.failed {
		if err := e.hook.OnExperimentFailed(ctx, rec, expErr); err != nil {
			r.logHookError("OnExperimentFailed", e.name, err)
		}
	}
}

// EmitExperimentOvertaken notifies all extensions implementing ExperimentOvertaken.
func (r *Registry) EmitExperimentOvertaken(ctx context.Context, rec *record.Record) {
	for _, e := range r.overtaken {
		if err := e.hook.OnExperimentOvertaken(ctx, rec); err != nil {
			r.logHookError("OnExperimentOvertaken", e.name, err)
		}
	}
}

// EmitConfigRejected notifies all extensions implementing ConfigRejected.
func (r *Registry) EmitConfigRejected(ctx context.Context, cfg featureforge.Config, cfgErr error) {
	for _, e := range r.rejected {
		if err := e.hook.OnConfigRejected(ctx, cfg, cfgErr); err != nil {
			r.logHookError("OnConfigRejected", e.name, err)
		}
	}
}

// EmitRunFinished notifies all extensions implementing RunFinished.
func (r *Registry) EmitRunFinished(ctx context.Context, summary featureforge.Summary) {
	for _, e := range r.finished {
		if err := e.hook.OnRunFinished(ctx, summary); err != nil {
			r.logHookError("OnRunFinished", e.name, err)
		}
	}
}

// logHookError logs a hook failure. Extensions observe the protocol; they
// never alter its outcome, so errors are logged and swallowed.
func (r *Registry) logHookError(hook, name string, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Error("extension hook failed",
		slog.String("hook", hook),
		slog.String("extension", name),
		slog.String("error", err.Error()),
	)
}
