// Package runner implements the claim protocol: the loop that walks a
// backlog of experiment configurations and, for each one, canonicalizes,
// claims through the store, executes, and records the outcome.
//
// A Runner is single-threaded with respect to its backlog. Parallelism
// comes solely from running multiple independent Runner instances,
// potentially on different machines, against one shared store; mutual
// exclusion per key is enforced entirely by the store's atomic primitives,
// never by client-side coordination.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/canonical"
	"github.com/machinalis/featureforge/ext"
	"github.com/machinalis/featureforge/id"
	"github.com/machinalis/featureforge/middleware"
	"github.com/machinalis/featureforge/record"
)

// Runner processes a backlog of experiment configurations against a
// shared store. Create one with New and functional options.
type Runner struct {
	store      record.Store
	experiment featureforge.ExperimentFunc
	extender   featureforge.Extender
	lease      time.Duration
	haltOnErr  bool
	extensions *ext.Registry
	pendingExt []ext.Extension
	mw         middleware.Middleware
	extraMW    []middleware.Middleware
	logger     *slog.Logger
	limiter    *rate.Limiter
	workerID   id.WorkerID
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithExtender sets the configuration extender, applied to every backlog
// item before canonicalization. It must be deterministic for a given
// input or workers will disagree on experiment identity.
func WithExtender(e featureforge.Extender) Option {
	return func(r *Runner) { r.extender = e }
}

// WithLease sets the booking duration after which a Booked claim becomes
// reclaimable. Shorter leases recover crashed workers faster but raise
// the chance that a slow, still-running worker collides with a usurper.
func WithLease(d time.Duration) Option {
	return func(r *Runner) { r.lease = d }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithExtension registers a lifecycle extension.
func WithExtension(e ext.Extension) Option {
	return func(r *Runner) { r.pendingExt = append(r.pendingExt, e) }
}

// WithMiddleware appends middleware around experiment execution. The
// built-in Recover middleware always runs innermost so panics reach the
// caller's middleware as ordinary errors.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(r *Runner) { r.extraMW = append(r.extraMW, mws...) }
}

// WithHaltOnExperimentError makes an experiment failure abort the run
// instead of the default log-and-continue.
func WithHaltOnExperimentError() Option {
	return func(r *Runner) { r.haltOnErr = true }
}

// WithRateLimit bounds claim attempts per second, protecting a shared
// store from workers hot-looping over an already-solved backlog.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Runner) { r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithWorkerID overrides the generated worker identifier.
func WithWorkerID(w id.WorkerID) Option {
	return func(r *Runner) { r.workerID = w }
}

// WithClock overrides the time source. Booking timestamps and lease
// decisions use this clock; tests use it to reach into lease expiry
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// New creates a Runner for the given store and experiment function.
func New(store record.Store, experiment featureforge.ExperimentFunc, opts ...Option) (*Runner, error) {
	if store == nil {
		return nil, featureforge.ErrNoStore
	}
	if experiment == nil {
		return nil, featureforge.ErrNoExperiment
	}

	r := &Runner{
		store:      store,
		experiment: experiment,
		lease:      record.DefaultLease,
		logger:     slog.Default(),
		workerID:   id.NewWorkerID(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.extensions = ext.NewRegistry(r.logger)
	for _, e := range r.pendingExt {
		r.extensions.Register(e)
	}

	// Recover runs innermost so a panicking experiment surfaces to the
	// rest of the chain, and to the protocol, as a plain error.
	chain := append([]middleware.Middleware{}, r.extraMW...)
	chain = append(chain, middleware.Recover(r.logger))
	r.mw = middleware.Chain(chain...)

	return r, nil
}

// WorkerID returns this runner's unique worker identifier.
func (r *Runner) WorkerID() id.WorkerID { return r.workerID }

// Run processes the backlog strictly in input order and returns a summary
// of per-item outcomes. Configuration problems and experiment failures
// are reported per item and never halt the batch (unless
// WithHaltOnExperimentError); store communication failures abort the run
// immediately, since correctness depends on every transition being
// durably committed before it is acted on.
//
// There is no cross-worker "batch complete" signal: Run returning only
// means this worker's backlog is exhausted.
func (r *Runner) Run(ctx context.Context, backlog []featureforge.Config) (featureforge.Summary, error) {
	var summary featureforge.Summary

	r.logger.Info("backlog run starting",
		slog.String("worker_id", r.workerID.String()),
		slog.Int("items", len(backlog)),
		slog.Duration("lease", r.lease),
	)

	for i, raw := range backlog {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return summary, err
			}
		}

		cfg := raw.Clone()

		if r.extender != nil {
			extended, err := r.extender(cfg)
			if err != nil {
				summary.Rejected++
				r.logger.Error("extender rejected configuration",
					slog.Int("item", i),
					slog.String("error", err.Error()),
				)
				r.extensions.EmitConfigRejected(ctx, cfg, err)
				continue
			}
			cfg = extended
		}

		key, err := canonical.Key(cfg)
		if err != nil {
			summary.Rejected++
			r.logger.Error("configuration cannot be canonicalized",
				slog.Int("item", i),
				slog.String("error", err.Error()),
			)
			r.extensions.EmitConfigRejected(ctx, cfg, err)
			continue
		}

		claimed, rec, err := r.claim(ctx, key, cfg)
		if err != nil {
			return summary, fmt.Errorf("runner: claim %s: %w", key, err)
		}
		if !claimed {
			summary.Skipped++
			r.logger.Debug("experiment already owned, skipping", slog.String("key", key))
			r.extensions.EmitExperimentSkipped(ctx, key)
			continue
		}
		r.extensions.EmitExperimentBooked(ctx, rec)

		outcome, err := r.execute(ctx, rec, cfg)
		if err != nil {
			return summary, err
		}
		switch outcome {
		case outcomeSolved:
			summary.Solved++
		case outcomeFailed:
			summary.Failed++
			if r.haltOnErr {
				return summary, fmt.Errorf("runner: experiment %s failed", rec.Key)
			}
		case outcomeOvertaken:
			summary.Overtaken++
		}
	}

	r.logger.Info("backlog run finished",
		slog.String("worker_id", r.workerID.String()),
		slog.String("summary", summary.String()),
	)
	r.extensions.EmitRunFinished(ctx, summary)

	return summary, nil
}

// claim attempts to take ownership of key. It returns claimed=false when
// the key is already solved or actively booked elsewhere — the expected
// outcome of racing, absorbed here and never surfaced as an error. A
// non-nil error means the store itself failed, which is fatal to the run.
func (r *Runner) claim(ctx context.Context, key string, cfg featureforge.Config) (bool, *record.Record, error) {
	now := r.now().UTC()

	rec, err := r.store.GetRecord(ctx, key)
	switch {
	case errors.Is(err, featureforge.ErrRecordNotFound):
		fresh := &record.Record{
			Key:      key,
			Status:   record.StatusBooked,
			BookedAt: now,
			BookedBy: r.workerID.String(),
			Config:   cfg,
		}
		if createErr := r.store.CreateRecord(ctx, fresh); createErr != nil {
			if errors.Is(createErr, featureforge.ErrRecordExists) {
				// Lost the create race; same as already owned.
				return false, nil, nil
			}
			return false, nil, createErr
		}
		return true, fresh, nil
	case err != nil:
		return false, nil, err
	}

	if !record.Reclaimable(rec, now, r.lease) {
		return false, nil, nil
	}

	// Stale claim: re-book by swapping the timestamp we just read. A
	// conflict means another worker swapped (or solved) first.
	if swapErr := r.store.SwapBookedAt(ctx, key, rec.BookedAt, now, r.workerID.String()); swapErr != nil {
		if errors.Is(swapErr, featureforge.ErrClaimConflict) ||
			errors.Is(swapErr, featureforge.ErrRecordNotFound) {
			return false, nil, nil
		}
		return false, nil, swapErr
	}
	r.logger.Info("re-booked stale claim",
		slog.String("key", key),
		slog.Time("previous_booked_at", rec.BookedAt),
	)

	rec.BookedAt = now
	rec.BookedBy = r.workerID.String()
	return true, rec, nil
}

type executeOutcome int

const (
	outcomeSolved executeOutcome = iota
	outcomeFailed
	outcomeOvertaken
)

// execute runs the experiment for an owned record and stores the results.
// The experiment call is opaque and unbounded; an abnormal termination
// performs no further write, leaving the record Booked until the lease
// elapses. A non-nil error reports a store failure, fatal to the run.
func (r *Runner) execute(ctx context.Context, rec *record.Record, cfg featureforge.Config) (executeOutcome, error) {
	start := time.Now()

	var results featureforge.Results
	terminal := func(ctx context.Context) error {
		res, err := r.experiment(ctx, cfg)
		if err != nil {
			return err
		}
		results = res
		return nil
	}

	err := r.mw(ctx, rec, terminal)
	elapsed := time.Since(start)

	if err != nil {
		r.logger.Error("experiment failed, leaving record booked",
			slog.String("key", rec.Key),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		r.extensions.EmitExperimentFailed(ctx, rec, err)
		return outcomeFailed, nil
	}

	writeErr := r.store.WriteResults(ctx, rec.Key, results, r.now().UTC())
	switch {
	case writeErr == nil:
		rec.Status = record.StatusSolved
		rec.Results = results
		r.extensions.EmitExperimentSolved(ctx, rec, elapsed)
		return outcomeSolved, nil
	case errors.Is(writeErr, featureforge.ErrClaimConflict),
		errors.Is(writeErr, featureforge.ErrRecordNotFound):
		// Our lease expired mid-run and another worker overtook the key.
		// Their completed write stands; ours is discarded.
		r.logger.Warn("experiment finished but claim was overtaken, results discarded",
			slog.String("key", rec.Key),
			slog.Duration("elapsed", elapsed),
		)
		r.extensions.EmitExperimentOvertaken(ctx, rec)
		return outcomeOvertaken, nil
	default:
		return 0, fmt.Errorf("runner: store results for %s: %w", rec.Key, writeErr)
	}
}
