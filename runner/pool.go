package runner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// Pool runs several independent Runners over the same backlog in one
// process. Each runner carries its own worker identity and claims
// through the shared store exactly as separate processes would, so the
// pool adds parallelism without adding any coordination of its own.
type Pool struct {
	store       record.Store
	experiment  featureforge.ExperimentFunc
	concurrency int
	runnerOpts  []Option
	logger      *slog.Logger
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolConcurrency sets the number of concurrent runners.
func WithPoolConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithPoolLogger sets the pool's logger. Runners inherit it unless
// WithPoolRunnerOptions overrides it.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) { p.logger = logger }
}

// WithPoolRunnerOptions forwards options to every runner in the pool.
func WithPoolRunnerOptions(opts ...Option) PoolOption {
	return func(p *Pool) { p.runnerOpts = append(p.runnerOpts, opts...) }
}

// NewPool creates a pool of runners for the given store and experiment.
func NewPool(store record.Store, experiment featureforge.ExperimentFunc, opts ...PoolOption) (*Pool, error) {
	if store == nil {
		return nil, featureforge.ErrNoStore
	}
	if experiment == nil {
		return nil, featureforge.ErrNoExperiment
	}

	p := &Pool{
		store:       store,
		experiment:  experiment,
		concurrency: 2,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}
	return p, nil
}

// Run processes the backlog with all runners concurrently and returns
// the aggregated summary. Duplicate work between runners surfaces as
// Skipped counts, never as duplicate Solved records. The first store
// failure cancels the remaining runners.
func (p *Pool) Run(ctx context.Context, backlog []featureforge.Config) (featureforge.Summary, error) {
	p.logger.Info("runner pool starting",
		slog.Int("concurrency", p.concurrency),
		slog.Int("items", len(backlog)),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	summaries := make([]featureforge.Summary, p.concurrency)
	errs := make([]error, p.concurrency)
	var wg sync.WaitGroup
	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			opts := append([]Option{WithLogger(p.logger)}, p.runnerOpts...)
			r, err := New(p.store, p.experiment, opts...)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			summaries[i], errs[i] = r.Run(ctx, backlog)
			if errs[i] != nil && !errors.Is(errs[i], context.Canceled) {
				cancel()
			}
		}(i)
	}
	wg.Wait()

	var total featureforge.Summary
	for _, s := range summaries {
		total.Solved += s.Solved
		total.Skipped += s.Skipped
		total.Rejected += s.Rejected
		total.Failed += s.Failed
		total.Overtaken += s.Overtaken
	}

	p.logger.Info("runner pool finished", slog.String("summary", total.String()))
	return total, errors.Join(errs...)
}
