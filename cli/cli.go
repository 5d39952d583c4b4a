// Package cli provides a ready-made command line entry point for
// experiment binaries. A program embedding an experiment function needs
// only:
//
//	func main() {
//		os.Exit(cli.Main("trainer", trainModel))
//	}
//
// and gains backlog loading, store selection, lease tuning and a status
// listing over the shared store.
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/backlog"
	"github.com/machinalis/featureforge/backoff"
	"github.com/machinalis/featureforge/gitinfo"
	"github.com/machinalis/featureforge/middleware"
	"github.com/machinalis/featureforge/observability"
	"github.com/machinalis/featureforge/record"
	"github.com/machinalis/featureforge/runner"
	"github.com/machinalis/featureforge/store"
	bunstore "github.com/machinalis/featureforge/store/bun"
	"github.com/machinalis/featureforge/store/memory"
	mongostore "github.com/machinalis/featureforge/store/mongo"
	pgstore "github.com/machinalis/featureforge/store/postgres"
	redisstore "github.com/machinalis/featureforge/store/redis"
)

// Option customizes the command line application.
type Option func(*app)

// WithExtender installs a configuration extender applied before
// canonicalization, in addition to any --git-repo stamping.
func WithExtender(e featureforge.Extender) Option {
	return func(a *app) { a.extender = e }
}

// WithRunnerOptions forwards extra options to the underlying runner.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(a *app) { a.runnerOpts = append(a.runnerOpts, opts...) }
}

type app struct {
	name       string
	experiment featureforge.ExperimentFunc
	extender   featureforge.Extender
	runnerOpts []runner.Option

	// dial seam for tests
	openStore func(ctx context.Context, kind, dsn, database string, logger *slog.Logger) (store.Store, error)

	stdout, stderr io.Writer

	// flags
	storeKind    string
	dsn          string
	database     string
	lease        time.Duration
	timeout      time.Duration
	ratePerSec   float64
	rateBurst    int
	haltOnError  bool
	gitRepo      string
	metrics      bool
	pingAttempts int
	logLevel     string
	logFormat    string
	listStatus   string
	listLimit    int
}

// Main parses os.Args, runs the selected command and returns a process
// exit code.
func Main(name string, experiment featureforge.ExperimentFunc, opts ...Option) int {
	a := &app{
		name:       name,
		experiment: experiment,
		openStore:  openStore,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
	for _, opt := range opts {
		opt(a)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := a.rootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(a.stderr, "%s: %v\n", name, err)
		return 1
	}
	return 0
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           a.name,
		Short:         "Run experiment backlogs against a shared result store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	pf := root.PersistentFlags()
	pf.StringVar(&a.storeKind, "store", "memory", "store backend: memory, mongo, redis, postgres or bun")
	pf.StringVar(&a.dsn, "dsn", "", "store connection string (ignored for memory)")
	pf.StringVar(&a.database, "database", "featureforge", "database name (mongo only)")
	pf.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	pf.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")

	run := &cobra.Command{
		Use:   "run <backlog-file>",
		Short: "Claim and execute the experiments in a backlog file",
		Long: "Reads a JSON or YAML backlog of experiment configurations and works " +
			"through it, claiming each experiment in the shared store so that " +
			"concurrent invocations never duplicate work.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBacklog(cmd.Context(), args[0])
		},
	}
	rf := run.Flags()
	rf.DurationVar(&a.lease, "lease", record.DefaultLease, "booking lease before a claim may be usurped")
	rf.DurationVar(&a.timeout, "timeout", 0, "per-experiment timeout (0 disables)")
	rf.Float64Var(&a.ratePerSec, "rate", 0, "claim attempts per second (0 disables)")
	rf.IntVar(&a.rateBurst, "burst", 1, "claim rate burst size")
	rf.BoolVar(&a.haltOnError, "halt-on-error", false, "abort the run on the first experiment failure")
	rf.StringVar(&a.gitRepo, "git-repo", "", "stamp configurations with the state of this git repository")
	rf.BoolVar(&a.metrics, "metrics", false, "record experiment outcome metrics via OpenTelemetry")
	rf.IntVar(&a.pingAttempts, "store-retries", 5, "connection attempts before giving up on the store")

	status := &cobra.Command{
		Use:   "status",
		Short: "List experiment records in the shared store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listRecords(cmd.Context())
		},
	}
	sf := status.Flags()
	sf.StringVar(&a.listStatus, "status", "", "filter by status: booked or solved")
	sf.IntVar(&a.listLimit, "limit", 50, "maximum records to list (0 for all)")

	root.AddCommand(run, status)
	return root
}

func (a *app) logger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", a.logLevel)
	}
	hopts := &slog.HandlerOptions{Level: level}
	switch a.logFormat {
	case "text":
		return slog.New(slog.NewTextHandler(a.stderr, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(a.stderr, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", a.logFormat)
	}
}

func (a *app) runBacklog(ctx context.Context, path string) error {
	logger, err := a.logger()
	if err != nil {
		return err
	}

	configs, err := backlog.LoadFile(path)
	if err != nil {
		return err
	}

	extender := a.extender
	if a.gitRepo != "" {
		stamp, err := gitinfo.Extender(a.gitRepo)
		if err != nil {
			return err
		}
		extender = composeExtenders(extender, stamp)
	}

	st, err := a.openStore(ctx, a.storeKind, a.dsn, a.database, logger)
	if err != nil {
		return err
	}
	defer st.Close()
	if err := backoff.Retry(ctx, a.pingAttempts, backoff.DefaultStrategy(), st.Ping); err != nil {
		return fmt.Errorf("store unreachable: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	opts := []runner.Option{
		runner.WithLogger(logger),
		runner.WithLease(a.lease),
	}
	if extender != nil {
		opts = append(opts, runner.WithExtender(extender))
	}
	if a.timeout > 0 {
		opts = append(opts, runner.WithMiddleware(middleware.Timeout(a.timeout)))
	}
	if a.ratePerSec > 0 {
		opts = append(opts, runner.WithRateLimit(a.ratePerSec, a.rateBurst))
	}
	if a.haltOnError {
		opts = append(opts, runner.WithHaltOnExperimentError())
	}
	if a.metrics {
		metrics, err := observability.NewMetricsExtension()
		if err != nil {
			return err
		}
		opts = append(opts, runner.WithExtension(metrics))
	}
	opts = append(opts, a.runnerOpts...)

	r, err := runner.New(st, a.experiment, opts...)
	if err != nil {
		return err
	}

	summary, err := r.Run(ctx, configs)
	fmt.Fprintln(a.stdout, summary.String())
	return err
}

func (a *app) listRecords(ctx context.Context) error {
	logger, err := a.logger()
	if err != nil {
		return err
	}

	var status record.Status
	switch a.listStatus {
	case "":
	case string(record.StatusBooked), string(record.StatusSolved):
		status = record.Status(a.listStatus)
	default:
		return fmt.Errorf("invalid status %q", a.listStatus)
	}

	st, err := a.openStore(ctx, a.storeKind, a.dsn, a.database, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListRecords(ctx, record.ListOpts{Status: status, Limit: a.listLimit})
	if err != nil {
		return err
	}
	for _, rec := range records {
		line := fmt.Sprintf("%s\t%s\t%s\t%s", rec.Key, rec.Status, rec.BookedBy, rec.BookedAt.Format(time.RFC3339))
		if rec.SolvedAt != nil {
			line += "\t" + rec.SolvedAt.Format(time.RFC3339)
		}
		fmt.Fprintln(a.stdout, line)
	}
	fmt.Fprintf(a.stdout, "%d records\n", len(records))
	return nil
}

func composeExtenders(first, second featureforge.Extender) featureforge.Extender {
	if first == nil {
		return second
	}
	return func(cfg featureforge.Config) (featureforge.Config, error) {
		out, err := first(cfg)
		if err != nil {
			return nil, err
		}
		return second(out)
	}
}

// openStore dials the selected backend. Memory is per-process and only
// useful for local smoke runs; every other backend is shared state that
// coordinates concurrent workers.
func openStore(ctx context.Context, kind, dsn, database string, logger *slog.Logger) (store.Store, error) {
	switch kind {
	case "memory":
		return memory.New(), nil

	case "mongo":
		if dsn == "" {
			return nil, fmt.Errorf("--dsn is required for the mongo store")
		}
		client, err := mongod.Connect(options.Client().ApplyURI(dsn))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return mongostore.New(client.Database(database), mongostore.WithLogger(logger)), nil

	case "redis":
		if dsn == "" {
			return nil, fmt.Errorf("--dsn is required for the redis store")
		}
		ropts, err := goredis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redisstore.New(goredis.NewClient(ropts), redisstore.WithLogger(logger)), nil

	case "postgres":
		if dsn == "" {
			return nil, fmt.Errorf("--dsn is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return pgstore.New(pool, pgstore.WithLogger(logger)), nil

	case "bun":
		if dsn == "" {
			return nil, fmt.Errorf("--dsn is required for the bun store")
		}
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		db := bun.NewDB(sqldb, pgdialect.New())
		return bunstore.New(db, bunstore.WithLogger(logger)), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", kind)
	}
}
