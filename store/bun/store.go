package bunstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/uptrace/bun"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements record.Store at compile time.
var _ record.Store = (*Store)(nil)

// Store is a Bun ORM implementation of store.Store using the PostgreSQL
// dialect. Same table and same conditional-write semantics as the pgx
// backend; pick whichever fits the application's existing database stack.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new Bun store. The caller owns the db lifecycle.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate applies all embedded SQL migrations in filename order.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("featureforge/bun: glob migrations: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		sql, readErr := migrationsFS.ReadFile(name)
		if readErr != nil {
			return fmt.Errorf("featureforge/bun: read migration %s: %w", name, readErr)
		}
		if _, execErr := s.db.ExecContext(ctx, string(sql)); execErr != nil {
			return fmt.Errorf("featureforge/bun: apply migration %s: %w", name, execErr)
		}
		s.logger.Debug("applied migration", slog.String("file", name))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}

// unavailable wraps a driver error so it satisfies
// errors.Is(err, featureforge.ErrStoreUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("featureforge/bun: %s: %w: %w", op, featureforge.ErrStoreUnavailable, err)
}
