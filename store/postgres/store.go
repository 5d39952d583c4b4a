package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements record.Store at compile time.
var _ record.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of store.Store using pgx/v5.
// Insert-if-absent is INSERT ... ON CONFLICT DO NOTHING on the primary
// key; compare-and-swap is an UPDATE conditioned on status and booked_at.
type Store struct {
	pool   *pgxpool.Pool
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

// New creates a new PostgreSQL store. The caller owns the pool lifecycle.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies all embedded SQL migrations in filename order.
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("featureforge/postgres: glob migrations: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		sql, readErr := migrationsFS.ReadFile(name)
		if readErr != nil {
			return fmt.Errorf("featureforge/postgres: read migration %s: %w", name, readErr)
		}
		if _, execErr := s.pool.Exec(ctx, string(sql)); execErr != nil {
			return fmt.Errorf("featureforge/postgres: apply migration %s: %w", name, execErr)
		}
		s.logger.Debug("applied migration", slog.String("file", name))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// unavailable wraps a driver error so it satisfies
// errors.Is(err, featureforge.ErrStoreUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("featureforge/postgres: %s: %w: %w", op, featureforge.ErrStoreUnavailable, err)
}
