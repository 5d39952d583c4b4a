package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// Key layout.
const recordKeyPrefix = "featureforge:record:"

// Ensure Store implements record.Store at compile time.
var _ record.Store = (*Store)(nil)

// Store is a Redis implementation of store.Store. Records are JSON values;
// insert-if-absent is SET NX and compare-and-swap is an optimistic WATCH
// transaction on the record key. A transaction aborted by a concurrent
// writer is reported as a claim conflict, which is exactly what it is.
type Store struct {
	client *goredis.Client
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

// New creates a new Redis store. The caller owns the client lifecycle.
func New(client *goredis.Client, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op: Redis needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error { return nil }

func recordKey(key string) string {
	return recordKeyPrefix + key
}

// unavailable wraps a driver error so it satisfies
// errors.Is(err, featureforge.ErrStoreUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("featureforge/redis: %s: %w: %w", op, featureforge.ErrStoreUnavailable, err)
}
