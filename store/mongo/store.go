package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// colExperiments is the collection holding experiment records.
const colExperiments = "experiment_data"

// Ensure Store implements record.Store at compile time.
var _ record.Store = (*Store)(nil)

// Store is a MongoDB implementation of store.Store. The canonical key is
// the document _id, so key uniqueness rides on the collection's mandatory
// _id index and CreateRecord's insert is the atomic insert-if-absent the
// protocol requires. The caller owns the client lifecycle; Store never
// disconnects it.
type Store struct {
	db     *mongod.Database
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

// New creates a new MongoDB store on the given database.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate creates the status index used by ListRecords. The unique key
// index is the collection's built-in _id index.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.col().Indexes().CreateOne(ctx, mongod.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("featureforge/mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.Client().Ping(ctx, nil); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

func (s *Store) col() *mongod.Collection {
	return s.db.Collection(colExperiments)
}

// unavailable wraps a driver error so it satisfies
// errors.Is(err, featureforge.ErrStoreUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("featureforge/mongo: %s: %w: %w", op, featureforge.ErrStoreUnavailable, err)
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "duplicate key") ||
		strings.Contains(err.Error(), "E11000")
}
