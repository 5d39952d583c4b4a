//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
	pgstore "github.com/machinalis/featureforge/store/postgres"
)

// setupTestStore creates a Postgres container and returns a connected Store.
func setupTestStore(t *testing.T) *pgstore.Store {
	t.Helper()

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("featureforge_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if termErr := container.Terminate(ctx); termErr != nil {
			t.Logf("terminate container: %v", termErr)
		}
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	store := pgstore.New(pool, pgstore.WithLogger(slog.Default()))

	if migErr := store.Migrate(ctx); migErr != nil {
		t.Fatalf("migrate: %v", migErr)
	}

	return store
}

func bookedRecord(key, by string) *record.Record {
	return &record.Record{
		Key:      key,
		Status:   record.StatusBooked,
		BookedAt: time.Now().UTC(),
		BookedBy: by,
		Config:   featureforge.Config{"x": 1},
	}
}

func TestStore_PingAndMigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	// Second migrate should be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

func TestRecordStore_CreateConflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.CreateRecord(ctx, bookedRecord("conflict", "wkr_a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if dupErr := s.CreateRecord(ctx, bookedRecord("conflict", "wkr_b")); !errors.Is(dupErr, featureforge.ErrRecordExists) {
		t.Fatalf("expected ErrRecordExists, got: %v", dupErr)
	}

	got, err := s.GetRecord(ctx, "conflict")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.BookedBy != "wkr_a" {
		t.Fatalf("expected first writer's claim to stand, got %s", got.BookedBy)
	}
}

func TestRecordStore_SwapBookedAtCAS(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.CreateRecord(ctx, bookedRecord("swap", "wkr_a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := s.GetRecord(ctx, "swap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stale := rec.BookedAt

	if err := s.SwapBookedAt(ctx, "swap", stale, time.Now().UTC().Add(time.Minute), "wkr_b"); err != nil {
		t.Fatalf("swap: %v", err)
	}
	if swapErr := s.SwapBookedAt(ctx, "swap", stale, time.Now().UTC(), "wkr_c"); !errors.Is(swapErr, featureforge.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict, got: %v", swapErr)
	}
	if swapErr := s.SwapBookedAt(ctx, "missing", stale, time.Now().UTC(), "wkr_d"); !errors.Is(swapErr, featureforge.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", swapErr)
	}

	got, err := s.GetRecord(ctx, "swap")
	if err != nil {
		t.Fatalf("get after swaps: %v", err)
	}
	if got.BookedBy != "wkr_b" {
		t.Fatalf("expected wkr_b to own the claim, got %s", got.BookedBy)
	}
}

func TestRecordStore_SolvedIsTerminal(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.CreateRecord(ctx, bookedRecord("solve", "wkr_a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.WriteResults(ctx, "solve", featureforge.Results{"score": 0.9}, time.Now().UTC()); err != nil {
		t.Fatalf("write results: %v", err)
	}

	got, err := s.GetRecord(ctx, "solve")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != record.StatusSolved || got.SolvedAt == nil {
		t.Fatalf("expected solved record, got status=%s solved_at=%v", got.Status, got.SolvedAt)
	}

	if wrErr := s.WriteResults(ctx, "solve", featureforge.Results{"score": 0.1}, time.Now().UTC()); !errors.Is(wrErr, featureforge.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict on second write, got: %v", wrErr)
	}
	if swapErr := s.SwapBookedAt(ctx, "solve", got.BookedAt, time.Now().UTC(), "wkr_b"); !errors.Is(swapErr, featureforge.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict re-booking solved, got: %v", swapErr)
	}

	got, err = s.GetRecord(ctx, "solve")
	if err != nil {
		t.Fatalf("get after overwrite attempts: %v", err)
	}
	if got.Results["score"] == float64(0.1) {
		t.Fatal("late write overwrote the stored results")
	}
}
