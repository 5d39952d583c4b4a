//go:build integration

package bunstore_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
	bunstore "github.com/machinalis/featureforge/store/bun"
)

// setupTestStore creates a Postgres container and returns a connected Bun Store.
func setupTestStore(t *testing.T) *bunstore.Store {
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

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	db := bun.NewDB(sqldb, pgdialect.New())

	t.Cleanup(func() {
		_ = db.Close()
	})

	store := bunstore.New(db, bunstore.WithLogger(slog.Default()))

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
		Config:   featureforge.Config{"x": 1, "nested": map[string]any{"k": "v"}},
	}
}

// ──────────────────────────────────────────────────
// Lifecycle tests
// ──────────────────────────────────────────────────

func TestStore_Ping(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestStore_MigrateIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	// Second migrate should be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate failed: %v", err)
	}
}

// ──────────────────────────────────────────────────
// Record store tests
// ──────────────────────────────────────────────────

func TestRecordStore_CreateAndGet(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	rec := bookedRecord("create-get", "wkr_a")
	if err := s.CreateRecord(ctx, rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Duplicate create must report the conflict.
	if dupErr := s.CreateRecord(ctx, bookedRecord("create-get", "wkr_b")); !errors.Is(dupErr, featureforge.ErrRecordExists) {
		t.Fatalf("expected ErrRecordExists, got: %v", dupErr)
	}

	got, err := s.GetRecord(ctx, "create-get")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != record.StatusBooked {
		t.Fatalf("expected booked, got %s", got.Status)
	}
	if got.BookedBy != "wkr_a" {
		t.Fatalf("expected first writer's claim to stand, got %s", got.BookedBy)
	}
	if got.Config["x"] == nil {
		t.Fatalf("config not stored: %v", got.Config)
	}

	if _, getErr := s.GetRecord(ctx, "missing"); !errors.Is(getErr, featureforge.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", getErr)
	}
}

func TestRecordStore_SwapBookedAtCAS(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.CreateRecord(ctx, bookedRecord("swap", "wkr_a")); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Read the stored timestamp back; the database rounds to its own
	// precision, so the CAS value must come from a store read.
	rec, err := s.GetRecord(ctx, "swap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	stale := rec.BookedAt

	next := time.Now().UTC().Add(time.Minute)
	if err := s.SwapBookedAt(ctx, "swap", stale, next, "wkr_b"); err != nil {
		t.Fatalf("swap: %v", err)
	}

	got, err := s.GetRecord(ctx, "swap")
	if err != nil {
		t.Fatalf("get after swap: %v", err)
	}
	if got.BookedBy != "wkr_b" {
		t.Fatalf("expected wkr_b after swap, got %s", got.BookedBy)
	}

	// A second swap against the old timestamp loses the race.
	if swapErr := s.SwapBookedAt(ctx, "swap", stale, time.Now().UTC(), "wkr_c"); !errors.Is(swapErr, featureforge.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict, got: %v", swapErr)
	}
	got, err = s.GetRecord(ctx, "swap")
	if err != nil {
		t.Fatalf("get after lost swap: %v", err)
	}
	if got.BookedBy != "wkr_b" {
		t.Fatalf("lost swap must not change ownership, got %s", got.BookedBy)
	}

	if swapErr := s.SwapBookedAt(ctx, "missing", stale, next, "wkr_d"); !errors.Is(swapErr, featureforge.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", swapErr)
	}
}

func TestRecordStore_SolvedIsTerminal(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	if err := s.CreateRecord(ctx, bookedRecord("solve", "wkr_a")); err != nil {
		t.Fatalf("create: %v", err)
	}

	solvedAt := time.Now().UTC()
	if err := s.WriteResults(ctx, "solve", featureforge.Results{"score": 0.9}, solvedAt); err != nil {
		t.Fatalf("write results: %v", err)
	}

	got, err := s.GetRecord(ctx, "solve")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != record.StatusSolved {
		t.Fatalf("expected solved, got %s", got.Status)
	}
	if got.SolvedAt == nil {
		t.Fatal("expected solved_at to be set")
	}
	if got.Results["score"] == nil {
		t.Fatalf("results not stored: %v", got.Results)
	}

	// A late finisher cannot overwrite the stored results.
	if wrErr := s.WriteResults(ctx, "solve", featureforge.Results{"score": 0.1}, time.Now().UTC()); !errors.Is(wrErr, featureforge.ErrClaimConflict) {
		t.Fatalf("expected ErrClaimConflict on second write, got: %v", wrErr)
	}
	// Nor can a stale worker re-book a solved record, even with a
	// matching timestamp.
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

	if wrErr := s.WriteResults(ctx, "missing", featureforge.Results{}, time.Now().UTC()); !errors.Is(wrErr, featureforge.ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got: %v", wrErr)
	}
}

func TestRecordStore_List(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"list-a", "list-b", "list-c"} {
		if err := s.CreateRecord(ctx, bookedRecord(key, "wkr_a")); err != nil {
			t.Fatalf("create %s: %v", key, err)
		}
	}
	if err := s.WriteResults(ctx, "list-b", featureforge.Results{"ok": true}, time.Now().UTC()); err != nil {
		t.Fatalf("write results: %v", err)
	}

	solved, err := s.ListRecords(ctx, record.ListOpts{Status: record.StatusSolved})
	if err != nil {
		t.Fatalf("list solved: %v", err)
	}
	if len(solved) != 1 || solved[0].Key != "list-b" {
		t.Fatalf("expected [list-b], got %v", solved)
	}

	booked, err := s.ListRecords(ctx, record.ListOpts{Status: record.StatusBooked, Limit: 1})
	if err != nil {
		t.Fatalf("list booked: %v", err)
	}
	if len(booked) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(booked))
	}

	all, err := s.ListRecords(ctx, record.ListOpts{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3, got %d", len(all))
	}
}
