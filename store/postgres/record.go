package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// CreateRecord atomically persists a new Booked record. ON CONFLICT DO
// NOTHING makes the insert a pure insert-if-absent: of racing creates for
// one key, exactly one inserts a row.
func (s *Store) CreateRecord(ctx context.Context, rec *record.Record) error {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("featureforge/postgres: marshal config: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO experiment_records (key, status, booked_at, booked_by, config)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO NOTHING`,
		rec.Key, string(rec.Status), rec.BookedAt, rec.BookedBy, cfg,
	)
	if err != nil {
		return unavailable("create record", err)
	}
	if tag.RowsAffected() == 0 {
		return featureforge.ErrRecordExists
	}
	return nil
}

// GetRecord retrieves the record for key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT key, status, booked_at, booked_by, solved_at, config, results
		FROM experiment_records
		WHERE key = $1`,
		key,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, featureforge.ErrRecordNotFound
		}
		return nil, unavailable("get record", err)
	}
	return rec, nil
}

// SwapBookedAt atomically re-books a stale claim.
func (s *Store) SwapBookedAt(ctx context.Context, key string, expected, next time.Time, by string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE experiment_records
		SET booked_at = $3, booked_by = $4
		WHERE key = $1 AND status = 'booked' AND booked_at = $2`,
		key, expected, next, by,
	)
	if err != nil {
		return unavailable("swap booked_at", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrMissing(ctx, key)
	}
	return nil
}

// WriteResults atomically transitions a Booked record to Solved. The
// status condition guarantees a Solved record's results are never
// replaced by a late writer.
func (s *Store) WriteResults(ctx context.Context, key string, results featureforge.Results, solvedAt time.Time) error {
	res, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("featureforge/postgres: marshal results: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE experiment_records
		SET status = 'solved', results = $2, solved_at = $3
		WHERE key = $1 AND status = 'booked'`,
		key, res, solvedAt,
	)
	if err != nil {
		return unavailable("write results", err)
	}
	if tag.RowsAffected() == 0 {
		return s.conflictOrMissing(ctx, key)
	}
	return nil
}

// ListRecords returns records for inspection tooling, ordered by key.
func (s *Store) ListRecords(ctx context.Context, opts record.ListOpts) ([]*record.Record, error) {
	query := `
		SELECT key, status, booked_at, booked_by, solved_at, config, results
		FROM experiment_records`
	args := []any{}

	if opts.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY key`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET %d`, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, unavailable("list records", err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, unavailable("list records scan", scanErr)
		}
		out = append(out, rec)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, unavailable("list records rows", rowsErr)
	}
	return out, nil
}

// conflictOrMissing distinguishes a lost conditional write from a record
// that does not exist at all.
func (s *Store) conflictOrMissing(ctx context.Context, key string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM experiment_records WHERE key = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return unavailable("check record", err)
	}
	if !exists {
		return featureforge.ErrRecordNotFound
	}
	return featureforge.ErrClaimConflict
}

// scanRecord reads one row into a Record. Works for both QueryRow and
// rows iteration via the pgx.Row interface.
func scanRecord(row pgx.Row) (*record.Record, error) {
	var (
		rec      record.Record
		status   string
		bookedAt time.Time
		solvedAt *time.Time
		cfg      []byte
		results  []byte
	)
	if err := row.Scan(&rec.Key, &status, &bookedAt, &rec.BookedBy, &solvedAt, &cfg, &results); err != nil {
		return nil, err
	}
	rec.Status = record.Status(status)
	rec.BookedAt = bookedAt.UTC()
	rec.SolvedAt = solvedAt

	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &rec.Config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &rec.Results); err != nil {
			return nil, fmt.Errorf("unmarshal results: %w", err)
		}
	}
	return &rec, nil
}
