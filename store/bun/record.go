package bunstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// CreateRecord atomically persists a new Booked record.
func (s *Store) CreateRecord(ctx context.Context, rec *record.Record) error {
	m, err := toRecordModel(rec)
	if err != nil {
		return err
	}

	res, err := s.db.NewInsert().
		Model(m).
		On("CONFLICT (key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return unavailable("create record", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return featureforge.ErrRecordExists
	}
	return nil
}

// GetRecord retrieves the record for key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	m := new(recordModel)
	err := s.db.NewSelect().
		Model(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, featureforge.ErrRecordNotFound
		}
		return nil, unavailable("get record", err)
	}
	return fromRecordModel(m)
}

// SwapBookedAt atomically re-books a stale claim.
func (s *Store) SwapBookedAt(ctx context.Context, key string, expected, next time.Time, by string) error {
	res, err := s.db.NewUpdate().
		Model((*recordModel)(nil)).
		Set("booked_at = ?", next).
		Set("booked_by = ?", by).
		Where("key = ?", key).
		Where("status = ?", string(record.StatusBooked)).
		Where("booked_at = ?", expected).
		Exec(ctx)
	if err != nil {
		return unavailable("swap booked_at", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.conflictOrMissing(ctx, key)
	}
	return nil
}

// WriteResults atomically transitions a Booked record to Solved.
func (s *Store) WriteResults(ctx context.Context, key string, results featureforge.Results, solvedAt time.Time) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("featureforge/bun: marshal results: %w", err)
	}

	res, err := s.db.NewUpdate().
		Model((*recordModel)(nil)).
		Set("status = ?", string(record.StatusSolved)).
		Set("results = ?", json.RawMessage(data)).
		Set("solved_at = ?", solvedAt).
		Where("key = ?", key).
		Where("status = ?", string(record.StatusBooked)).
		Exec(ctx)
	if err != nil {
		return unavailable("write results", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return s.conflictOrMissing(ctx, key)
	}
	return nil
}

// ListRecords returns records for inspection tooling, ordered by key.
func (s *Store) ListRecords(ctx context.Context, opts record.ListOpts) ([]*record.Record, error) {
	var models []recordModel
	q := s.db.NewSelect().
		Model(&models).
		Order("key ASC")

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, unavailable("list records", err)
	}

	out := make([]*record.Record, 0, len(models))
	for i := range models {
		rec, convErr := fromRecordModel(&models[i])
		if convErr != nil {
			return nil, convErr
		}
		out = append(out, rec)
	}
	return out, nil
}

// conflictOrMissing distinguishes a lost conditional write from a record
// that does not exist at all.
func (s *Store) conflictOrMissing(ctx context.Context, key string) error {
	exists, err := s.db.NewSelect().
		Model((*recordModel)(nil)).
		Where("key = ?", key).
		Exists(ctx)
	if err != nil {
		return unavailable("check record", err)
	}
	if !exists {
		return featureforge.ErrRecordNotFound
	}
	return featureforge.ErrClaimConflict
}
