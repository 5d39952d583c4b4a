package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// CreateRecord atomically persists a new Booked record via SET NX.
func (s *Store) CreateRecord(ctx context.Context, rec *record.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("featureforge/redis: marshal record: %w", err)
	}

	ok, err := s.client.SetNX(ctx, recordKey(rec.Key), data, 0).Result()
	if err != nil {
		return unavailable("create record", err)
	}
	if !ok {
		return featureforge.ErrRecordExists
	}
	return nil
}

// GetRecord retrieves the record for key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	raw, err := s.client.Get(ctx, recordKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, featureforge.ErrRecordNotFound
		}
		return nil, unavailable("get record", err)
	}
	return decodeRecord(raw)
}

// SwapBookedAt atomically re-books a stale claim with an optimistic WATCH
// transaction: read the record, verify it is still Booked at the expected
// timestamp, rewrite it inside MULTI/EXEC. Any concurrent write to the key
// aborts the transaction, which the protocol treats as a lost race.
func (s *Store) SwapBookedAt(ctx context.Context, key string, expected, next time.Time, by string) error {
	k := recordKey(key)

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, getErr := tx.Get(ctx, k).Bytes()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				return featureforge.ErrRecordNotFound
			}
			return getErr
		}
		rec, decErr := decodeRecord(raw)
		if decErr != nil {
			return decErr
		}
		if rec.Status != record.StatusBooked || !rec.BookedAt.Equal(expected) {
			return featureforge.ErrClaimConflict
		}

		rec.BookedAt = next
		rec.BookedBy = by
		data, marshalErr := json.Marshal(rec)
		if marshalErr != nil {
			return fmt.Errorf("featureforge/redis: marshal record: %w", marshalErr)
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			return nil
		})
		return pipeErr
	}, k)

	return s.mapTxErr("swap booked_at", err)
}

// WriteResults atomically transitions a Booked record to Solved, with the
// same optimistic transaction as SwapBookedAt.
func (s *Store) WriteResults(ctx context.Context, key string, results featureforge.Results, solvedAt time.Time) error {
	k := recordKey(key)

	err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, getErr := tx.Get(ctx, k).Bytes()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				return featureforge.ErrRecordNotFound
			}
			return getErr
		}
		rec, decErr := decodeRecord(raw)
		if decErr != nil {
			return decErr
		}
		if rec.Status != record.StatusBooked {
			return featureforge.ErrClaimConflict
		}

		rec.Status = record.StatusSolved
		rec.Results = results
		t := solvedAt
		rec.SolvedAt = &t
		data, marshalErr := json.Marshal(rec)
		if marshalErr != nil {
			return fmt.Errorf("featureforge/redis: marshal record: %w", marshalErr)
		}

		_, pipeErr := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			return nil
		})
		return pipeErr
	}, k)

	return s.mapTxErr("write results", err)
}

// ListRecords scans all record keys. Inspection tooling only; the claim
// protocol never lists.
func (s *Store) ListRecords(ctx context.Context, opts record.ListOpts) ([]*record.Record, error) {
	var out []*record.Record

	iter := s.client.Scan(ctx, 0, recordKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		raw, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			return nil, unavailable("list records", err)
		}
		rec, decErr := decodeRecord(raw)
		if decErr != nil {
			return nil, decErr
		}
		if opts.Status != "" && rec.Status != opts.Status {
			continue
		}
		out = append(out, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, unavailable("list records scan", err)
	}

	sort.Slice(out, func(i, k int) bool { return out[i].Key < out[k].Key })

	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func decodeRecord(raw []byte) (*record.Record, error) {
	var rec record.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("featureforge/redis: decode record: %w", err)
	}
	return &rec, nil
}

// mapTxErr converts Watch outcomes into protocol errors. A transaction
// aborted by a concurrent writer is a lost claim race, not a failure.
func (s *Store) mapTxErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, goredis.TxFailedErr):
		return featureforge.ErrClaimConflict
	case errors.Is(err, featureforge.ErrClaimConflict),
		errors.Is(err, featureforge.ErrRecordNotFound):
		return err
	case strings.HasPrefix(err.Error(), "featureforge/redis:"):
		return err
	default:
		return unavailable(op, err)
	}
}
