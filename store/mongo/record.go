package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// CreateRecord atomically persists a new Booked record. Of racing creates
// for one key, exactly one insert passes the _id uniqueness check.
func (s *Store) CreateRecord(ctx context.Context, rec *record.Record) error {
	_, err := s.col().InsertOne(ctx, toRecordModel(rec))
	if err != nil {
		if isDuplicateKey(err) {
			return featureforge.ErrRecordExists
		}
		return unavailable("create record", err)
	}
	return nil
}

// GetRecord retrieves the record for key.
func (s *Store) GetRecord(ctx context.Context, key string) (*record.Record, error) {
	var m recordModel
	err := s.col().FindOne(ctx, bson.M{"_id": key}).Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, featureforge.ErrRecordNotFound
		}
		return nil, unavailable("get record", err)
	}
	return fromRecordModel(&m), nil
}

// SwapBookedAt atomically re-books a stale claim. The filter conditions on
// the record still being Booked with the exact BookedAt the caller read;
// anything else means the claim moved and the caller lost the race.
func (s *Store) SwapBookedAt(ctx context.Context, key string, expected, next time.Time, by string) error {
	filter := bson.M{
		"_id":       key,
		"status":    string(record.StatusBooked),
		"booked_at": expected,
	}
	update := bson.M{"$set": bson.M{
		"booked_at": next,
		"booked_by": by,
	}}

	res, err := s.col().UpdateOne(ctx, filter, update)
	if err != nil {
		return unavailable("swap booked_at", err)
	}
	if res.MatchedCount == 0 {
		return s.conflictOrMissing(ctx, key)
	}
	return nil
}

// WriteResults atomically transitions a Booked record to Solved. Once a
// record is Solved the status condition can never match again, so stored
// results are never replaced.
func (s *Store) WriteResults(ctx context.Context, key string, results featureforge.Results, solvedAt time.Time) error {
	filter := bson.M{
		"_id":    key,
		"status": string(record.StatusBooked),
	}
	update := bson.M{"$set": bson.M{
		"status":    string(record.StatusSolved),
		"results":   sanitizeMap(results),
		"solved_at": solvedAt,
	}}

	res, err := s.col().UpdateOne(ctx, filter, update)
	if err != nil {
		return unavailable("write results", err)
	}
	if res.MatchedCount == 0 {
		return s.conflictOrMissing(ctx, key)
	}
	return nil
}

// ListRecords returns records for inspection tooling, ordered by key.
func (s *Store) ListRecords(ctx context.Context, opts record.ListOpts) ([]*record.Record, error) {
	filter := bson.M{}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cur, err := s.col().Find(ctx, filter, findOpts)
	if err != nil {
		return nil, unavailable("list records", err)
	}
	defer cur.Close(ctx)

	var out []*record.Record
	for cur.Next(ctx) {
		var m recordModel
		if decErr := cur.Decode(&m); decErr != nil {
			return nil, unavailable("list records decode", decErr)
		}
		out = append(out, fromRecordModel(&m))
	}
	if curErr := cur.Err(); curErr != nil {
		return nil, unavailable("list records cursor", curErr)
	}
	return out, nil
}

// conflictOrMissing distinguishes a lost conditional write from a record
// that does not exist at all.
func (s *Store) conflictOrMissing(ctx context.Context, key string) error {
	err := s.col().FindOne(ctx, bson.M{"_id": key}).Err()
	if isNoDocuments(err) {
		return featureforge.ErrRecordNotFound
	}
	if err != nil {
		return unavailable("check record", err)
	}
	return featureforge.ErrClaimConflict
}
