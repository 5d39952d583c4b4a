package mongo

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/record"
)

// recordModel is the BSON shape of an experiment record.
type recordModel struct {
	Key      string     `bson:"_id"`
	Status   string     `bson:"status"`
	BookedAt time.Time  `bson:"booked_at"`
	BookedBy string     `bson:"booked_by,omitempty"`
	SolvedAt *time.Time `bson:"solved_at,omitempty"`
	Config   bson.M     `bson:"config"`
	Results  bson.M     `bson:"results,omitempty"`
}

func toRecordModel(rec *record.Record) *recordModel {
	return &recordModel{
		Key:      rec.Key,
		Status:   string(rec.Status),
		BookedAt: rec.BookedAt,
		BookedBy: rec.BookedBy,
		SolvedAt: rec.SolvedAt,
		Config:   sanitizeMap(rec.Config),
		Results:  sanitizeMap(rec.Results),
	}
}

func fromRecordModel(m *recordModel) *record.Record {
	return &record.Record{
		Key:      m.Key,
		Status:   record.Status(m.Status),
		BookedAt: m.BookedAt.UTC(),
		BookedBy: m.BookedBy,
		SolvedAt: m.SolvedAt,
		Config:   featureforge.Config(fromBSONMap(m.Config)),
		Results:  featureforge.Results(fromBSONMap(m.Results)),
	}
}

// sanitizeMap rewrites map keys so MongoDB accepts them: "." becomes ","
// and "$" becomes "&", recursively. Stored documents are for inspection;
// the canonical key was derived from the unsanitized config, so identity
// is unaffected.
func sanitizeMap[M ~map[string]any](m M) bson.M {
	if m == nil {
		return nil
	}
	out := make(bson.M, len(m))
	for k, v := range m {
		k = sanitizeKey(k)
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeKey(k string) string {
	if k == "" {
		return k
	}
	out := make([]byte, 0, len(k))
	for i := 0; i < len(k); i++ {
		switch k[i] {
		case '.':
			out = append(out, ',')
		case '$':
			out = append(out, '&')
		default:
			out = append(out, k[i])
		}
	}
	return string(out)
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case featureforge.Config:
		return sanitizeMap(t)
	case map[string]any:
		return sanitizeMap(t)
	case featureforge.Set:
		return sanitizeSlice(t)
	case []any:
		return sanitizeSlice(t)
	default:
		return v
	}
}

func sanitizeSlice[S ~[]any](s S) bson.A {
	out := make(bson.A, len(s))
	for i, e := range s {
		out[i] = sanitizeValue(e)
	}
	return out
}

// fromBSONMap converts decoded BSON back into plain Go maps and slices.
// Sets do not survive the round trip (BSON has no set type); stored
// configs are read back for inspection only, never re-canonicalized.
func fromBSONMap(m bson.M) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.M:
		return fromBSONMap(t)
	case map[string]any:
		return fromBSONMap(bson.M(t))
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = fromBSONValue(e)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	case int32:
		return int(t)
	default:
		return v
	}
}
