package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/machinalis/featureforge/record"
)

// recordModel is the Bun row shape of an experiment record.
type recordModel struct {
	bun.BaseModel `bun:"table:experiment_records"`

	Key      string          `bun:"key,pk"`
	Status   string          `bun:"status,notnull"`
	BookedAt time.Time       `bun:"booked_at,notnull"`
	BookedBy string          `bun:"booked_by,notnull,default:''"`
	SolvedAt *time.Time      `bun:"solved_at"`
	Config   json.RawMessage `bun:"config,type:jsonb,notnull"`
	Results  json.RawMessage `bun:"results,type:jsonb"`
}

func toRecordModel(rec *record.Record) (*recordModel, error) {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return nil, fmt.Errorf("featureforge/bun: marshal config: %w", err)
	}

	m := &recordModel{
		Key:      rec.Key,
		Status:   string(rec.Status),
		BookedAt: rec.BookedAt,
		BookedBy: rec.BookedBy,
		SolvedAt: rec.SolvedAt,
		Config:   cfg,
	}
	if rec.Results != nil {
		res, resErr := json.Marshal(rec.Results)
		if resErr != nil {
			return nil, fmt.Errorf("featureforge/bun: marshal results: %w", resErr)
		}
		m.Results = res
	}
	return m, nil
}

func fromRecordModel(m *recordModel) (*record.Record, error) {
	rec := &record.Record{
		Key:      m.Key,
		Status:   record.Status(m.Status),
		BookedAt: m.BookedAt.UTC(),
		BookedBy: m.BookedBy,
		SolvedAt: m.SolvedAt,
	}
	if len(m.Config) > 0 {
		if err := json.Unmarshal(m.Config, &rec.Config); err != nil {
			return nil, fmt.Errorf("featureforge/bun: unmarshal config: %w", err)
		}
	}
	if len(m.Results) > 0 {
		if err := json.Unmarshal(m.Results, &rec.Results); err != nil {
			return nil, fmt.Errorf("featureforge/bun: unmarshal results: %w", err)
		}
	}
	return rec, nil
}
