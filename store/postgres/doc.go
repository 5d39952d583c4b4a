// Package postgres provides a PostgreSQL-backed store for experiment
// records using pgx/v5.
//
// The canonical key is the table's primary key. Insert-if-absent is
// INSERT ... ON CONFLICT DO NOTHING; compare-and-swap is an UPDATE
// conditioned on status and booked_at. Configs and results live in JSONB
// columns for ad-hoc inspection with plain SQL.
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	s := postgres.New(pool)
//	_ = s.Migrate(ctx)
package postgres
