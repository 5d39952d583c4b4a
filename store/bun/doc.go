// Package bunstore provides a Bun ORM store for experiment records using
// the PostgreSQL dialect. It shares its schema and conditional-write
// semantics with the pgx backend.
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	_ = s.Migrate(ctx)
package bunstore
