package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// OpenSQLite opens a SQLite ledger and creates its schema. Used for local runs
// without Postgres and by tests (dsn ":memory:").
func OpenSQLite(ctx context.Context, dsn string) (*DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps an in-memory database alive.
	sqldb.SetMaxOpenConns(1)
	sqldb.SetConnMaxLifetime(0)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := CreateSchema(ctx, bunDB); err != nil {
		bunDB.Close()
		return nil, err
	}
	return &DB{Bun: bunDB}, nil
}
