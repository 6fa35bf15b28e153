// Package dbexec runs the planner's read queries, either straight against
// the connection pool or through a request-scoped Session pinned to one
// connection.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the part of *sql.Rows the resolver scans through.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// QueryExecutor issues read queries. Nothing in the service writes through
// it; the loader uses its own transaction.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

var (
	_ QueryExecutor = (*StandardExecutor)(nil)
	_ QueryExecutor = (*Session)(nil)
)

// StandardExecutor lets the pool pick a connection per query.
type StandardExecutor struct {
	db *sql.DB
}

func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e == nil || e.db == nil {
		return nil, sql.ErrConnDone
	}
	return e.db.QueryContext(ctx, query, args...)
}
