package pgetl

import (
	"context"
	"database/sql"
)

// SourceOpener opens the relational source for one extraction run.
type SourceOpener interface {
	Open(ctx context.Context) (SourceHandle, error)
}

// SourceHandle is a scoped connection to the relational source.
type SourceHandle interface {
	// QueryTable returns every row of schema.table.
	QueryTable(ctx context.Context, schema, table string) (*sql.Rows, error)

	// Close releases the connection. Safe to call more than once.
	Close() error
}
