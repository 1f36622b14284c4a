package pgetl

import (
	"context"
)

// WarehouseSession is a scoped connection to the warehouse.
// Close must be called on every path and is safe to call more than once.
type WarehouseSession interface {
	// EnsureSchema creates the schema when it does not exist.
	EnsureSchema(ctx context.Context, schema string) error

	// ReplaceTable drops schema.table if present, recreates it from columns,
	// and bulk-inserts rows, all in one transaction.
	// A non-table object with the same name fails with ErrSchemaConflict.
	ReplaceTable(ctx context.Context, schema, table string, columns []Column, rows [][]any) (int64, error)

	Close()
}

// WarehouseOpener opens warehouse sessions. Each call returns an independent session.
type WarehouseOpener interface {
	Open(ctx context.Context) (WarehouseSession, error)
}

// ColumnType is the warehouse type inferred for a snapshot column.
type ColumnType int

const (
	ColumnText ColumnType = iota
	ColumnBigInt
	ColumnDouble
	ColumnBoolean
)

// SQL returns the PostgreSQL type name.
func (t ColumnType) SQL() string {
	switch t {
	case ColumnBigInt:
		return "BIGINT"
	case ColumnDouble:
		return "DOUBLE PRECISION"
	case ColumnBoolean:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// Column describes one warehouse table column.
type Column struct {
	Name string
	Type ColumnType
}
