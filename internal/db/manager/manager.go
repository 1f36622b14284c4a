// Package manager runs the warehouse DDL the loader needs: schema creation,
// relation inspection and table replacement.
//
// Identifiers are always quoted with pgx.Identifier.Sanitize().
package manager

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

const (
	querySchemaExists = "SELECT EXISTS(SELECT 1 FROM pg_namespace WHERE nspname = $1)"
	queryRelationKind = `
		SELECT c.relkind::text
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1 AND c.relname = $2
	`
)

// Querier is the subset of pgx used for DDL. *pgxpool.Pool, *pgxpool.Conn
// and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Relation kinds reported by RelationKind (pg_class.relkind).
const (
	KindTable            = "r"
	KindPartitionedTable = "p"
	KindView             = "v"
	KindMaterializedView = "m"
	KindForeignTable     = "f"
)

// Manager is stateless and safe for concurrent use.
type Manager struct{}

func New() *Manager {
	return &Manager{}
}

// SchemaExists reports whether schema is present.
func (m *Manager) SchemaExists(ctx context.Context, q Querier, schema string) (bool, error) {
	var exists bool
	if err := q.QueryRow(ctx, querySchemaExists, schema).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check schema %q: %w", schema, err)
	}
	return exists, nil
}

// EnsureSchema creates schema when absent. Concurrent or repeated calls succeed.
func (m *Manager) EnsureSchema(ctx context.Context, q Querier, schema string) error {
	query := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{schema}.Sanitize())
	if _, err := q.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema %q: %w", schema, err)
	}
	return nil
}

// RelationKind returns the pg_class.relkind of schema.name, or "" when no such relation exists.
func (m *Manager) RelationKind(ctx context.Context, q Querier, schema, name string) (string, error) {
	var kind string
	err := q.QueryRow(ctx, queryRelationKind, schema, name).Scan(&kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to inspect %s.%s: %w", schema, name, err)
	}
	return kind, nil
}

// ReplaceTable drops schema.table if it is a table and creates it again from columns.
// Any other relation with that name fails with pgetl.ErrSchemaConflict.
func (m *Manager) ReplaceTable(ctx context.Context, q Querier, schema, table string, columns []pgetl.Column) error {
	kind, err := m.RelationKind(ctx, q, schema, table)
	if err != nil {
		return err
	}
	switch kind {
	case "", KindTable, KindPartitionedTable:
	default:
		return fmt.Errorf("%s.%s exists as %s, not a table: %w", schema, table, describeKind(kind), pgetl.ErrSchemaConflict)
	}

	ident := pgx.Identifier{schema, table}.Sanitize()
	if _, err := q.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return fmt.Errorf("failed to drop %s.%s: %w", schema, table, err)
	}
	if _, err := q.Exec(ctx, CreateTableSQL(schema, table, columns)); err != nil {
		return fmt.Errorf("failed to create %s.%s: %w", schema, table, err)
	}
	return nil
}

// CreateTableSQL renders the CREATE TABLE statement for columns.
func CreateTableSQL(schema, table string, columns []pgetl.Column) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = pgx.Identifier{col.Name}.Sanitize() + " " + col.Type.SQL()
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pgx.Identifier{schema, table}.Sanitize(), strings.Join(defs, ", "))
}

func describeKind(kind string) string {
	switch kind {
	case KindView:
		return "a view"
	case KindMaterializedView:
		return "a materialized view"
	case KindForeignTable:
		return "a foreign table"
	case "S":
		return "a sequence"
	case "i", "I":
		return "an index"
	case "c":
		return "a composite type"
	default:
		return fmt.Sprintf("relation kind %q", kind)
	}
}
