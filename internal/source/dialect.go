package source

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgetl/internal/db"
)

// QualifiedName quotes schema.table for driver.
func QualifiedName(driver, schema, table string) (string, error) {
	switch driver {
	case db.DriverPostgres:
		return pgx.Identifier{schema, table}.Sanitize(), nil
	case db.DriverMySQL:
		return quote(schema, "`", "`") + "." + quote(table, "`", "`"), nil
	case db.DriverSQLServer:
		return quote(schema, "[", "]") + "." + quote(table, "[", "]"), nil
	default:
		return "", fmt.Errorf("unsupported source driver %q", driver)
	}
}

func quote(ident, open, close string) string {
	return open + strings.ReplaceAll(ident, close, close+close) + close
}

// SelectAllSQL returns the full-table read for schema.table.
func SelectAllSQL(driver, schema, table string) (string, error) {
	name, err := QualifiedName(driver, schema, table)
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + name, nil
}
