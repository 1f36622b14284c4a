package csvio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Table is a snapshot decoded for loading.
type Table struct {
	Columns []pgetl.Column

	// Rows hold int64, float64, bool, string or nil per the column type.
	Rows [][]any
}

// ReadTable decodes a snapshot and infers a warehouse type per column.
// A column is BIGINT if every non-empty value is an integer, DOUBLE
// PRECISION if every one is a number, BOOLEAN if every one is true or false,
// and TEXT otherwise. Empty fields load as NULL.
//
// Records shorter than the header are padded with NULLs. Longer records,
// and empty or duplicate column names, fail with ErrSchemaConflict.
func ReadTable(src io.Reader) (*Table, error) {
	r := newReader(skipBOM(src))

	header, err := r.Read()
	if err == io.EOF {
		return nil, ErrNoHeader
	}
	if err != nil {
		return nil, err
	}
	if err := checkHeader(header); err != nil {
		return nil, err
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	for n, record := range records {
		switch {
		case len(record) > len(header):
			return nil, fmt.Errorf("%w: row %d has %d fields, header has %d", pgetl.ErrSchemaConflict, n+1, len(record), len(header))
		case len(record) < len(header):
			records[n] = append(record, make([]string, len(header)-len(record))...)
		}
	}

	columns := make([]pgetl.Column, len(header))
	for i, name := range header {
		columns[i] = pgetl.Column{Name: name, Type: inferType(records, i)}
	}

	rows := make([][]any, len(records))
	for n, record := range records {
		row := make([]any, len(record))
		for i, field := range record {
			v, err := convert(field, columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", n+1, columns[i].Name, err)
			}
			row[i] = v
		}
		rows[n] = row
	}
	return &Table{Columns: columns, Rows: rows}, nil
}

// ColumnNames returns the column names in order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

func checkHeader(header []string) error {
	seen := make(map[string]int, len(header))
	for i, name := range header {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: column %d has an empty name", pgetl.ErrSchemaConflict, i+1)
		}
		// Names are compared case-insensitively.
		key := strings.ToLower(name)
		if prev, ok := seen[key]; ok {
			return fmt.Errorf("%w: columns %d and %d are both named %q", pgetl.ErrSchemaConflict, prev+1, i+1, name)
		}
		seen[key] = i
	}
	return nil
}

func inferType(records [][]string, col int) pgetl.ColumnType {
	isInt, isFloat, isBool := true, true, true
	hasValue := false
	for _, record := range records {
		v := record[col]
		if v == "" {
			continue
		}
		hasValue = true
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if _, ok := parseBool(v); !ok {
				isBool = false
			}
		}
		if !isInt && !isFloat && !isBool {
			return pgetl.ColumnText
		}
	}
	switch {
	case !hasValue:
		return pgetl.ColumnText
	case isInt:
		return pgetl.ColumnBigInt
	case isFloat:
		return pgetl.ColumnDouble
	case isBool:
		return pgetl.ColumnBoolean
	default:
		return pgetl.ColumnText
	}
}

func convert(v string, t pgetl.ColumnType) (any, error) {
	if v == "" {
		return nil, nil
	}
	switch t {
	case pgetl.ColumnBigInt:
		return strconv.ParseInt(v, 10, 64)
	case pgetl.ColumnDouble:
		return strconv.ParseFloat(v, 64)
	case pgetl.ColumnBoolean:
		b, ok := parseBool(v)
		if !ok {
			return nil, fmt.Errorf("invalid boolean %q", v)
		}
		return b, nil
	default:
		return v, nil
	}
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}
