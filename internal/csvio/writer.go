// Package csvio reads and writes the row-oriented snapshot format: RFC 4180
// CSV with a header row, comma separated, NULL as an empty field. Snapshots
// written from query results use LF line endings; file snapshots keep the
// bytes of their source.
package csvio

import (
	"bufio"
	"bytes"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ErrNoHeader is returned when the input has no header row.
var ErrNoHeader = errors.New("csv input has no header row")

// Stats describes one written snapshot.
type Stats struct {
	Columns []string
	Rows    int64
}

// Writer writes a header followed by data records.
type Writer struct {
	writer  *csv.Writer
	columns int
	rows    int64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{writer: csv.NewWriter(w)}
}

// WriteHeader must be called once before any record.
func (w *Writer) WriteHeader(columns []string) error {
	if w.columns != 0 {
		return errors.New("header already written")
	}
	if len(columns) == 0 {
		return ErrNoHeader
	}
	w.columns = len(columns)
	return w.writer.Write(columns)
}

func (w *Writer) Write(record []string) error {
	if w.columns == 0 {
		return ErrNoHeader
	}
	if len(record) != w.columns {
		return fmt.Errorf("record %d has %d fields, header has %d", w.rows+1, len(record), w.columns)
	}
	if err := w.writer.Write(record); err != nil {
		return err
	}
	w.rows++
	return nil
}

// Rows returns the number of data records written.
func (w *Writer) Rows() int64 {
	return w.rows
}

func (w *Writer) Flush() error {
	w.writer.Flush()
	return w.writer.Error()
}

// Copy streams src to dst unchanged apart from a leading UTF-8 byte order
// mark, and reports the header and the number of data records. The stream is
// parsed leniently: stray quotes and records shorter or longer than the
// header are counted as they are and never rewritten.
func Copy(dst io.Writer, src io.Reader) (Stats, error) {
	r := newReader(io.TeeReader(skipBOM(src), dst))

	header, err := r.Read()
	if err == io.EOF {
		return Stats{}, ErrNoHeader
	}
	if err != nil {
		return Stats{}, err
	}

	var rows int64
	for {
		_, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Stats{}, err
		}
		rows++
	}
	return Stats{Columns: header, Rows: rows}, nil
}

// WriteRows writes the column names of rows as the header and then every
// row. SQL NULL becomes an empty field. rows is consumed but not closed.
func WriteRows(dst io.Writer, rows *sql.Rows) (Stats, error) {
	columns, err := rows.Columns()
	if err != nil {
		return Stats{}, err
	}

	w := NewWriter(dst)
	if err := w.WriteHeader(columns); err != nil {
		return Stats{}, err
	}

	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	record := make([]string, len(columns))

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return Stats{}, fmt.Errorf("scan row %d: %w", w.Rows()+1, err)
		}
		for i, v := range values {
			record[i] = v.String
		}
		if err := w.Write(record); err != nil {
			return Stats{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}
	if err := w.Flush(); err != nil {
		return Stats{}, err
	}
	return Stats{Columns: columns, Rows: w.Rows()}, nil
}

func skipBOM(src io.Reader) io.Reader {
	br := bufio.NewReader(src)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		br.Discard(len(utf8BOM))
	}
	return br
}

// newReader accepts bare quotes and records of any width; callers decide
// what a field count mismatch means.
func newReader(src io.Reader) *csv.Reader {
	r := csv.NewReader(src)
	r.LazyQuotes = true
	r.FieldsPerRecord = -1
	return r
}
