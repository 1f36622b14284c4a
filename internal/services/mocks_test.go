package services

import (
	"context"
	"database/sql/driver"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgetl/internal/db"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/logging"
	"github.com/vvka-141/pgetl/internal/metrics"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/internal/source"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

const (
	testOutputRoot = "/data_output"
	testSourceFile = "/data_source/transacoes.csv"
	testDate       = "2025-01-15"
)

func testPartition(t *testing.T) partition.Partition {
	t.Helper()
	p, err := partition.Parse(testOutputRoot, testDate)
	require.NoError(t, err)
	return p
}

// fakeSource hands out sqlmock-backed handles. setup runs on every Open
// against a fresh mock.
type fakeSource struct {
	mu      sync.Mutex
	setup   func(mock sqlmock.Sqlmock)
	openErr error
	opens   int
	closes  int
	mocks   []sqlmock.Sqlmock
}

func (f *fakeSource) Open(_ context.Context) (pgetl.SourceHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}
	if f.setup != nil {
		f.setup(mock)
	}
	f.mocks = append(f.mocks, mock)
	return source.NewHandle(sqlDB, db.DriverPostgres, func() error {
		f.mu.Lock()
		f.closes++
		f.mu.Unlock()
		_ = sqlDB.Close()
		return nil
	}), nil
}

func (f *fakeSource) counts() (opens, closes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens, f.closes
}

func expectTable(mock sqlmock.Sqlmock, table string, columns []string, rows [][]any) *sqlmock.ExpectedQuery {
	r := sqlmock.NewRows(columns)
	for _, row := range rows {
		r.AddRow(toDriverValues(row)...)
	}
	return mock.ExpectQuery(regexp.QuoteMeta(fmt.Sprintf(`SELECT * FROM "public".%q`, table))).WillReturnRows(r)
}

func toDriverValues(values []any) []driver.Value {
	out := make([]driver.Value, len(values))
	for i, v := range values {
		if n, ok := v.(int); ok {
			out[i] = int64(n)
			continue
		}
		out[i] = v
	}
	return out
}

// numberedRows returns n rows of (id, name).
func numberedRows(n int) [][]any {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{i + 1, fmt.Sprintf("row %d", i+1)}
	}
	return rows
}

type warehouseTable struct {
	columns []pgetl.Column
	rows    [][]any
}

// fakeWarehouse is an in-memory warehouse. Every session shares its state.
type fakeWarehouse struct {
	mu         sync.Mutex
	schemas    map[string]bool
	tables     map[string]warehouseTable
	views      map[string]bool
	events     []string
	openErr    error
	ensureErr  error
	replaceErr map[string]error
	sessions   int
	open       int
}

func newFakeWarehouse() *fakeWarehouse {
	return &fakeWarehouse{
		schemas:    map[string]bool{},
		tables:     map[string]warehouseTable{},
		views:      map[string]bool{},
		replaceErr: map[string]error{},
	}
}

func (w *fakeWarehouse) Open(_ context.Context) (pgetl.WarehouseSession, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.openErr != nil {
		return nil, w.openErr
	}
	w.sessions++
	w.open++
	id := w.sessions
	w.events = append(w.events, fmt.Sprintf("open %d", id))
	return &fakeSession{w: w, id: id}, nil
}

func (w *fakeWarehouse) record(event string) {
	w.events = append(w.events, event)
}

func (w *fakeWarehouse) table(schema, name string) (warehouseTable, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t, ok := w.tables[schema+"."+name]
	return t, ok
}

func (w *fakeWarehouse) tableNames() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	names := make([]string, 0, len(w.tables))
	for k := range w.tables {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (w *fakeWarehouse) openSessions() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

type fakeSession struct {
	w      *fakeWarehouse
	id     int
	closed bool
}

func (s *fakeSession) EnsureSchema(_ context.Context, schema string) error {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	s.w.record(fmt.Sprintf("ensure %s on %d", schema, s.id))
	if s.w.ensureErr != nil {
		return s.w.ensureErr
	}
	s.w.schemas[schema] = true
	return nil
}

func (s *fakeSession) ReplaceTable(_ context.Context, schema, table string, columns []pgetl.Column, rows [][]any) (int64, error) {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	key := schema + "." + table
	s.w.record(fmt.Sprintf("replace %s on %d", key, s.id))
	if !s.w.schemas[schema] {
		return 0, fmt.Errorf("schema %q does not exist", schema)
	}
	if s.w.views[key] {
		return 0, fmt.Errorf("%s exists as a view, not a table: %w", key, pgetl.ErrSchemaConflict)
	}
	if err := s.w.replaceErr[table]; err != nil {
		return 0, err
	}
	s.w.tables[key] = warehouseTable{columns: columns, rows: rows}
	return int64(len(rows)), nil
}

func (s *fakeSession) Close() {
	s.w.mu.Lock()
	defer s.w.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.w.open--
	s.w.record(fmt.Sprintf("close %d", s.id))
}

type testEnv struct {
	fs        *filesystem.MemoryFileSystem
	source    *fakeSource
	warehouse *fakeWarehouse
	metrics   *metrics.MemoryClient
	logger    pgetl.Logger
}

func newTestEnv() *testEnv {
	return &testEnv{
		fs:        filesystem.NewMemoryFileSystem("/"),
		source:    &fakeSource{},
		warehouse: newFakeWarehouse(),
		metrics:   &metrics.MemoryClient{},
		logger:    logging.NewNullLogger(),
	}
}

func (e *testEnv) fileExtractor() *FileExtractor {
	return NewFileExtractor(testSourceFile, e.fs, e.logger, e.metrics)
}

func (e *testEnv) tableExtractor(tables ...string) *TableExtractor {
	return NewTableExtractor(e.source, pgetl.DefaultSourceSchema, tables, e.fs, e.logger, e.metrics)
}

func (e *testEnv) loader(opts LoaderOptions) *WarehouseLoader {
	return NewWarehouseLoader(e.warehouse, e.fs, e.logger, e.metrics, opts)
}

func (e *testEnv) pipeline(tables ...string) *Pipeline {
	return NewPipeline(
		PipelineInfo{Name: pgetl.DefaultPipelineName, Schedule: pgetl.DefaultSchedule, Tags: pgetl.DefaultTags},
		e.fileExtractor(),
		e.tableExtractor(tables...),
		e.loader(DefaultLoaderOptions()),
		e.logger,
		e.metrics,
	)
}
