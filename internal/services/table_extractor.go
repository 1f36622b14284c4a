package services

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/vvka-141/pgetl/internal/csvio"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/manifest"
	"github.com/vvka-141/pgetl/internal/metrics"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// TableExtractor snapshots every table of the source catalog into a
// partition's sql directory.
type TableExtractor struct {
	opener     pgetl.SourceOpener
	schema     string
	tables     []string
	fsProvider filesystem.FileSystemProvider
	logger     pgetl.Logger
	metrics    metrics.Client
}

// NewTableExtractor panics on nil dependencies.
func NewTableExtractor(
	opener pgetl.SourceOpener,
	schema string,
	tables []string,
	fsProvider filesystem.FileSystemProvider,
	logger pgetl.Logger,
	metricsClient metrics.Client,
) *TableExtractor {
	if opener == nil {
		panic("opener cannot be nil")
	}
	if fsProvider == nil {
		panic("fsProvider cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if metricsClient == nil {
		panic("metrics cannot be nil")
	}
	return &TableExtractor{
		opener:     opener,
		schema:     schema,
		tables:     append([]string(nil), tables...),
		fsProvider: fsProvider,
		logger:     logger,
		metrics:    metricsClient,
	}
}

// Schema returns the source schema and Tables the catalog, in extraction order.
func (e *TableExtractor) Schema() string   { return e.schema }
func (e *TableExtractor) Tables() []string { return append([]string(nil), e.tables...) }

// Extract connects once, writes <partition>/sql/<table>.csv for every
// catalog table in order, and writes the extract_tables manifest. The first
// failing table aborts the stage. The source connection is released on
// every path.
func (e *TableExtractor) Extract(ctx context.Context, p partition.Partition, runID uuid.UUID) (m *manifest.Manifest, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := invalidateManifest(e.fsProvider, p, pgetl.StageExtractTables); err != nil {
		return nil, err
	}

	handle, err := e.opener.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pgetl.ErrSourceUnavailable, err)
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			e.logger.Verbose("closing source connection: %v", closeErr)
		}
	}()

	if err := ensureDir(e.fsProvider, p.SQLDir()); err != nil {
		return nil, err
	}

	m = manifest.New(pgetl.StageExtractTables, p, runID)
	for _, table := range e.tables {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		artifact, err := e.extractTable(ctx, handle, p, table)
		if err != nil {
			return nil, fmt.Errorf("extracting %s.%s: %w", e.schema, table, err)
		}
		m.Add(artifact)
	}

	if err := manifest.Write(e.fsProvider, p, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (e *TableExtractor) extractTable(ctx context.Context, handle pgetl.SourceHandle, p partition.Partition, table string) (pgetl.Artifact, error) {
	rows, err := handle.QueryTable(ctx, e.schema, table)
	if err != nil {
		return pgetl.Artifact{}, fmt.Errorf("%w: %w", pgetl.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	dst := p.TableSnapshotPath(table)
	artifact, err := writeSnapshot(e.fsProvider, p, table, dst, func(w io.Writer) (csvio.Stats, error) {
		return csvio.WriteRows(w, rows)
	})
	if err != nil {
		return pgetl.Artifact{}, err
	}

	e.logger.Info("Table %s saved to %s (%d rows)", table, dst, artifact.Rows)
	e.metrics.Count(metrics.RowsExtracted, artifact.Rows, map[string]string{"stage": pgetl.StageExtractTables, "source": table})
	return artifact, nil
}
