package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/google/uuid"

	"github.com/vvka-141/pgetl/internal/csvio"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/manifest"
	"github.com/vvka-141/pgetl/internal/metrics"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// FileExtractor copies the source flat file into a partition's csv directory.
// Safe for concurrent use on different partitions.
type FileExtractor struct {
	sourcePath string
	fsProvider filesystem.FileSystemProvider
	logger     pgetl.Logger
	metrics    metrics.Client
}

// NewFileExtractor panics if fsProvider, logger or metricsClient is nil.
func NewFileExtractor(sourcePath string, fsProvider filesystem.FileSystemProvider, logger pgetl.Logger, metricsClient metrics.Client) *FileExtractor {
	if fsProvider == nil {
		panic("fsProvider cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	if metricsClient == nil {
		panic("metrics cannot be nil")
	}
	return &FileExtractor{
		sourcePath: sourcePath,
		fsProvider: fsProvider,
		logger:     logger,
		metrics:    metricsClient,
	}
}

// SourcePath returns the file this extractor reads.
func (e *FileExtractor) SourcePath() string {
	return e.sourcePath
}

// Extract writes <partition>/csv/<basename> and the extract_file manifest.
// A missing or unreadable source fails with ErrSourceUnavailable.
func (e *FileExtractor) Extract(ctx context.Context, p partition.Partition, runID uuid.UUID) (*manifest.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := invalidateManifest(e.fsProvider, p, pgetl.StageExtractFile); err != nil {
		return nil, err
	}

	src, err := e.fsProvider.OpenFile(e.sourcePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: source file %s does not exist", pgetl.ErrSourceUnavailable, e.sourcePath)
		}
		return nil, fmt.Errorf("%w: failed to open %s: %w", pgetl.ErrSourceUnavailable, e.sourcePath, err)
	}
	defer src.Close()

	if err := ensureDir(e.fsProvider, p.CSVDir()); err != nil {
		return nil, err
	}

	dst := p.FileSnapshotPath(e.sourcePath)
	name := partition.LogicalName(e.sourcePath)
	artifact, err := writeSnapshot(e.fsProvider, p, name, dst, func(w io.Writer) (csvio.Stats, error) {
		return csvio.Copy(w, src)
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("%s saved to %s (%d rows)", e.sourcePath, dst, artifact.Rows)
	e.metrics.Count(metrics.RowsExtracted, artifact.Rows, map[string]string{"stage": pgetl.StageExtractFile, "source": name})

	m := manifest.New(pgetl.StageExtractFile, p, runID)
	m.Add(artifact)
	if err := manifest.Write(e.fsProvider, p, m); err != nil {
		return nil, err
	}
	return m, nil
}
