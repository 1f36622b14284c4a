package services

import (
	"fmt"
	"io"

	"github.com/vvka-141/pgetl/internal/checksum"
	"github.com/vvka-141/pgetl/internal/csvio"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// trackingWriter remembers the first write error so a failed copy can be
// attributed to the destination rather than the source.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil && t.err == nil {
		t.err = err
	}
	return n, err
}

// writeSnapshot atomically replaces path with what produce writes and
// describes the result as an artifact of p.
//
// Errors raised while producing rows fail with ErrSourceUnavailable; errors
// writing the file fail with ErrWriteFailed.
func writeSnapshot(
	fsys filesystem.FileSystemProvider,
	p partition.Partition,
	name, path string,
	produce func(w io.Writer) (csvio.Stats, error),
) (pgetl.Artifact, error) {
	rel, err := p.Rel(path)
	if err != nil {
		return pgetl.Artifact{}, fmt.Errorf("%w: %w", pgetl.ErrWriteFailed, err)
	}

	var (
		stats     csvio.Stats
		digest    string
		sourceErr error
	)
	err = fsys.WriteFile(path, func(w io.Writer) error {
		tw := &trackingWriter{w: w}
		cw := checksum.NewWriter(tw)
		s, err := produce(cw)
		if err != nil {
			if tw.err == nil {
				sourceErr = err
			}
			return err
		}
		stats, digest = s, cw.Sum()
		return nil
	})
	if sourceErr != nil {
		return pgetl.Artifact{}, fmt.Errorf("%w: %s: %w", pgetl.ErrSourceUnavailable, name, sourceErr)
	}
	if err != nil {
		return pgetl.Artifact{}, fmt.Errorf("%w: failed to write %s: %w", pgetl.ErrWriteFailed, path, err)
	}

	return pgetl.Artifact{
		Name:    name,
		Path:    rel,
		Rows:    stats.Rows,
		Columns: stats.Columns,
		SHA256:  digest,
	}, nil
}

// invalidateManifest removes a stage's manifest before the stage rewrites
// its snapshots, so a failed rerun never leaves a stale completion marker.
func invalidateManifest(fsys filesystem.FileSystemProvider, p partition.Partition, stage string) error {
	if err := fsys.Remove(p.ManifestPath(stage)); err != nil {
		return fmt.Errorf("%w: failed to invalidate %s manifest: %w", pgetl.ErrWriteFailed, stage, err)
	}
	return nil
}

func ensureDir(fsys filesystem.FileSystemProvider, dir string) error {
	if err := fsys.MkdirAll(dir); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", pgetl.ErrWriteFailed, dir, err)
	}
	return nil
}
