// Package scanner discovers snapshot files inside a run partition.
//
// Scanning is the legacy discovery mode of the warehouse loader: every file
// with the snapshot extension below the partition root is an artifact,
// regardless of which stage wrote it. Manifest directories and hidden files
// (including in-flight temporary writes) are ignored.
package scanner

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/vvka-141/pgetl/internal/checksum"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Scanner is safe for concurrent use as long as the calculator and
// fsProvider are.
type Scanner struct {
	calculator checksum.Calculator
	fsProvider filesystem.FileSystemProvider
}

// NewScannerWithFS creates a scanner with a custom filesystem provider.
// Panics if calculator or fsProvider is nil.
func NewScannerWithFS(calculator checksum.Calculator, fsProvider filesystem.FileSystemProvider) *Scanner {
	if calculator == nil {
		panic("calculator cannot be nil")
	}
	if fsProvider == nil {
		panic("fsProvider cannot be nil")
	}
	return &Scanner{
		calculator: calculator,
		fsProvider: fsProvider,
	}
}

// ScanPartition returns every snapshot in p, sorted by relative path.
// A partition directory that does not exist yields no artifacts.
func (s *Scanner) ScanPartition(p partition.Partition) ([]pgetl.Artifact, error) {
	dir, err := s.fsProvider.Open(p.Dir())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to open partition %s: %w", pgetl.ErrSourceUnavailable, p, err)
	}

	var artifacts []pgetl.Artifact
	err = dir.Walk(func(file filesystem.File, err error) error {
		if err != nil {
			return fmt.Errorf("error walking path: %w", err)
		}

		rel := file.RelativePath()
		if file.Info().IsDir() || !isSnapshot(rel) {
			return nil
		}

		artifact, err := s.processFile(file)
		if err != nil {
			return fmt.Errorf("failed to process file %s: %w", rel, err)
		}
		artifacts = append(artifacts, artifact)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", pgetl.ErrSourceUnavailable, err)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].Path < artifacts[j].Path
	})
	return artifacts, nil
}

func (s *Scanner) processFile(file filesystem.File) (pgetl.Artifact, error) {
	content, err := file.ReadContent()
	if err != nil {
		return pgetl.Artifact{}, fmt.Errorf("failed to read file: %w", err)
	}
	rel := file.RelativePath()
	return pgetl.Artifact{
		Name:   partition.LogicalName(rel),
		Path:   rel,
		SHA256: s.calculator.Sum(content),
	}, nil
}

func isSnapshot(rel string) bool {
	if strings.HasPrefix(rel, partition.ManifestDirName+"/") {
		return false
	}
	base := path.Base(rel)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return strings.EqualFold(path.Ext(base), pgetl.SnapshotExtension)
}
