// Package partition maps a run date to its directory layout under the
// output root.
//
//	<root>/<YYYY-MM-DD>/csv/<source basename>
//	<root>/<YYYY-MM-DD>/sql/<table>.csv
//	<root>/<YYYY-MM-DD>/_manifests/<stage>.yaml
package partition

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/vvka-141/pgetl/pkg/pgetl"
)

const (
	// CSVDirName holds copies of the source flat file.
	CSVDirName = "csv"

	// SQLDirName holds one snapshot per catalog table.
	SQLDirName = "sql"

	// ManifestDirName holds stage completion manifests. Scans skip it.
	ManifestDirName = "_manifests"

	manifestExt = ".yaml"
)

// Partition is one run's output area, identified by its calendar date.
type Partition struct {
	Root string
	Date time.Time
}

// New returns the partition for date under root. Only the calendar date is kept.
func New(root string, date time.Time) Partition {
	y, m, d := date.Date()
	return Partition{
		Root: filepath.Clean(root),
		Date: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
	}
}

// Today returns the partition for the current local date.
func Today(root string) Partition {
	return New(root, time.Now())
}

// Parse returns the partition named by a YYYY-MM-DD string.
func Parse(root, date string) (Partition, error) {
	t, err := time.Parse(pgetl.PartitionDateLayout, strings.TrimSpace(date))
	if err != nil {
		return Partition{}, fmt.Errorf("%w: invalid partition date %q (expected YYYY-MM-DD)", pgetl.ErrInvalidConfig, date)
	}
	return New(root, t), nil
}

// Name returns the partition's directory name.
func (p Partition) Name() string {
	return p.Date.Format(pgetl.PartitionDateLayout)
}

func (p Partition) String() string {
	return p.Name()
}

// Dir returns the partition root directory.
func (p Partition) Dir() string {
	return filepath.Join(p.Root, p.Name())
}

func (p Partition) CSVDir() string {
	return filepath.Join(p.Dir(), CSVDirName)
}

func (p Partition) SQLDir() string {
	return filepath.Join(p.Dir(), SQLDirName)
}

func (p Partition) ManifestDir() string {
	return filepath.Join(p.Dir(), ManifestDirName)
}

// FileSnapshotPath returns where a copy of sourcePath is written.
func (p Partition) FileSnapshotPath(sourcePath string) string {
	return filepath.Join(p.CSVDir(), filepath.Base(sourcePath))
}

// TableSnapshotPath returns where the snapshot of table is written.
func (p Partition) TableSnapshotPath(table string) string {
	return filepath.Join(p.SQLDir(), table+pgetl.SnapshotExtension)
}

// ManifestPath returns the completion manifest location for stage.
func (p Partition) ManifestPath(stage string) string {
	return filepath.Join(p.ManifestDir(), stage+manifestExt)
}

// Rel returns path relative to the partition root, using forward slashes.
func (p Partition) Rel(path string) (string, error) {
	rel, err := filepath.Rel(p.Dir(), path)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside partition %s", path, p.Dir())
	}
	return filepath.ToSlash(rel), nil
}

// Abs resolves a partition-relative path. Paths escaping the partition are rejected.
func (p Partition) Abs(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("artifact path %q escapes partition %s", rel, p.Name())
	}
	return filepath.Join(p.Dir(), clean), nil
}

// LogicalName strips directory and snapshot extension from a snapshot path.
func LogicalName(path string) string {
	base := filepath.Base(filepath.FromSlash(path))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
