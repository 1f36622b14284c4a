// Package manifest reads and writes stage completion manifests.
//
// An extractor writes its manifest as the last action of a successful run,
// so the file's presence marks the stage complete for the partition. The
// loader consumes the artifact lists instead of scanning the directory.
package manifest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/vvka-141/pgetl/internal/checksum"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Manifest lists what one stage produced for one partition.
type Manifest struct {
	Stage       string           `yaml:"stage"`
	Partition   string           `yaml:"partition"`
	RunID       uuid.UUID        `yaml:"run_id"`
	CompletedAt time.Time        `yaml:"completed_at"`
	Artifacts   []pgetl.Artifact `yaml:"artifacts"`
}

// New starts a manifest for stage in p.
func New(stage string, p partition.Partition, runID uuid.UUID) *Manifest {
	return &Manifest{
		Stage:     stage,
		Partition: p.Name(),
		RunID:     runID,
		Artifacts: []pgetl.Artifact{},
	}
}

// Add records an artifact.
func (m *Manifest) Add(a pgetl.Artifact) {
	m.Artifacts = append(m.Artifacts, a)
}

// TotalRows sums the row counts of every artifact.
func (m *Manifest) TotalRows() int64 {
	var n int64
	for _, a := range m.Artifacts {
		n += a.Rows
	}
	return n
}

// Write stamps CompletedAt and stores m at p's manifest path for its stage.
func Write(fsys filesystem.FileSystemProvider, p partition.Partition, m *Manifest) error {
	if m.Stage == "" {
		return fmt.Errorf("manifest has no stage")
	}
	if m.Partition != p.Name() {
		return fmt.Errorf("manifest for partition %s cannot be written to %s", m.Partition, p.Name())
	}
	m.CompletedAt = time.Now().UTC().Truncate(time.Second)

	if err := fsys.MkdirAll(p.ManifestDir()); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", pgetl.ErrWriteFailed, p.ManifestDir(), err)
	}
	path := p.ManifestPath(m.Stage)
	err := fsys.WriteFile(path, func(w io.Writer) error {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return err
		}
		return enc.Close()
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write manifest %s: %w", pgetl.ErrWriteFailed, path, err)
	}
	return nil
}

// Read loads the manifest of stage in p. A missing manifest means the stage
// has not completed and fails with ErrUpstreamIncomplete.
func Read(fsys filesystem.FileSystemProvider, p partition.Partition, stage string) (*Manifest, error) {
	path := p.ManifestPath(stage)
	data, err := fsys.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: stage %s has not completed for partition %s", pgetl.ErrUpstreamIncomplete, stage, p)
		}
		return nil, fmt.Errorf("%w: failed to read manifest %s: %w", pgetl.ErrSourceUnavailable, path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: invalid manifest %s: %w", pgetl.ErrArtifactMismatch, path, err)
	}
	if m.Stage != stage || m.Partition != p.Name() {
		return nil, fmt.Errorf("%w: manifest %s describes stage %q partition %q",
			pgetl.ErrArtifactMismatch, path, m.Stage, m.Partition)
	}
	return &m, nil
}

// Verify checks that the artifact file still matches its recorded digest
// and returns its absolute path.
func Verify(fsys filesystem.FileSystemProvider, calc checksum.Calculator, p partition.Partition, a pgetl.Artifact) (string, error) {
	path, err := p.Abs(a.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %w", pgetl.ErrArtifactMismatch, err)
	}
	r, err := fsys.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: artifact %s listed in manifest is missing", pgetl.ErrArtifactMismatch, a.Path)
		}
		return "", fmt.Errorf("%w: failed to open %s: %w", pgetl.ErrSourceUnavailable, a.Path, err)
	}
	defer r.Close()

	sum, _, err := calc.SumReader(r)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read %s: %w", pgetl.ErrSourceUnavailable, a.Path, err)
	}
	if !strings.EqualFold(sum, a.SHA256) {
		return "", fmt.Errorf("%w: %s has sha256 %s, manifest recorded %s", pgetl.ErrArtifactMismatch, a.Path, sum, a.SHA256)
	}
	return path, nil
}
