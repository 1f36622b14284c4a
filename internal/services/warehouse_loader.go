package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/vvka-141/pgetl/internal/checksum"
	"github.com/vvka-141/pgetl/internal/config"
	"github.com/vvka-141/pgetl/internal/csvio"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/files/scanner"
	"github.com/vvka-141/pgetl/internal/manifest"
	"github.com/vvka-141/pgetl/internal/metrics"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// LoaderOptions controls how the warehouse loader finds its inputs.
type LoaderOptions struct {
	// Schema is the warehouse schema, created when absent.
	Schema string

	// Discovery is config.DiscoveryManifest or config.DiscoveryScan.
	Discovery string

	// RequireArtifacts turns an empty load into ErrNoArtifacts.
	RequireArtifacts bool

	// Upstream lists the stages whose manifests must exist in manifest mode.
	Upstream []string
}

// DefaultLoaderOptions waits on both extractors and discovers by manifest.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		Schema:    pgetl.DefaultWarehouseSchema,
		Discovery: config.DiscoveryManifest,
		Upstream:  []string{pgetl.StageExtractFile, pgetl.StageExtractTables},
	}
}

// WarehouseLoader replace-loads every snapshot of a partition into the
// warehouse schema.
type WarehouseLoader struct {
	opener     pgetl.WarehouseOpener
	fsProvider filesystem.FileSystemProvider
	scanner    *scanner.Scanner
	calculator checksum.Calculator
	logger     pgetl.Logger
	metrics    metrics.Client
	opts       LoaderOptions
}

// NewWarehouseLoader panics on nil dependencies.
func NewWarehouseLoader(
	opener pgetl.WarehouseOpener,
	fsProvider filesystem.FileSystemProvider,
	logger pgetl.Logger,
	metricsClient metrics.Client,
	opts LoaderOptions,
) *WarehouseLoader {
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
	if opts.Schema == "" {
		opts.Schema = pgetl.DefaultWarehouseSchema
	}
	if opts.Discovery == "" {
		opts.Discovery = config.DiscoveryManifest
	}
	calc := checksum.New()
	return &WarehouseLoader{
		opener:     opener,
		fsProvider: fsProvider,
		scanner:    scanner.NewScannerWithFS(calc, fsProvider),
		calculator: calc,
		logger:     logger,
		metrics:    metricsClient,
		opts:       opts,
	}
}

// Schema returns the target warehouse schema.
func (l *WarehouseLoader) Schema() string {
	return l.opts.Schema
}

// snapshot is a discovered input ready to load.
type snapshot struct {
	artifact pgetl.Artifact
	path     string
}

// Load ensures the warehouse schema on a short-lived administrative session,
// discovers the partition's snapshots and replace-loads each one into
// <schema>.<name> on a second session. Any failure is fatal.
func (l *WarehouseLoader) Load(ctx context.Context, p partition.Partition) (pgetl.LoadResult, error) {
	result := pgetl.LoadResult{Schema: l.opts.Schema}

	var manifests []*manifest.Manifest
	if l.opts.Discovery == config.DiscoveryManifest {
		for _, stage := range l.opts.Upstream {
			m, err := manifest.Read(l.fsProvider, p, stage)
			if err != nil {
				return result, err
			}
			manifests = append(manifests, m)
		}
	}

	if err := l.ensureSchema(ctx); err != nil {
		return result, err
	}

	snapshots, err := l.discover(p, manifests)
	if err != nil {
		return result, err
	}
	if len(snapshots) == 0 {
		if l.opts.RequireArtifacts {
			return result, fmt.Errorf("%w: partition %s", pgetl.ErrNoArtifacts, p)
		}
		l.logger.Info("No snapshots found in partition %s; nothing to load", p)
		return result, nil
	}

	session, err := l.opener.Open(ctx)
	if err != nil {
		return result, err
	}
	defer session.Close()

	for _, snap := range snapshots {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		loaded, err := l.loadOne(ctx, session, snap)
		if err != nil {
			return result, fmt.Errorf("loading %s into %s.%s: %w", snap.artifact.Path, l.opts.Schema, snap.artifact.Name, err)
		}
		result.Tables = append(result.Tables, loaded)
	}
	return result, nil
}

func (l *WarehouseLoader) ensureSchema(ctx context.Context) error {
	admin, err := l.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer admin.Close()

	if err := admin.EnsureSchema(ctx, l.opts.Schema); err != nil {
		return err
	}
	l.logger.Verbose("Schema %s ensured", l.opts.Schema)
	return nil
}

func (l *WarehouseLoader) discover(p partition.Partition, manifests []*manifest.Manifest) ([]snapshot, error) {
	var snapshots []snapshot
	if l.opts.Discovery == config.DiscoveryScan {
		artifacts, err := l.scanner.ScanPartition(p)
		if err != nil {
			return nil, err
		}
		for _, a := range artifacts {
			path, err := p.Abs(a.Path)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", pgetl.ErrSourceUnavailable, err)
			}
			snapshots = append(snapshots, snapshot{artifact: a, path: path})
		}
	} else {
		for _, m := range manifests {
			for _, a := range m.Artifacts {
				path, err := manifest.Verify(l.fsProvider, l.calculator, p, a)
				if err != nil {
					return nil, err
				}
				snapshots = append(snapshots, snapshot{artifact: a, path: path})
			}
		}
	}

	seen := make(map[string]string, len(snapshots))
	for _, s := range snapshots {
		key := strings.ToLower(s.artifact.Name)
		if prev, ok := seen[key]; ok {
			return nil, fmt.Errorf("%w: %s and %s both load into %s.%s",
				pgetl.ErrSchemaConflict, prev, s.artifact.Path, l.opts.Schema, s.artifact.Name)
		}
		seen[key] = s.artifact.Path
	}
	return snapshots, nil
}

func (l *WarehouseLoader) loadOne(ctx context.Context, session pgetl.WarehouseSession, snap snapshot) (pgetl.LoadedTable, error) {
	table, err := l.readSnapshot(snap.path)
	if err != nil {
		return pgetl.LoadedTable{}, err
	}

	name := snap.artifact.Name
	n, err := session.ReplaceTable(ctx, l.opts.Schema, name, table.Columns, table.Rows)
	if err != nil {
		return pgetl.LoadedTable{}, err
	}

	l.logger.Info("%s loaded into %s.%s (%d rows)", snap.artifact.Path, l.opts.Schema, name, n)
	l.metrics.Count(metrics.RowsLoaded, n, map[string]string{"schema": l.opts.Schema, "table": name})
	return pgetl.LoadedTable{Schema: l.opts.Schema, Table: name, Source: snap.artifact.Path, Rows: n}, nil
}

func (l *WarehouseLoader) readSnapshot(path string) (*csvio.Table, error) {
	r, err := l.fsProvider.OpenFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: snapshot %s disappeared", pgetl.ErrSourceUnavailable, path)
		}
		return nil, fmt.Errorf("%w: %w", pgetl.ErrSourceUnavailable, err)
	}
	defer r.Close()

	table, err := csvio.ReadTable(r)
	if err != nil {
		if errors.Is(err, pgetl.ErrSchemaConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", pgetl.ErrSourceUnavailable, path, err)
	}
	return table, nil
}
