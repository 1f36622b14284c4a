package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/pgetl/internal/config"
	"github.com/vvka-141/pgetl/internal/db"
	"github.com/vvka-141/pgetl/internal/files/filesystem"
	"github.com/vvka-141/pgetl/internal/logging"
	"github.com/vvka-141/pgetl/internal/metrics"
	"github.com/vvka-141/pgetl/internal/partition"
	"github.com/vvka-141/pgetl/internal/services"
	"github.com/vvka-141/pgetl/internal/source"
	"github.com/vvka-141/pgetl/internal/warehouse"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

const sentryFlushTimeout = 2 * time.Second

// app is everything one invocation needs, built from flags, environment and pgetl.yaml.
type app struct {
	cfg       *config.ProjectConfig
	logger    *logging.ConsoleLogger
	metrics   metrics.Client
	pipeline  *services.Pipeline
	partition partition.Partition
	timeout   time.Duration
}

func newApp(cmd *cobra.Command, flags *globalFlags) (*app, error) {
	_ = godotenv.Load()

	cfg, err := loadProjectConfig(flags.configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	if flags.outputRoot != "" {
		cfg.Pipeline.OutputRoot = flags.outputRoot
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("timeout") {
		if flags.timeout <= 0 {
			return nil, fmt.Errorf("--timeout must be positive: %w", pgetl.ErrInvalidConfig)
		}
		timeout = flags.timeout
	}

	p := partition.Today(cfg.Pipeline.OutputRoot)
	if flags.date != "" {
		if p, err = partition.Parse(cfg.Pipeline.OutputRoot, flags.date); err != nil {
			return nil, err
		}
	}

	env := db.LoadFromEnvironment()
	sourceEndpoint, err := db.ResolveEndpoint(db.RoleSource, flags.sourceURL, cfg.Source.ConnectionConfig, env)
	if err != nil {
		return nil, err
	}
	warehouseEndpoint, err := db.ResolveEndpoint(db.RoleWarehouse, flags.warehouseURL, cfg.Warehouse.ConnectionConfig, env)
	if err != nil {
		return nil, err
	}
	if warehouseEndpoint.Driver != db.DriverPostgres {
		return nil, fmt.Errorf("warehouse must be PostgreSQL, got a %s URL: %w", warehouseEndpoint.Driver, pgetl.ErrInvalidConfig)
	}

	logger := logging.NewConsoleLogger(flags.verbose)
	if err := logger.EnableSentry(cfg.Reporting.SentryDSN); err != nil {
		logger.Error("%v", err)
	}

	var stats metrics.Client = metrics.NullClient{}
	if cfg.Reporting.StatsdAddr != "" {
		client, err := metrics.NewStatsdClient(cfg.Reporting.StatsdAddr, map[string]string{"pipeline": cfg.Pipeline.Name})
		if err != nil {
			logger.Error("Metrics disabled: %v", err)
		} else {
			stats = client
		}
	}

	if flags.verbose {
		logEndpoint(logger, db.RoleSource, sourceEndpoint)
		logEndpoint(logger, db.RoleWarehouse, warehouseEndpoint)
	}

	fsProvider := filesystem.NewOSFileSystem()
	opts := services.DefaultLoaderOptions()
	opts.Schema = cfg.Warehouse.Schema
	opts.Discovery = cfg.Load.Discovery
	opts.RequireArtifacts = cfg.Load.RequireArtifacts

	pipeline := services.NewPipeline(
		services.PipelineInfo{Name: cfg.Pipeline.Name, Schedule: cfg.Pipeline.Schedule, Tags: cfg.Pipeline.Tags},
		services.NewFileExtractor(cfg.SourceFile.Path, fsProvider, logger, stats),
		services.NewTableExtractor(source.NewOpener(sourceEndpoint, logger), cfg.Source.Schema, cfg.Source.Tables, fsProvider, logger, stats),
		services.NewWarehouseLoader(warehouse.NewOpener(warehouseEndpoint.Postgres, logger), fsProvider, logger, stats, opts),
		logger,
		stats,
	)

	return &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   stats,
		pipeline:  pipeline,
		partition: p,
		timeout:   timeout,
	}, nil
}

// Close flushes metrics and pending Sentry events.
func (a *app) Close() {
	if err := a.metrics.Close(); err != nil {
		a.logger.Verbose("closing metrics client: %v", err)
	}
	a.logger.Flush(sentryFlushTimeout)
}

// context returns a context bounded by the invocation timeout and cancelled on SIGINT or SIGTERM.
func (a *app) context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			a.logger.Error("Received interrupt signal, cancelling run...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// loadProjectConfig reads path. A missing file is an error only when the
// user named it explicitly.
func loadProjectConfig(path string, explicit bool) (*config.ProjectConfig, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			if explicit {
				return nil, fmt.Errorf("config file %s not found: %w", path, pgetl.ErrInvalidConfig)
			}
			return config.Default(), nil
		}
		return nil, fmt.Errorf("failed to load %s: %w: %w", path, pgetl.ErrInvalidConfig, err)
	}
	return cfg, nil
}

func logEndpoint(logger pgetl.Logger, role db.Role, e *db.Endpoint) {
	if e.Postgres == nil {
		logger.Verbose("%s: %s connection from URL", role, e.Driver)
		return
	}
	pg := e.Postgres
	logger.Verbose("%s: host=%s port=%d user=%s database=%s sslmode=%s auth=%s",
		role, pg.Host, pg.Port, pg.Username, pg.Database, pg.SSLMode, pg.AuthMethod)
}
