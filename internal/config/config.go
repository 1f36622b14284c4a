// Package config loads pgetl.yaml, the pipeline's project configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/vvka-141/pgetl/pkg/pgetl"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when the config file does not exist.
// Callers can check for this with errors.Is(err, config.ErrConfigNotFound).
var ErrConfigNotFound = errors.New("config file not found")

const ConfigFileName = "pgetl.yaml"

// Artifact discovery modes for the warehouse loader.
const (
	DiscoveryManifest = "manifest"
	DiscoveryScan     = "scan"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ConnectionConfig describes one database endpoint. URL wins over the granular fields.
type ConnectionConfig struct {
	URL            string `yaml:"url,omitempty"`
	Host           string `yaml:"host,omitempty"`
	Port           int    `yaml:"port,omitempty"`
	Username       string `yaml:"username,omitempty"`
	Database       string `yaml:"database,omitempty"`
	SSLMode        string `yaml:"sslmode,omitempty"`
	AuthMethod     string `yaml:"auth_method,omitempty"`
	AzureTenantID  string `yaml:"azure_tenant_id,omitempty"`
	AzureClientID  string `yaml:"azure_client_id,omitempty"`
	AWSRegion      string `yaml:"aws_region,omitempty"`
	GoogleInstance string `yaml:"google_instance,omitempty"`
}

type PipelineConfig struct {
	Name       string   `yaml:"name"`
	Schedule   string   `yaml:"schedule"`
	OutputRoot string   `yaml:"output_root"`
	Timeout    string   `yaml:"timeout,omitempty"`
	Tags       []string `yaml:"tags,omitempty"`
}

type SourceFileConfig struct {
	Path string `yaml:"path"`
}

type SourceConfig struct {
	ConnectionConfig `yaml:",inline"`
	Schema           string   `yaml:"schema"`
	Tables           []string `yaml:"tables"`
}

type WarehouseConfig struct {
	ConnectionConfig `yaml:",inline"`
	Schema           string `yaml:"schema"`
}

type LoadConfig struct {
	Discovery        string `yaml:"discovery"`
	RequireArtifacts bool   `yaml:"require_artifacts"`
}

type ReportingConfig struct {
	SentryDSN  string `yaml:"sentry_dsn,omitempty"`
	StatsdAddr string `yaml:"statsd_addr,omitempty"`
}

type ProjectConfig struct {
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	SourceFile SourceFileConfig `yaml:"source_file"`
	Source     SourceConfig     `yaml:"source"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Load       LoadConfig       `yaml:"load"`
	Reporting  ReportingConfig  `yaml:"reporting"`
}

// Default returns the configuration used when no pgetl.yaml is present.
func Default() *ProjectConfig {
	cfg := &ProjectConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// Load reads pgetl.yaml from dir.
func Load(dir string) (*ProjectConfig, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile reads a configuration file and fills unset fields with defaults.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cfg ProjectConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills every unset field with its default.
func (c *ProjectConfig) ApplyDefaults() {
	if c.Pipeline.Name == "" {
		c.Pipeline.Name = pgetl.DefaultPipelineName
	}
	if c.Pipeline.Schedule == "" {
		c.Pipeline.Schedule = pgetl.DefaultSchedule
	}
	if c.Pipeline.OutputRoot == "" {
		c.Pipeline.OutputRoot = pgetl.DefaultOutputRoot
	}
	if c.Pipeline.Tags == nil {
		c.Pipeline.Tags = append([]string(nil), pgetl.DefaultTags...)
	}
	if c.SourceFile.Path == "" {
		c.SourceFile.Path = pgetl.DefaultSourceFile
	}
	if c.Source.Schema == "" {
		c.Source.Schema = pgetl.DefaultSourceSchema
	}
	if c.Source.Tables == nil {
		c.Source.Tables = append([]string(nil), pgetl.DefaultTables...)
	}
	if c.Warehouse.Schema == "" {
		c.Warehouse.Schema = pgetl.DefaultWarehouseSchema
	}
	if c.Load.Discovery == "" {
		c.Load.Discovery = DiscoveryManifest
	}
}

// TimeoutDuration returns the pipeline timeout, or the default when unset.
func (c *ProjectConfig) TimeoutDuration() (time.Duration, error) {
	if c.Pipeline.Timeout == "" {
		return pgetl.DefaultStageTimeout, nil
	}
	d, err := time.ParseDuration(c.Pipeline.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid pipeline.timeout %q: %w", c.Pipeline.Timeout, pgetl.ErrInvalidConfig)
	}
	return d, nil
}

// Validate reports every configuration problem at once.
func (c *ProjectConfig) Validate() error {
	var errs []error

	if c.Pipeline.Schedule == "" {
		errs = append(errs, fmt.Errorf("pipeline.schedule is required: %w", pgetl.ErrInvalidConfig))
	}
	if c.Pipeline.OutputRoot == "" {
		errs = append(errs, fmt.Errorf("pipeline.output_root is required: %w", pgetl.ErrInvalidConfig))
	}
	if d, err := c.TimeoutDuration(); err != nil {
		errs = append(errs, err)
	} else if d <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.timeout must be positive: %w", pgetl.ErrInvalidConfig))
	}
	if c.SourceFile.Path == "" {
		errs = append(errs, fmt.Errorf("source_file.path is required: %w", pgetl.ErrInvalidConfig))
	}

	if !identifierPattern.MatchString(c.Source.Schema) {
		errs = append(errs, fmt.Errorf("source.schema %q is not a valid identifier: %w", c.Source.Schema, pgetl.ErrInvalidConfig))
	}
	if len(c.Source.Tables) == 0 {
		errs = append(errs, fmt.Errorf("source.tables must list at least one table: %w", pgetl.ErrInvalidConfig))
	}
	seen := make(map[string]bool, len(c.Source.Tables))
	for _, table := range c.Source.Tables {
		if !identifierPattern.MatchString(table) {
			errs = append(errs, fmt.Errorf("source.tables entry %q is not a valid identifier: %w", table, pgetl.ErrInvalidConfig))
		}
		if seen[table] {
			errs = append(errs, fmt.Errorf("source.tables lists %q twice: %w", table, pgetl.ErrInvalidConfig))
		}
		seen[table] = true
	}

	if !identifierPattern.MatchString(c.Warehouse.Schema) {
		errs = append(errs, fmt.Errorf("warehouse.schema %q is not a valid identifier: %w", c.Warehouse.Schema, pgetl.ErrInvalidConfig))
	}

	if c.Load.Discovery != DiscoveryManifest && c.Load.Discovery != DiscoveryScan {
		errs = append(errs, fmt.Errorf("load.discovery must be %q or %q, got %q: %w",
			DiscoveryManifest, DiscoveryScan, c.Load.Discovery, pgetl.ErrInvalidConfig))
	}

	for name, conn := range map[string]ConnectionConfig{"source": c.Source.ConnectionConfig, "warehouse": c.Warehouse.ConnectionConfig} {
		if _, err := pgetl.ParseAuthMethod(conn.AuthMethod); err != nil {
			errs = append(errs, fmt.Errorf("%s.auth_method: %w", name, err))
		}
	}

	return errors.Join(errs...)
}
