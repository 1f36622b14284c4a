package db

import (
	"fmt"
	"os"
	"strconv"

	"github.com/vvka-141/pgetl/internal/config"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Role names which side of the pipeline a connection serves.
type Role string

const (
	RoleSource    Role = "source"
	RoleWarehouse Role = "warehouse"
)

// AppName is reported to PostgreSQL as application_name.
const AppName = "pgetl"

const defaultSSLMode = "prefer"

// EnvVars holds the environment variables that take part in connection resolution.
// See: https://www.postgresql.org/docs/current/libpq-envars.html
type EnvVars struct {
	PGHOST       string
	PGPORT       string
	PGUSER       string
	PGPASSWORD   string
	PGDATABASE   string
	PGSSLMODE    string
	DATABASE_URL string

	PGETL_SOURCE_URL    string
	PGETL_WAREHOUSE_URL string

	AZURE_TENANT_ID     string
	AZURE_CLIENT_ID     string
	AZURE_CLIENT_SECRET string
	AWS_REGION          string
}

// LoadFromEnvironment reads EnvVars from the process environment.
func LoadFromEnvironment() *EnvVars {
	return &EnvVars{
		PGHOST:              os.Getenv("PGHOST"),
		PGPORT:              os.Getenv("PGPORT"),
		PGUSER:              os.Getenv("PGUSER"),
		PGPASSWORD:          os.Getenv("PGPASSWORD"),
		PGDATABASE:          os.Getenv("PGDATABASE"),
		PGSSLMODE:           os.Getenv("PGSSLMODE"),
		DATABASE_URL:        os.Getenv("DATABASE_URL"),
		PGETL_SOURCE_URL:    os.Getenv("PGETL_SOURCE_URL"),
		PGETL_WAREHOUSE_URL: os.Getenv("PGETL_WAREHOUSE_URL"),
		AZURE_TENANT_ID:     os.Getenv("AZURE_TENANT_ID"),
		AZURE_CLIENT_ID:     os.Getenv("AZURE_CLIENT_ID"),
		AZURE_CLIENT_SECRET: os.Getenv("AZURE_CLIENT_SECRET"),
		AWS_REGION:          os.Getenv("AWS_REGION"),
	}
}

func (e *EnvVars) roleURL(role Role) string {
	if role == RoleWarehouse {
		return e.PGETL_WAREHOUSE_URL
	}
	return e.PGETL_SOURCE_URL
}

// Endpoint is a resolved connection target.
type Endpoint struct {
	Driver string

	// URL is the raw connection string for database/sql drivers. Empty for
	// PostgreSQL endpoints built from granular settings.
	URL string

	// Postgres is set when Driver is DriverPostgres.
	Postgres *pgetl.ConnectionConfig
}

// ResolveEndpoint picks the connection for role using this precedence:
//
//  1. urlFlag (--source-url / --warehouse-url)
//  2. $PGETL_SOURCE_URL / $PGETL_WAREHOUSE_URL
//  3. url in pgetl.yaml
//  4. $DATABASE_URL
//  5. granular settings: PG* environment > pgetl.yaml > defaults
//
// Source and warehouse resolve independently, so with no role-specific
// settings both end up on the same database.
func ResolveEndpoint(role Role, urlFlag string, cc config.ConnectionConfig, env *EnvVars) (*Endpoint, error) {
	if env == nil {
		env = &EnvVars{}
	}

	connStr := firstNonEmpty(urlFlag, env.roleURL(role), cc.URL, env.DATABASE_URL)

	var endpoint *Endpoint
	if connStr != "" {
		driver, err := DriverForURL(connStr)
		if err != nil {
			return nil, fmt.Errorf("%s connection: %w", role, err)
		}
		endpoint = &Endpoint{Driver: driver, URL: connStr}
		if driver == DriverPostgres {
			pg, err := ParseConnectionString(connStr)
			if err != nil {
				return nil, fmt.Errorf("%s connection: %w", role, err)
			}
			pg.SSLMode = firstNonEmpty(pg.SSLMode, env.PGSSLMODE, defaultSSLMode)
			endpoint.Postgres = pg
		}
	} else {
		pg, err := resolveFromGranularParams(cc, env)
		if err != nil {
			return nil, fmt.Errorf("%s connection: %w", role, err)
		}
		endpoint = &Endpoint{Driver: DriverPostgres, Postgres: pg}
	}

	if endpoint.Postgres != nil {
		if err := applyAuth(endpoint.Postgres, cc, env); err != nil {
			return nil, fmt.Errorf("%s connection: %w", role, err)
		}
		if endpoint.Postgres.AppName == "" {
			endpoint.Postgres.AppName = AppName
		}
	}
	return endpoint, nil
}

// applyAuth attaches the configured authentication method and cloud credentials.
// An Azure tenant or client in the environment selects Entra ID when no method is configured.
func applyAuth(pg *pgetl.ConnectionConfig, cc config.ConnectionConfig, env *EnvVars) error {
	method, err := pgetl.ParseAuthMethod(cc.AuthMethod)
	if err != nil {
		return err
	}

	tenantID := firstNonEmpty(cc.AzureTenantID, env.AZURE_TENANT_ID)
	clientID := firstNonEmpty(cc.AzureClientID, env.AZURE_CLIENT_ID)
	if cc.AuthMethod == "" && (tenantID != "" || clientID != "") {
		method = pgetl.AuthMethodAzureEntraID
	}

	pg.AuthMethod = method
	switch method {
	case pgetl.AuthMethodAzureEntraID:
		pg.AzureTenantID = tenantID
		pg.AzureClientID = clientID
		pg.AzureClientSecret = env.AZURE_CLIENT_SECRET
	case pgetl.AuthMethodAWSIAM:
		pg.AWSRegion = firstNonEmpty(cc.AWSRegion, env.AWS_REGION)
	case pgetl.AuthMethodGoogleIAM:
		pg.GoogleInstance = cc.GoogleInstance
	}
	return nil
}

// resolveFromGranularParams builds a ConnectionConfig with per-field
// precedence PG* environment > pgetl.yaml > default.
func resolveFromGranularParams(cc config.ConnectionConfig, env *EnvVars) (*pgetl.ConnectionConfig, error) {
	cfg := defaultConnectionConfig()

	cfg.Host = firstNonEmpty(env.PGHOST, cc.Host, cfg.Host)

	switch {
	case env.PGPORT != "":
		port, err := strconv.Atoi(env.PGPORT)
		if err != nil {
			return nil, fmt.Errorf("invalid $PGPORT value '%s': must be an integer: %w", env.PGPORT, pgetl.ErrInvalidConfig)
		}
		cfg.Port = port
	case cc.Port != 0:
		cfg.Port = cc.Port
	}

	cfg.Username = firstNonEmpty(env.PGUSER, cc.Username, os.Getenv("USER"), os.Getenv("USERNAME"))
	cfg.Password = env.PGPASSWORD
	cfg.Database = firstNonEmpty(env.PGDATABASE, cc.Database, cfg.Database)
	cfg.SSLMode = firstNonEmpty(env.PGSSLMODE, cc.SSLMode, defaultSSLMode)

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
