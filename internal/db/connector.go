// Package db establishes PostgreSQL connection pools for the source and the
// warehouse, covering password and cloud IAM authentication.
package db

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/pgetl/internal/retry"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// Connection pool configuration. A stage uses one connection at a time.
const (
	DefaultMaxConns        = 2
	DefaultMinConns        = 1
	DefaultMaxConnIdleTime = 30 * time.Minute
)

func configurePool(poolConfig *pgxpool.Config, logger pgetl.Logger) {
	poolConfig.MaxConns = DefaultMaxConns
	poolConfig.MinConns = DefaultMinConns
	poolConfig.MaxConnIdleTime = DefaultMaxConnIdleTime
	poolConfig.ConnConfig.OnNotice = func(_ *pgconn.PgConn, notice *pgconn.Notice) {
		logger.Verbose("postgres %s: %s", strings.ToLower(notice.Severity), notice.Message)
	}
}

// openPool parses connStr, opens a pool and pings it.
func openPool(ctx context.Context, connStr string, config *pgetl.ConnectionConfig, logger pgetl.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	configurePool(poolConfig, logger)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, wrapConnectionError(err, config.Host, config.Port, config.Database)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, wrapConnectionError(err, config.Host, config.Port, config.Database)
	}
	return pool, nil
}

// StandardConnector connects with username/password authentication and
// retries transient failures.
type StandardConnector struct {
	config        *pgetl.ConnectionConfig
	logger        pgetl.Logger
	retryExecutor *retry.Executor
}

// NewStandardConnector creates a StandardConnector using the default retry policy.
func NewStandardConnector(config *pgetl.ConnectionConfig, logger pgetl.Logger) *StandardConnector {
	return &StandardConnector{
		config:        config,
		logger:        logger,
		retryExecutor: newRetryExecutor(logger, config.Host),
	}
}

// Connect establishes a connection pool, retrying transient failures.
func (c *StandardConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	connStr := BuildConnectionString(c.config)
	return retry.Do(ctx, c.retryExecutor, func(ctx context.Context) (*pgxpool.Pool, error) {
		return openPool(ctx, connStr, c.config, c.logger)
	})
}

func newRetryExecutor(logger pgetl.Logger, host string) *retry.Executor {
	return retry.NewDefaultExecutor().WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Verbose("connection to %s failed (attempt %d), retrying in %v: %v", host, attempt+1, delay, err)
	})
}

// NewConnector returns the Connector matching config.AuthMethod.
func NewConnector(config *pgetl.ConnectionConfig, logger pgetl.Logger) (pgetl.Connector, error) {
	switch config.AuthMethod {
	case pgetl.AuthMethodStandard:
		return NewStandardConnector(config, logger), nil
	case pgetl.AuthMethodAWSIAM:
		return newAWSConnector(config, logger)
	case pgetl.AuthMethodGoogleIAM:
		return newGoogleConnector(config, logger)
	case pgetl.AuthMethodAzureEntraID:
		return newAzureConnector(config, logger)
	default:
		return nil, fmt.Errorf("unsupported auth method %v: %w", config.AuthMethod, pgetl.ErrUnsupportedAuthMethod)
	}
}

// Connect builds the connector for config and opens a pool. The returned
// release function closes the pool and any connector resources; it is safe
// to call more than once.
func Connect(ctx context.Context, config *pgetl.ConnectionConfig, logger pgetl.Logger) (*pgxpool.Pool, func(), error) {
	connector, err := NewConnector(config, logger)
	if err != nil {
		return nil, nil, err
	}
	pool, err := connector.Connect(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", pgetl.ErrConnectionFailed, err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			pool.Close()
			if closer, ok := connector.(io.Closer); ok {
				_ = closer.Close()
			}
		})
	}
	return pool, release, nil
}

// wrapConnectionError wraps raw pgx connection errors with actionable guidance.
func wrapConnectionError(err error, host string, port int, database string) error {
	errStr := strings.ToLower(err.Error())
	addr := fmt.Sprintf("%s:%d", host, port)

	switch {
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "actively refused"):
		return fmt.Errorf(`connection refused to %s

Possible causes:
  - PostgreSQL is not running (check: pg_isready -h %s -p %d)
  - Wrong host or port

Original error: %w`, addr, host, port, err)

	case strings.Contains(errStr, "no such host") || strings.Contains(errStr, "no host"):
		return fmt.Errorf(`cannot resolve host "%s"

Original error: %w`, host, err)

	case strings.Contains(errStr, "password authentication failed"):
		return fmt.Errorf(`password authentication failed for database "%s"

Possible causes:
  - Wrong password (check $PGPASSWORD or ~/.pgpass)
  - User has no access to the database

Original error: %w`, database, err)

	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf(`database "%s" does not exist

Original error: %w`, database, err)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return fmt.Errorf(`connection timed out to %s

Original error: %w`, addr, err)

	case strings.Contains(errStr, "too many connections"):
		return fmt.Errorf(`too many connections to database "%s"

Original error: %w`, database, err)

	default:
		return fmt.Errorf("failed to connect to database: %w", err)
	}
}

func newAWSConnector(config *pgetl.ConnectionConfig, logger pgetl.Logger) (pgetl.Connector, error) {
	endpoint := fmt.Sprintf("%s:%d", config.Host, config.Port)

	tokenProvider, err := NewAWSIAMTokenProvider(endpoint, config.AWSRegion, config.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS IAM token provider: %w", err)
	}
	return NewTokenBasedConnector(config, tokenProvider, logger), nil
}

func newGoogleConnector(config *pgetl.ConnectionConfig, logger pgetl.Logger) (pgetl.Connector, error) {
	if config.GoogleInstance == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires google_instance (project:region:instance): %w", pgetl.ErrInvalidConfig)
	}
	if config.Username == "" {
		return nil, fmt.Errorf("Google Cloud SQL IAM auth requires a username: %w", pgetl.ErrInvalidConfig)
	}
	return NewGoogleCloudSQLConnector(config, logger), nil
}

// newAzureConnector uses Service Principal credentials when all three are
// present, otherwise the DefaultAzureCredential chain.
func newAzureConnector(config *pgetl.ConnectionConfig, logger pgetl.Logger) (pgetl.Connector, error) {
	var tokenProvider TokenProvider
	var err error

	if config.AzureTenantID != "" && config.AzureClientID != "" && config.AzureClientSecret != "" {
		tokenProvider, err = NewAzureServicePrincipalProvider(config.AzureTenantID, config.AzureClientID, config.AzureClientSecret)
	} else {
		tokenProvider, err = NewAzureDefaultCredentialProvider()
	}
	if err != nil {
		return nil, err
	}
	return NewTokenBasedConnector(config, tokenProvider, logger), nil
}
