package db

import (
	"context"
	"fmt"
	"net"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/pgetl/internal/retry"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// GoogleCloudSQLConnector connects to Cloud SQL with IAM database
// authentication through the Cloud SQL Go Connector.
//
// Close must be called after the pool is closed to release the dialer.
type GoogleCloudSQLConnector struct {
	config        *pgetl.ConnectionConfig
	logger        pgetl.Logger
	retryExecutor *retry.Executor
	dialer        *cloudsqlconn.Dialer
}

func NewGoogleCloudSQLConnector(config *pgetl.ConnectionConfig, logger pgetl.Logger) *GoogleCloudSQLConnector {
	return &GoogleCloudSQLConnector{
		config:        config,
		logger:        logger,
		retryExecutor: newRetryExecutor(logger, config.GoogleInstance),
	}
}

func (c *GoogleCloudSQLConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloud SQL dialer: %w", err)
	}

	dsn := fmt.Sprintf("user=%s dbname=%s sslmode=disable", c.config.Username, c.config.Database)
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}
	poolConfig.ConnConfig.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, c.config.GoogleInstance)
	}
	configurePool(poolConfig, c.logger)

	pool, err := retry.Do(ctx, c.retryExecutor, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	})
	if err != nil {
		dialer.Close()
		return nil, fmt.Errorf("failed to connect to Cloud SQL instance %s: %w", c.config.GoogleInstance, err)
	}

	c.dialer = dialer
	return pool, nil
}

// Close releases the Cloud SQL dialer.
func (c *GoogleCloudSQLConnector) Close() error {
	if c.dialer != nil {
		err := c.dialer.Close()
		c.dialer = nil
		return err
	}
	return nil
}
