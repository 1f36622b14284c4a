package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vvka-141/pgetl/internal/retry"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// tokenExpiryWarning is how close to expiry a freshly acquired token must be to log a warning.
const tokenExpiryWarning = 5 * time.Minute

// TokenBasedConnector connects to cloud-hosted PostgreSQL (AWS IAM, Azure
// Entra ID) using a short-lived token as the password.
type TokenBasedConnector struct {
	config        *pgetl.ConnectionConfig
	tokenProvider TokenProvider
	logger        pgetl.Logger
	retryExecutor *retry.Executor
}

// NewTokenBasedConnector creates a connector that authenticates with tokens from tokenProvider.
func NewTokenBasedConnector(config *pgetl.ConnectionConfig, tokenProvider TokenProvider, logger pgetl.Logger) *TokenBasedConnector {
	return &TokenBasedConnector{
		config:        config,
		tokenProvider: tokenProvider,
		logger:        logger,
		retryExecutor: newRetryExecutor(logger, config.Host),
	}
}

// Connect acquires a fresh token for each attempt and opens a pool with it.
func (c *TokenBasedConnector) Connect(ctx context.Context) (*pgxpool.Pool, error) {
	return retry.Do(ctx, c.retryExecutor, func(ctx context.Context) (*pgxpool.Pool, error) {
		token, expiresOn, err := c.tokenProvider.GetToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire token from %s: %w", c.tokenProvider, err)
		}

		if remaining := time.Until(expiresOn); remaining < tokenExpiryWarning {
			c.logger.Info("token from %s expires in %v", c.tokenProvider, remaining.Round(time.Second))
		}

		withToken := *c.config
		withToken.Password = token
		return openPool(ctx, BuildConnectionString(&withToken), c.config, c.logger)
	})
}
