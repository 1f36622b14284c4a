// Package warehouse implements pgetl.WarehouseSession on a pgx pool.
package warehouse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vvka-141/pgetl/internal/db"
	"github.com/vvka-141/pgetl/internal/db/manager"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

// PostgreSQL error codes that mean the existing object cannot be replaced.
const (
	pgDependentObjectsStillExist = "2BP01"
	pgWrongObjectType            = "42809"
	pgInsufficientPrivilege      = "42501"
)

// Opener opens a fresh pool per session.
type Opener struct {
	config *pgetl.ConnectionConfig
	logger pgetl.Logger
}

// NewOpener panics if config or logger is nil.
func NewOpener(config *pgetl.ConnectionConfig, logger pgetl.Logger) *Opener {
	if config == nil {
		panic("config cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Opener{config: config, logger: logger}
}

func (o *Opener) Open(ctx context.Context) (pgetl.WarehouseSession, error) {
	pool, release, err := db.Connect(ctx, o.config, o.logger)
	if err != nil {
		return nil, err
	}
	return NewSession(pool, release), nil
}

// Session owns one pool until Close.
type Session struct {
	pool    *pgxpool.Pool
	manager *manager.Manager

	closeOnce sync.Once
	release   func()
}

// NewSession wraps pool. release runs once on Close; nil closes the pool.
func NewSession(pool *pgxpool.Pool, release func()) *Session {
	if release == nil {
		release = pool.Close
	}
	return &Session{pool: pool, manager: manager.New(), release: release}
}

func (s *Session) EnsureSchema(ctx context.Context, schema string) error {
	if err := s.manager.EnsureSchema(ctx, s.pool, schema); err != nil {
		return classify(err)
	}
	return nil
}

// ReplaceTable drops, recreates and bulk-loads schema.table in one transaction.
func (s *Session) ReplaceTable(ctx context.Context, schema, table string, columns []pgetl.Column, rows [][]any) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if err := s.manager.ReplaceTable(ctx, tx, schema, table, columns); err != nil {
		return 0, classify(err)
	}

	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = c.Name
	}
	n, err := tx.CopyFrom(ctx, pgx.Identifier{schema, table}, names, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, classify(fmt.Errorf("failed to copy rows into %s.%s: %w", schema, table, err))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, classify(fmt.Errorf("failed to commit %s.%s: %w", schema, table, err))
	}
	return n, nil
}

func (s *Session) Close() {
	s.closeOnce.Do(s.release)
}

// classify tags err with ErrSchemaConflict or ErrWriteFailed.
func classify(err error) error {
	if errors.Is(err, pgetl.ErrSchemaConflict) || errors.Is(err, pgetl.ErrWriteFailed) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgDependentObjectsStillExist, pgWrongObjectType:
			return fmt.Errorf("%w: %w", pgetl.ErrSchemaConflict, err)
		case pgInsufficientPrivilege:
			return fmt.Errorf("%w: %w", pgetl.ErrWriteFailed, err)
		}
	}
	return fmt.Errorf("%w: %w", pgetl.ErrWriteFailed, err)
}
