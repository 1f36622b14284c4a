package warehouse_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgetl/internal/db"
	"github.com/vvka-141/pgetl/internal/logging"
	testhelpers "github.com/vvka-141/pgetl/internal/testing"
	"github.com/vvka-141/pgetl/internal/warehouse"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

func openWarehouse(t *testing.T, dbName string) (pgetl.WarehouseOpener, string) {
	t.Helper()
	connString := testhelpers.RequireDatabase(t)
	target := testhelpers.CreateTestDB(t, connString, dbName)

	config, err := db.ParseConnectionString(target)
	require.NoError(t, err)
	return warehouse.NewOpener(config, logging.NewNullLogger()), target
}

func TestSession_ReplaceTable(t *testing.T) {
	opener, target := openWarehouse(t, "pgetl_test_replace")
	ctx := context.Background()

	session, err := opener.Open(ctx)
	require.NoError(t, err)
	defer session.Close()

	require.NoError(t, session.EnsureSchema(ctx, "dw"))
	require.NoError(t, session.EnsureSchema(ctx, "dw"), "EnsureSchema is idempotent")

	columns := []pgetl.Column{
		{Name: "cod_agencia", Type: pgetl.ColumnBigInt},
		{Name: "nome", Type: pgetl.ColumnText},
		{Name: "ativa", Type: pgetl.ColumnBoolean},
	}
	n, err := session.ReplaceTable(ctx, "dw", "agencias", columns, [][]any{
		{int64(1), "Centro", true},
		{int64(2), "Norte", nil},
		{int64(3), "Sul", false},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = session.ReplaceTable(ctx, "dw", "agencias", []pgetl.Column{{Name: "codigo", Type: pgetl.ColumnText}}, [][]any{{"A"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	pool := testhelpers.GetTestPool(t, target)
	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM dw.agencias`).Scan(&count))
	assert.Equal(t, 1, count)

	var columnCount int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM information_schema.columns WHERE table_schema = 'dw' AND table_name = 'agencias'`,
	).Scan(&columnCount))
	assert.Equal(t, 1, columnCount, "replace drops the previous column set")
}

func TestSession_ReplaceTableRefusesView(t *testing.T) {
	opener, target := openWarehouse(t, "pgetl_test_view")
	ctx := context.Background()

	pool := testhelpers.GetTestPool(t, target)
	testhelpers.Exec(t, pool,
		`CREATE SCHEMA dw`,
		`CREATE VIEW dw.clientes AS SELECT 1 AS cod_cliente`,
	)

	session, err := opener.Open(ctx)
	require.NoError(t, err)
	defer session.Close()

	_, err = session.ReplaceTable(ctx, "dw", "clientes", []pgetl.Column{{Name: "cod_cliente", Type: pgetl.ColumnBigInt}}, [][]any{{int64(1)}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgetl.ErrSchemaConflict), "got %v", err)

	var kind string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT c.relkind::text FROM pg_class c JOIN pg_namespace n ON n.oid = c.relnamespace WHERE n.nspname = 'dw' AND c.relname = 'clientes'`,
	).Scan(&kind))
	assert.Equal(t, "v", kind, "the view is left in place")
}

func TestSession_ReplaceTableRollsBackOnCopyFailure(t *testing.T) {
	opener, target := openWarehouse(t, "pgetl_test_rollback")
	ctx := context.Background()

	session, err := opener.Open(ctx)
	require.NoError(t, err)
	defer session.Close()
	require.NoError(t, session.EnsureSchema(ctx, "dw"))

	_, err = session.ReplaceTable(ctx, "dw", "contas", []pgetl.Column{{Name: "num_conta", Type: pgetl.ColumnBigInt}}, [][]any{{int64(7)}})
	require.NoError(t, err)

	_, err = session.ReplaceTable(ctx, "dw", "contas", []pgetl.Column{{Name: "num_conta", Type: pgetl.ColumnBigInt}}, [][]any{{"not a number"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgetl.ErrWriteFailed))

	pool := testhelpers.GetTestPool(t, target)
	var num int64
	require.NoError(t, pool.QueryRow(ctx, `SELECT num_conta FROM dw.contas`).Scan(&num))
	assert.Equal(t, int64(7), num, "failed replace leaves the previous table intact")
}
