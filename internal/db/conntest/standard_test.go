//go:build conntest

package conntest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vvka-141/pgetl/internal/db"
	"github.com/vvka-141/pgetl/internal/logging"
	"github.com/vvka-141/pgetl/pkg/pgetl"
)

func TestStandardConnection_UserPassword(t *testing.T) {
	config := parseStdConnString(t)
	pool := connectWithConfig(t, config)
	pingSucceeds(t, pool)

	version := queryVersion(t, pool)
	assert.Contains(t, version, "PostgreSQL")
}

func TestStandardConnection_WrongPassword(t *testing.T) {
	config := parseStdConnString(t)
	config.Password = "definitely-wrong-password"

	_, _, err := db.Connect(context.Background(), config, logging.NewNullLogger())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pgetl.ErrConnectionFailed), "got %v", err)
	assert.Equal(t, pgetl.ExitConnectionError, pgetl.ExitCodeForError(err))
}

func TestStandardConnection_ReleaseIsIdempotent(t *testing.T) {
	config := parseStdConnString(t)
	pool, release, err := db.Connect(context.Background(), config, logging.NewNullLogger())
	require.NoError(t, err)
	pingSucceeds(t, pool)

	release()
	release()
	assert.Error(t, pool.Ping(context.Background()), "pool is closed after release")
}
