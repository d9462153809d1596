package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// NewTestDB opens a migrated SQLite database in a temp dir owned by t.
func NewTestDB(t testing.TB) *sqlx.DB {
	t.Helper()

	cfg := (&Config{
		Driver:     SQLite,
		SQLitePath: filepath.Join(t.TempDir(), "ledger.sqlite"),
	}).Setup()

	conn, err := NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, Migrate(context.Background(), conn))
	return conn
}
