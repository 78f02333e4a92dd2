package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/leapstack-labs/dwprobe/pkg/core"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// NewSQLiteConnection opens a SQLite database file in a temporary
// directory, runs the setup statements on it and returns it as a
// connection. The database is closed when the test ends.
func NewSQLiteConnection(t testing.TB, name string, setup ...string) *core.Connection {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), name+".db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	for _, stmt := range setup {
		_, err := db.ExecContext(context.Background(), stmt)
		require.NoError(t, err, "setup statement: %s", stmt)
	}

	return core.NewConnection(name, db, core.PlaceholderQuestion)
}

// QueryInts returns the first column of every row of query as int64s.
func QueryInts(t testing.TB, conn *core.Connection, query string) []int64 {
	t.Helper()

	rows, err := conn.Query(context.Background(), query)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var out []int64
	for rows.Next() {
		var v int64
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}
