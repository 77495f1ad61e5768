package sqlstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func testDB(t *testing.T, name string, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	db, err := sql.Open(driverName, path)
	require.NoError(t, err)
	defer db.Close()
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return path
}

func queryCount(t *testing.T, path, query string, args ...any) int {
	t.Helper()
	db, err := sql.Open(driverName, path)
	require.NoError(t, err)
	defer db.Close()
	var n int
	require.NoError(t, db.QueryRow(query, args...).Scan(&n))
	return n
}

func queryString(t *testing.T, path, query string, args ...any) string {
	t.Helper()
	db, err := sql.Open(driverName, path)
	require.NoError(t, err)
	defer db.Close()
	var v string
	require.NoError(t, db.QueryRow(query, args...).Scan(&v))
	return v
}

func garbageFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.vscdb")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("not a database ", 200)), 0644))
	return path
}

func TestOpen(t *testing.T) {
	path := testDB(t, "open.vscdb", "CREATE TABLE t (a TEXT)")
	db, err := Open(context.Background(), zapLogger(t), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())
}

func TestOpenUnreachable(t *testing.T) {
	_, err := Open(context.Background(), zapLogger(t), garbageFile(t))
	require.ErrorIs(t, err, ErrStoreUnreachable)
}

func TestFileURI(t *testing.T) {
	require.Equal(t, "file:///tmp/My%20App/state.vscdb?mode=rw", fileURI("/tmp/My App/state.vscdb", "mode=rw"))
}

func TestQuote(t *testing.T) {
	require.Equal(t, `"ItemTable"`, quote("ItemTable"))
	require.Equal(t, `"we""ird"`, quote(`we"ird`))
}
