package sqlstore

import (
	"context"
	"database/sql"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	// Pure Go SQLite driver registered as "sqlite"
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

var ErrStoreUnreachable = errors.New("store unreachable")

type strategy struct {
	name string
	dsn  func(path string) string
}

// strategies are tried in order until one answers pingQuery.
var strategies = []strategy{
	{
		name: "wal",
		dsn: func(path string) string {
			return fileURI(path, "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
		},
	},
	{
		name: "readwrite",
		dsn: func(path string) string {
			return fileURI(path, "mode=rw")
		},
	},
	{
		name: "bare",
		dsn: func(path string) string {
			return path
		},
	},
}

// pingQuery has to touch the file header, a plain SELECT 1 succeeds on anything.
const pingQuery = "SELECT count(*) FROM sqlite_master"

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type column struct {
	name     string
	declType string
}

// Open connects to the store at path using the first working strategy.
// The returned pool is limited to one connection.
func Open(ctx context.Context, l *zap.Logger, path string) (*sql.DB, error) {
	var lastErr error
	for _, s := range strategies {
		db, err := sql.Open(driverName, s.dsn(path))
		if err != nil {
			lastErr = err
			continue
		}
		db.SetMaxOpenConns(1)

		var n int
		if err := db.QueryRowContext(ctx, pingQuery).Scan(&n); err != nil {
			_ = db.Close()
			l.Debug("connection strategy failed",
				zap.String("path", path),
				zap.String("strategy", s.name),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		l.Debug("connected", zap.String("path", path), zap.String("strategy", s.name))
		return db, nil
	}
	return nil, errors.Wrapf(ErrStoreUnreachable, "%s: %v", path, lastErr)
}

func fileURI(path, query string) string {
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(path),
		RawQuery: query,
	}
	return u.String()
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// userTables lists all non-system tables in creation order.
func userTables(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' AND substr(name, 1, 7) != 'sqlite_' ORDER BY rowid")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list tables")
	}
	defer rows.Close()

	var ret []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		ret = append(ret, name)
	}
	return ret, rows.Err()
}

func tableColumns(ctx context.Context, q querier, table string) ([]column, error) {
	rows, err := q.QueryContext(ctx, "PRAGMA table_info("+quote(table)+")")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read columns of %s", table)
	}
	defer rows.Close()

	var ret []column
	for rows.Next() {
		var (
			cid       int
			name      string
			declType  string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		ret = append(ret, column{name: name, declType: declType})
	}
	return ret, rows.Err()
}

func vacuum(ctx context.Context, l *zap.Logger, db *sql.DB, path string) {
	if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
		l.Warn("vacuum failed", zap.String("path", path), zap.Error(err))
	}
}
