package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	path := testDB(t, "state.vscdb",
		`CREATE TABLE Cache (k TEXT, v TEXT)`,
		`INSERT INTO Cache VALUES ('a', '1')`,
		`INSERT INTO Cache VALUES ('b', '2')`,
		`CREATE TABLE Settings (name TEXT, value TEXT)`,
		`INSERT INTO Settings VALUES ('theme', 'dark')`,
		`INSERT INTO Settings VALUES ('github', 'token=abc')`,
		`INSERT INTO Settings VALUES ('font', 'mono')`,
	)

	s := NewSanitizer(zapLogger(t), []string{"token"}, []string{"cache"})
	res, err := s.Sanitize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.DatabasesProcessed)
	assert.Equal(t, 1, res.TablesPurged)
	assert.Equal(t, 3, res.RecordsCleaned)
	assert.Empty(t, res.Errors)

	assert.Zero(t, queryCount(t, path, `SELECT count(*) FROM Cache`))
	assert.Zero(t, queryCount(t, path, `SELECT count(*) FROM Settings WHERE name = 'github'`))
	assert.Equal(t, 2, queryCount(t, path, `SELECT count(*) FROM Settings`))
}

func TestSanitizeKeywordIsCaseSensitive(t *testing.T) {
	path := testDB(t, "state.vscdb",
		`CREATE TABLE Settings (name TEXT, value)`,
		`INSERT INTO Settings VALUES ('a', 'Token')`,
		`INSERT INTO Settings VALUES ('b', 'my token')`,
	)

	s := NewSanitizer(zapLogger(t), []string{"token"}, nil)
	res, err := s.Sanitize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RecordsCleaned)
	assert.Equal(t, "a", queryString(t, path, `SELECT name FROM Settings`))
}

func TestSanitizeSkipsNonTextColumns(t *testing.T) {
	path := testDB(t, "state.vscdb",
		`CREATE TABLE Numbers (n INTEGER, label VARCHAR(10))`,
		`INSERT INTO Numbers VALUES (42, 'x')`,
	)

	s := NewSanitizer(zapLogger(t), []string{"42"}, nil)
	res, err := s.Sanitize(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, res.RecordsCleaned)
	assert.Equal(t, 1, queryCount(t, path, `SELECT count(*) FROM Numbers`))
}

func TestSanitizeIdentityColumns(t *testing.T) {
	path := testDB(t, "state.vscdb",
		`CREATE TABLE Accounts (id INTEGER, Email TEXT, user_id TEXT NOT NULL, plan TEXT)`,
		`INSERT INTO Accounts VALUES (1, 'a@b.c', 'u-1', 'pro')`,
		`INSERT INTO Accounts VALUES (2, NULL, '', 'free')`,
	)

	s := NewSanitizer(zapLogger(t), nil, nil)
	res, err := s.Sanitize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 2, res.RecordsCleaned)

	assert.Zero(t, queryCount(t, path, `SELECT count(*) FROM Accounts WHERE Email IS NOT NULL`))
	assert.Equal(t, 2, queryCount(t, path, `SELECT count(*) FROM Accounts WHERE user_id = ''`))
	assert.Equal(t, 2, queryCount(t, path, `SELECT count(*) FROM Accounts WHERE plan != ''`))
}

func TestSanitizeUnreachable(t *testing.T) {
	s := NewSanitizer(zapLogger(t), []string{"token"}, []string{"cache"})
	_, err := s.Sanitize(context.Background(), garbageFile(t))
	require.ErrorIs(t, err, ErrStoreUnreachable)
}

func TestTextAffinity(t *testing.T) {
	for declType, want := range map[string]bool{
		"":             true,
		"TEXT":         true,
		"varchar(255)": true,
		"CLOB":         true,
		"BLOB":         false,
		"INTEGER":      false,
		"REAL":         false,
		"CHARINT":      false,
	} {
		assert.Equal(t, want, textAffinity(declType), declType)
	}
}
