package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// identityColumns are reset regardless of table.
var identityColumns = map[string]struct{}{
	"user_id":    {},
	"account_id": {},
	"email":      {},
	"username":   {},
	"userid":     {},
	"accountid":  {},
}

type (
	CleanResult struct {
		DatabasesProcessed int
		RecordsCleaned     int
		TablesPurged       int
		Errors             []string
	}
	// Sanitizer purges cache tables, keyword rows and identity columns of a SQLite store.
	Sanitizer struct {
		l                  *zap.Logger
		contentKeywords    []string
		cacheTablePatterns []string
	}
)

// Add merges o into r.
func (r *CleanResult) Add(o CleanResult) {
	r.DatabasesProcessed += o.DatabasesProcessed
	r.RecordsCleaned += o.RecordsCleaned
	r.TablesPurged += o.TablesPurged
	r.Errors = append(r.Errors, o.Errors...)
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewSanitizer(l *zap.Logger, contentKeywords, cacheTablePatterns []string) *Sanitizer {
	return &Sanitizer{
		l:                  l.Named("sanitizer"),
		contentKeywords:    contentKeywords,
		cacheTablePatterns: cacheTablePatterns,
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Sanitize runs the cache purge, keyword scrub and identity column reset in one transaction.
func (s *Sanitizer) Sanitize(ctx context.Context, path string) (CleanResult, error) {
	res := CleanResult{DatabasesProcessed: 1}

	db, err := Open(ctx, s.l, path)
	if err != nil {
		return res, err
	}
	defer db.Close()

	tables, err := userTables(ctx, db)
	if err != nil {
		return res, err
	}

	columns := make(map[string][]column, len(tables))
	for _, table := range tables {
		cols, err := tableColumns(ctx, db, table)
		if err != nil {
			s.l.Warn("skipping table", zap.String("table", table), zap.Error(err))
			continue
		}
		columns[table] = cols
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "failed to begin transaction")
	}

	fail := func(stmt string, err error) {
		s.l.Warn("statement failed", zap.String("statement", stmt), zap.Error(err))
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %s: %v", path, stmt, err))
	}

	// cache purge
	for _, table := range tables {
		if !s.isCacheTable(table) {
			continue
		}
		stmt := "DELETE FROM " + quote(table)
		n, err := exec(ctx, tx, stmt)
		if err != nil {
			fail(stmt, err)
			continue
		}
		res.TablesPurged++
		res.RecordsCleaned += n
		if n > 0 {
			s.l.Info("purged cache table", zap.String("table", table), zap.Int("records", n))
		}
	}

	// keyword scrub
	for _, table := range tables {
		if s.isCacheTable(table) {
			continue
		}
		for _, c := range columns[table] {
			if !textAffinity(c.declType) {
				continue
			}
			stmt := fmt.Sprintf("DELETE FROM %s WHERE instr(%s, ?) > 0", quote(table), quote(c.name))
			for _, keyword := range s.contentKeywords {
				if keyword == "" {
					continue
				}
				n, err := exec(ctx, tx, stmt, keyword)
				if err != nil {
					fail(stmt, err)
					continue
				}
				if n > 0 {
					s.l.Debug("removed keyword rows",
						zap.String("table", table),
						zap.String("column", c.name),
						zap.String("keyword", keyword),
						zap.Int("records", n),
					)
				}
				res.RecordsCleaned += n
			}
		}
	}

	// identity column reset
	for _, table := range tables {
		for _, c := range columns[table] {
			if _, ok := identityColumns[strings.ToLower(c.name)]; !ok {
				continue
			}
			n, err := exec(ctx, tx, fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s IS NOT NULL", quote(table), quote(c.name), quote(c.name)))
			if err != nil {
				stmt := fmt.Sprintf("UPDATE %s SET %s = '' WHERE %s != ''", quote(table), quote(c.name), quote(c.name))
				n, err = exec(ctx, tx, stmt)
				if err != nil {
					fail(stmt, err)
					continue
				}
			}
			res.RecordsCleaned += n
		}
	}

	if err := tx.Commit(); err != nil {
		return res, errors.Wrap(err, "failed to commit transaction")
	}

	if res.RecordsCleaned > 0 {
		vacuum(ctx, s.l, db, path)
	}

	s.l.Info("sanitized store", zap.String("path", path), zap.Int("records", res.RecordsCleaned))

	return res, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *Sanitizer) isCacheTable(table string) bool {
	lower := strings.ToLower(table)
	for _, p := range s.cacheTablePatterns {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// textAffinity follows the SQLite column affinity rules for TEXT, plus untyped columns.
func textAffinity(declType string) bool {
	if declType == "" {
		return true
	}
	upper := strings.ToUpper(declType)
	if strings.Contains(upper, "INT") {
		return false
	}
	return strings.Contains(upper, "CHAR") || strings.Contains(upper, "CLOB") || strings.Contains(upper, "TEXT")
}
