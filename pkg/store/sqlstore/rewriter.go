package sqlstore

import (
	"context"
	"fmt"

	"github.com/foomo/idreset/pkg/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type (
	// Rewriter replaces telemetry values and removes session keys in SQLite key-value tables.
	Rewriter struct {
		l             *zap.Logger
		telemetryKeys []string
		sessionKeys   []string
		assignments   map[string]string
	}
	RewriterOption func(*Rewriter)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// RewriterWithAssignments pins the value written for the given keys.
func RewriterWithAssignments(v map[string]string) RewriterOption {
	return func(o *Rewriter) {
		o.assignments = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewRewriter(l *zap.Logger, telemetryKeys, sessionKeys []string, opts ...RewriterOption) *Rewriter {
	inst := &Rewriter{
		l:             l.Named("sqlstore"),
		telemetryKeys: telemetryKeys,
		sessionKeys:   sessionKeys,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Rewrite updates every key-value table of the store at path in one transaction.
func (r *Rewriter) Rewrite(ctx context.Context, path string) (store.ModifyResult, error) {
	res := store.ModifyResult{FilesProcessed: 1}

	db, err := Open(ctx, r.l, path)
	if err != nil {
		return res, err
	}
	defer db.Close()

	schemas, err := r.schemas(ctx, db)
	if err != nil {
		return res, err
	}
	if len(schemas) == 0 {
		r.l.Debug("no key-value table found", zap.String("path", path))
		return res, nil
	}

	machineID, sessionID := uuid.NewString(), uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "failed to begin transaction")
	}

	for _, s := range schemas {
		update := fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", quote(s.Table), quote(s.ValueColumn), quote(s.KeyColumn))
		for _, key := range r.telemetryKeys {
			n, err := exec(ctx, tx, update, store.Replacement(key, r.assignments, machineID, sessionID), key)
			if err != nil {
				r.l.Warn("update failed", zap.String("table", s.Table), zap.String("key", key), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("%s: update %s.%s: %v", path, s.Table, key, err))
				continue
			}
			res.KeysUpdated += n
		}

		del := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(s.Table), quote(s.KeyColumn))
		for _, key := range r.sessionKeys {
			n, err := exec(ctx, tx, del, key)
			if err != nil {
				r.l.Warn("delete failed", zap.String("table", s.Table), zap.String("key", key), zap.Error(err))
				res.Errors = append(res.Errors, fmt.Sprintf("%s: delete %s.%s: %v", path, s.Table, key, err))
				continue
			}
			res.KeysDeleted += n
		}
	}

	if err := tx.Commit(); err != nil {
		return res, errors.Wrap(err, "failed to commit transaction")
	}

	if res.Changed() {
		vacuum(ctx, r.l, db, path)
	}

	r.l.Info("rewrote store",
		zap.String("path", path),
		zap.Int("tables", len(schemas)),
		zap.Int("updated", res.KeysUpdated),
		zap.Int("deleted", res.KeysDeleted),
	)

	return res, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Rewriter) schemas(ctx context.Context, q querier) ([]Schema, error) {
	tables, err := userTables(ctx, q)
	if err != nil {
		return nil, err
	}

	var ret []Schema
	for _, table := range orderTables(tables) {
		cols, err := tableColumns(ctx, q, table)
		if err != nil {
			r.l.Warn("skipping table", zap.String("table", table), zap.Error(err))
			continue
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.name
		}
		s, ok := GuessSchema(names)
		if !ok {
			r.l.Debug("no key-value layout", zap.String("table", table), zap.Strings("columns", names))
			continue
		}
		s.Table = table
		ret = append(ret, s)
	}
	return ret, nil
}

func exec(ctx context.Context, q querier, query string, args ...any) (int, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
