package reset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/foomo/idreset/pkg/cache"
	"github.com/foomo/idreset/pkg/config"
	"github.com/foomo/idreset/pkg/identity"
	"github.com/foomo/idreset/pkg/metrics"
	"github.com/foomo/idreset/pkg/progress"
	"github.com/foomo/idreset/pkg/store"
	"github.com/foomo/idreset/pkg/store/jsonstore"
	"github.com/foomo/idreset/pkg/store/sqlstore"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var (
	ErrTargetRunning   = errors.New("target application is running")
	ErrBackupFailed    = errors.New("backup failed")
	ErrDetectionFailed = errors.New("process detection failed")
)

type (
	// Detector reports whether the target application is running.
	Detector interface {
		Running(ctx context.Context) (bool, error)
	}
	// Backups snapshots the primary configuration file.
	Backups interface {
		Create(ctx context.Context, source string) (string, error)
		Prune(ctx context.Context, keep int) (int, error)
	}
	Resetter struct {
		l           *zap.Logger
		fs          afero.Fs
		target      config.Target
		root        string
		detector    Detector
		backups     Backups
		sink        progress.Sink
		backupDir   string
		backupLimit int
	}
	ResetterOption func(*Resetter)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// ResetterWithFs sets the filesystem for JSON stores, machine id files and caches.
// SQLite stores are always opened through the OS.
func ResetterWithFs(v afero.Fs) ResetterOption {
	return func(o *Resetter) {
		o.fs = v
	}
}

func ResetterWithSink(v progress.Sink) ResetterOption {
	return func(o *Resetter) {
		o.sink = v
	}
}

// ResetterWithBackupDir excludes the backup directory from store discovery.
func ResetterWithBackupDir(v string) ResetterOption {
	return func(o *Resetter) {
		o.backupDir = v
	}
}

// ResetterWithBackupLimit keeps only the newest v backups after a reset.
func ResetterWithBackupLimit(v int) ResetterOption {
	return func(o *Resetter) {
		o.backupLimit = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewResetter(l *zap.Logger, target config.Target, root string, detector Detector, backups Backups, opts ...ResetterOption) *Resetter {
	inst := &Resetter{
		l:        l.Named("reset"),
		fs:       afero.NewOsFs(),
		target:   target,
		root:     root,
		detector: detector,
		backups:  backups,
		sink:     progress.Discard,
	}

	for _, opt := range opts {
		opt(inst)
	}

	inst.sink = progress.Safe(inst.sink)

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Reset runs the whole pipeline. It only returns an error for fatal outcomes,
// in which case nothing was modified. Every other problem ends up in the report.
func (r *Resetter) Reset(ctx context.Context) (*Result, error) {
	start := time.Now()
	l := r.l.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("target", r.target.Name),
	)
	res := &Result{}

	fail := func(err error) (*Result, error) {
		res.Duration = time.Since(start)
		r.sink.Emit(progress.LevelError, err.Error())
		l.Error("reset failed", zap.Error(err))
		metrics.ResetCounter.WithLabelValues(r.target.Name, "failed").Inc()
		metrics.ResetDuration.WithLabelValues(r.target.Name, "failed").Observe(res.Duration.Seconds())
		return res, err
	}

	r.sink.Emit(progress.LevelInfo, fmt.Sprintf("checking whether %s is running", r.target.DisplayName))
	running, err := r.detector.Running(ctx)
	if err != nil {
		return fail(errors.Wrap(ErrDetectionFailed, err.Error()))
	}
	if running {
		return fail(errors.Wrapf(ErrTargetRunning, "close %s and try again", r.target.DisplayName))
	}

	primary := r.target.PrimaryConfigPath(r.root)
	r.sink.Emit(progress.LevelInfo, "creating backup of "+primary)
	id, err := r.backups.Create(ctx, primary)
	if err != nil {
		return fail(errors.Wrap(ErrBackupFailed, err.Error()))
	}
	res.BackupID = id
	metrics.BackupsCreatedCounter.WithLabelValues(r.target.Name).Inc()
	r.sink.Emit(progress.LevelSuccess, "backup created: "+id)

	// a half applied rewrite is worse than a slow one
	ctx = context.WithoutCancel(ctx)

	ids := identity.Generate()
	res.Identifiers = ids
	l.Info("generated identifiers", zap.String("device_id", ids.DeviceID()))

	handles := r.discover(l, &res.Report)
	r.rewrite(ctx, l, ids, handles, &res.Report)
	r.writeMachineID(l, ids, &res.Report)
	r.sanitize(ctx, l, handles, &res.Report)
	r.sweep(l, &res.Report)
	r.purge(l, &res.Report)
	r.prune(ctx, l)

	res.Success = true
	res.Duration = time.Since(start)

	metrics.ResetCounter.WithLabelValues(r.target.Name, "success").Inc()
	metrics.ResetDuration.WithLabelValues(r.target.Name, "success").Observe(res.Duration.Seconds())

	if n := len(res.Report.Errors); n > 0 {
		r.sink.Emit(progress.LevelWarning, fmt.Sprintf("reset finished with %d errors", n))
	} else {
		r.sink.Emit(progress.LevelSuccess, "reset finished")
	}
	l.Info("reset finished",
		zap.Int("files", res.Report.FilesProcessed),
		zap.Int("keys_updated", res.Report.KeysUpdated),
		zap.Int("keys_deleted", res.Report.KeysDeleted),
		zap.Int("records_cleaned", res.Report.RecordsCleaned),
		zap.Int("directories_cleaned", res.Report.DirectoriesCleaned),
		zap.Int("identity_files_removed", res.Report.IdentityFilesRemoved),
		zap.String("freed", cache.FormatSize(res.Report.BytesFreed)),
		zap.Int("errors", len(res.Report.Errors)),
		zap.Duration("duration", res.Duration),
	)

	return res, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Resetter) discover(l *zap.Logger, report *Report) []store.Handle {
	r.sink.Emit(progress.LevelInfo, "discovering stores")
	handles, err := store.Discover(r.fs, r.root, store.DiscoverOptions{
		JSONFileNames:    r.target.JSONFileNames,
		SQLiteExtensions: r.target.SQLiteExtensions,
		ExcludePatterns:  r.target.ExcludePatterns,
		ExcludeDirs:      []string{r.backupDir},
	})
	if err != nil {
		r.stageError(l, "discover", r.root, err, report)
		return nil
	}
	l.Debug("discovered stores", zap.Int("count", len(handles)))
	return handles
}

func (r *Resetter) rewrite(ctx context.Context, l *zap.Logger, ids identity.Set, handles []store.Handle, report *Report) {
	telemetryKeys := mergeKeys(r.target.TelemetryKeys, ids.Keys())
	jsonRewriter := jsonstore.NewRewriter(l, telemetryKeys, r.target.SessionKeys,
		jsonstore.RewriterWithFs(r.fs),
		jsonstore.RewriterWithAssignments(ids),
	)
	sqlRewriter := sqlstore.NewRewriter(l, telemetryKeys, r.target.SessionKeys,
		sqlstore.RewriterWithAssignments(ids),
	)

	r.sink.Emit(progress.LevelInfo, fmt.Sprintf("rewriting identifiers in %d stores", len(handles)))
	for _, h := range handles {
		var (
			mr  store.ModifyResult
			err error
		)
		switch h.Kind {
		case store.KindJSON:
			mr, err = jsonRewriter.Rewrite(h.Path)
		case store.KindSQLite:
			mr, err = sqlRewriter.Rewrite(ctx, h.Path)
		default:
			continue
		}
		report.addModify(mr)
		metrics.KeysUpdatedCounter.WithLabelValues(r.target.Name, string(h.Kind)).Add(float64(mr.KeysUpdated))
		metrics.KeysDeletedCounter.WithLabelValues(r.target.Name, string(h.Kind)).Add(float64(mr.KeysDeleted))
		if err != nil {
			r.stageError(l, "rewrite", h.Path, err, report)
		}
	}
	r.sink.Emit(progress.LevelSuccess, fmt.Sprintf("updated %d keys, removed %d keys", report.KeysUpdated, report.KeysDeleted))
}

func (r *Resetter) writeMachineID(l *zap.Logger, ids identity.Set, report *Report) {
	if path := r.target.MachineIDPath(r.root); path != "" {
		info, err := r.fs.Stat(path)
		switch {
		case err == nil:
			if err := afero.WriteFile(r.fs, path, []byte(ids.DeviceID()), info.Mode().Perm()); err != nil {
				r.stageError(l, "machine_id", path, err, report)
			} else {
				report.MachineIDFilesWritten++
				r.sink.Emit(progress.LevelSuccess, "machine id file updated")
			}
		case !os.IsNotExist(err):
			r.stageError(l, "machine_id", path, err, report)
		}
	}

	// extra id files get independent values and are created when missing
	for _, name := range r.target.ExtraIDFiles {
		path := filepath.Join(r.root, filepath.FromSlash(name))
		if err := afero.WriteFile(r.fs, path, []byte(uuid.NewString()), 0o644); err != nil {
			r.stageError(l, "machine_id", path, err, report)
			continue
		}
		report.MachineIDFilesWritten++
	}
	if n := len(r.target.ExtraIDFiles); n > 0 {
		r.sink.Emit(progress.LevelSuccess, fmt.Sprintf("wrote %d id files", n))
	}
}

func (r *Resetter) sanitize(ctx context.Context, l *zap.Logger, handles []store.Handle, report *Report) {
	sanitizer := sqlstore.NewSanitizer(l, r.target.ContentKeywords, r.target.CacheTablePatterns)
	for _, h := range handles {
		if h.Kind != store.KindSQLite {
			continue
		}
		cr, err := sanitizer.Sanitize(ctx, h.Path)
		report.addClean(cr)
		metrics.RecordsCleanedCounter.WithLabelValues(r.target.Name).Add(float64(cr.RecordsCleaned))
		if err != nil {
			r.stageError(l, "sanitize", h.Path, err, report)
		}
	}
	r.sink.Emit(progress.LevelSuccess, fmt.Sprintf("sanitized %d databases, cleaned %d records", report.DatabasesSanitized, report.RecordsCleaned))
}

func (r *Resetter) sweep(l *zap.Logger, report *Report) {
	r.sink.Emit(progress.LevelInfo, "cleaning cache directories")
	res := r.sweeper(l).Sweep(r.root)
	report.addSweep(res)
	metrics.BytesFreedCounter.WithLabelValues(r.target.Name).Add(float64(res.BytesFreed))
	if len(res.Errors) > 0 {
		metrics.StageErrorsCounter.WithLabelValues(r.target.Name, "sweep").Add(float64(len(res.Errors)))
	}
	r.sink.Emit(progress.LevelSuccess, fmt.Sprintf("cleaned %d cache directories, freed %s", res.DirectoriesCleaned, cache.FormatSize(res.BytesFreed)))
}

func (r *Resetter) purge(l *zap.Logger, report *Report) {
	if len(r.target.IdentityFiles) == 0 {
		return
	}
	r.sink.Emit(progress.LevelInfo, "removing identity files")
	res := r.sweeper(l).Purge(r.root, r.target.IdentityFiles)
	report.addPurge(res)
	metrics.BytesFreedCounter.WithLabelValues(r.target.Name).Add(float64(res.BytesFreed))
	if len(res.Errors) > 0 {
		metrics.StageErrorsCounter.WithLabelValues(r.target.Name, "purge").Add(float64(len(res.Errors)))
	}
	r.sink.Emit(progress.LevelSuccess, fmt.Sprintf("removed %d identity files", res.EntriesRemoved))
}

func (r *Resetter) sweeper(l *zap.Logger) *cache.Sweeper {
	return cache.NewSweeper(l, r.target.CacheDirectories,
		cache.SweeperWithFs(r.fs),
		cache.SweeperWithPreserve(r.target.PreservePaths...),
	)
}

func (r *Resetter) prune(ctx context.Context, l *zap.Logger) {
	if r.backupLimit <= 0 {
		return
	}
	n, err := r.backups.Prune(ctx, r.backupLimit)
	if err != nil {
		l.Warn("failed to prune backups", zap.Error(err))
		return
	}
	if n > 0 {
		l.Info("pruned backups", zap.Int("removed", n), zap.Int("limit", r.backupLimit))
	}
}

func (r *Resetter) stageError(l *zap.Logger, stage, path string, err error, report *Report) {
	l.Warn("stage failed", zap.String("stage", stage), zap.String("path", path), zap.Error(err))
	report.addError(path, err)
	metrics.StageErrorsCounter.WithLabelValues(r.target.Name, stage).Inc()
	r.sink.Emit(progress.LevelWarning, fmt.Sprintf("%s failed for %s: %v", stage, path, err))
}

// mergeKeys returns a followed by the entries of b not already in a.
func mergeKeys(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	ret := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, k := range list {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			ret = append(ret, k)
		}
	}
	return ret
}
