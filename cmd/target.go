package cmd

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/foomo/idreset/pkg/backup"
	"github.com/foomo/idreset/pkg/config"
	"github.com/foomo/idreset/pkg/metrics"
	"github.com/foomo/idreset/pkg/process"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// supportedBlobSchemes lists the URL schemes supported by blob storage
	supportedBlobSchemes = []string{"file://", "gs://", "s3://", "azblob://"}
	// processPlatform is swapped in tests
	processPlatform = process.DefaultPlatform
)

// loadTarget reads the optional config file and returns the selected target.
func loadTarget(v *viper.Viper) (config.Target, error) {
	if file := configFlag(v); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return config.Target{}, errors.Wrapf(err, "failed to read config %s", file)
		}
	}
	return config.Load(v, strings.ToLower(targetFlag(v)))
}

// dataRoot returns the data directory of the target, preferring --data-dir.
func dataRoot(v *viper.Viper, target config.Target) (string, error) {
	if dir := dataDirFlag(v); dir != "" {
		return filepath.Abs(dir)
	}
	if root, ok := target.DataRoot(afero.NewOsFs()); ok {
		return root, nil
	}
	return "", fmt.Errorf("%s does not seem to be installed (looked in %s)", target.DisplayName, strings.Join(target.DataPaths, ", "))
}

func backupDir(v *viper.Viper, target config.Target) string {
	if dir := backupDirFlag(v); dir != "" {
		return dir
	}
	return config.DefaultBackupDir(target.Name)
}

// newBackupStore creates the backup store based on the configuration
func newBackupStore(ctx context.Context, l *zap.Logger, v *viper.Viper, target config.Target) (*backup.Store, error) {
	storageType := backupStorageFlag(v)
	bucket := backupBucketFlag(v)

	if storageType != "blob" && bucket != "" {
		l.Warn("backup bucket is set but backup-storage is not 'blob'; it will be ignored",
			zap.String("backup-storage", storageType),
			zap.String("backup-bucket", bucket),
		)
	}

	switch storageType {
	case "blob":
		if bucket == "" {
			return nil, errors.New("backup bucket URL is required when backup-storage is 'blob'")
		}
		if !isValidBlobScheme(bucket) {
			return nil, fmt.Errorf("unsupported blob storage URL scheme in %q; supported schemes: %s", bucket, strings.Join(supportedBlobSchemes, ", "))
		}
		storage, err := backup.NewBlobStorage(ctx, bucket, target.Name)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open backup bucket")
		}
		l.Debug("using blob backup storage", zap.String("bucket", bucket))
		return backup.New(l, "", backup.WithStorage(storage))
	case "filesystem", "":
		dir := backupDir(v, target)
		l.Debug("using filesystem backup storage", zap.String("dir", dir))
		return backup.New(l, dir)
	default:
		return nil, fmt.Errorf("unknown backup storage type: %s (supported: filesystem, blob)", storageType)
	}
}

func newController(l *zap.Logger, target config.Target) *process.Controller {
	return process.NewController(l, target.ProcessNames,
		process.ControllerWithPlatform(processPlatform()),
		process.ControllerWithTimeout(target.ShutdownTimeout),
		process.ControllerWithPollInterval(target.PollInterval),
	)
}

// shutdown stops the target and records the final state.
func shutdown(ctx context.Context, l *zap.Logger, target config.Target) (process.State, error) {
	state, err := newController(l, target).Shutdown(ctx)
	metrics.ShutdownCounter.WithLabelValues(target.Name, state.String()).Inc()
	return state, err
}

func writeMetrics(l *zap.Logger, v *viper.Viper) {
	filename := metricsFileFlag(v)
	if filename == "" {
		return
	}
	if err := metrics.WriteTextfile(filename); err != nil {
		l.Warn("failed to write metrics", zap.String("file", filename), zap.Error(err))
	}
}

// isValidBlobScheme checks if the bucket URL has a supported scheme
func isValidBlobScheme(bucketURL string) bool {
	for _, scheme := range supportedBlobSchemes {
		if strings.HasPrefix(bucketURL, scheme) {
			return true
		}
	}
	return false
}
