package cmd

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func logLevelFlag(v *viper.Viper) string {
	return v.GetString("log.level")
}

func addLogLevelFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-level", "info", "log level")
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindEnv("log.level", "LOG_LEVEL")
}

func logFormatFlag(v *viper.Viper) string {
	return v.GetString("log.format")
}

func addLogFormatFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("log-format", "json", "log format (json, console)")
	_ = v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = v.BindEnv("log.format", "LOG_FORMAT")
}

func configFlag(v *viper.Viper) string {
	return v.GetString("config")
}

func addConfigFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("config", "", "Config file overriding target settings (yaml, json, toml)")
	_ = v.BindPFlag("config", flags.Lookup("config"))
	_ = v.BindEnv("config", "IDRESET_CONFIG")
}

func targetFlag(v *viper.Viper) string {
	return v.GetString("target")
}

func addTargetFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("target", "cursor", "Target application (cursor, windsurf, qoder)")
	_ = v.BindPFlag("target", flags.Lookup("target"))
	_ = v.BindEnv("target", "IDRESET_TARGET")
}

func dataDirFlag(v *viper.Viper) string {
	return v.GetString("data_dir")
}

func addDataDirFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("data-dir", "", "Data directory of the target, detected when empty")
	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindEnv("data_dir", "IDRESET_DATA_DIR")
}

func backupDirFlag(v *viper.Viper) string {
	return v.GetString("backup.dir")
}

func addBackupDirFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-dir", "", "Where to put backups, defaults to the user config dir")
	_ = v.BindPFlag("backup.dir", flags.Lookup("backup-dir"))
	_ = v.BindEnv("backup.dir", "IDRESET_BACKUP_DIR")
}

func backupStorageFlag(v *viper.Viper) string {
	return v.GetString("backup.storage")
}

func addBackupStorageFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-storage", "filesystem", "Backup storage type (filesystem, blob)")
	_ = v.BindPFlag("backup.storage", flags.Lookup("backup-storage"))
	_ = v.BindEnv("backup.storage", "IDRESET_BACKUP_STORAGE")
}

func backupBucketFlag(v *viper.Viper) string {
	return v.GetString("backup.bucket")
}

func addBackupBucketFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("backup-bucket", "", "Blob bucket URL for backups (file://, gs://, s3://, azblob://)")
	_ = v.BindPFlag("backup.bucket", flags.Lookup("backup-bucket"))
	_ = v.BindEnv("backup.bucket", "IDRESET_BACKUP_BUCKET")
}

func backupLimitFlag(v *viper.Viper) int {
	return v.GetInt("backup.limit")
}

func addBackupLimitFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Int("backup-limit", 10, "Number of backups to keep, 0 keeps all")
	_ = v.BindPFlag("backup.limit", flags.Lookup("backup-limit"))
	_ = v.BindEnv("backup.limit", "IDRESET_BACKUP_LIMIT")
}

func quitFlag(v *viper.Viper) bool {
	return v.GetBool("quit")
}

func addQuitFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("quit", false, "Shut the target down before resetting")
	_ = v.BindPFlag("quit", flags.Lookup("quit"))
	_ = v.BindEnv("quit", "IDRESET_QUIT")
}

func metricsFileFlag(v *viper.Viper) string {
	return v.GetString("metrics.file")
}

func addMetricsFileFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.String("metrics-file", "", "Write prometheus metrics to this textfile after the run")
	_ = v.BindPFlag("metrics.file", flags.Lookup("metrics-file"))
	_ = v.BindEnv("metrics.file", "IDRESET_METRICS_FILE")
}

// addTargetFlags adds the flags every target bound command shares.
func addTargetFlags(flags *pflag.FlagSet, v *viper.Viper) {
	addConfigFlag(flags, v)
	addTargetFlag(flags, v)
	addDataDirFlag(flags, v)
}

func addBackupFlags(flags *pflag.FlagSet, v *viper.Viper) {
	addBackupDirFlag(flags, v)
	addBackupStorageFlag(flags, v)
	addBackupBucketFlag(flags, v)
}

func jsonFlag(v *viper.Viper) bool {
	return v.GetBool("json")
}

func addJSONFlag(flags *pflag.FlagSet, v *viper.Viper) {
	flags.Bool("json", false, "Print the result as JSON")
	_ = v.BindPFlag("json", flags.Lookup("json"))
}
