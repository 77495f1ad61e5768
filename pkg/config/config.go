package config

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	TargetCursor   = "cursor"
	TargetWindsurf = "windsurf"
	TargetQoder    = "qoder"
)

var ErrUnknownTarget = errors.New("unknown target")

// UnknownVersion is reported when no package.json names a version.
const UnknownVersion = "unknown"

var (
	qoderCacheDirectories = []string{
		"Cache",
		"blob_storage",
		"Code Cache",
		"GPUCache",
		"DawnGraphiteCache",
		"DawnWebGPUCache",
		"DawnCache",
		"ShaderCache",
		"CachedData",
		"CachedProfilesData",
		"CachedExtensions",
		"IndexedDB",
		"CacheStorage",
		"WebSQL",
		"Dictionaries",
		"MediaCache",
		"MetadataCache",
		"ThumbnailCache",
		"SharedClientCache",
		"logs",
	}
	qoderIdentityFiles = []string{
		"Network Persistent State",
		"TransportSecurity",
		"Trust Tokens",
		"Trust Tokens-journal",
		"SharedStorage",
		"SharedStorage-wal",
		"Local Storage",
		"Session Storage",
		"WebStorage",
		"Shared Dictionary",
		"Preferences",
		"Secure Preferences",
		"Local State",
		"DeviceMetadata",
		"HardwareInfo",
		"SystemInfo",
		"Cookies",
		"Cookies-journal",
		"Web Data",
		"Web Data-journal",
		"Login Credentials",
		"Login Data",
		"Login Data-journal",
		"AutofillStrikeDatabase",
		"AutofillStrikeDatabase-journal",
		"Feature Engagement Tracker",
		"Platform Notifications",
		"VideoDecodeStats",
		"OriginTrials",
		"BrowserMetrics",
		"SafeBrowsing",
		"QuotaManager",
		"QuotaManager-journal",
		"Network Action Predictor",
		"Service Worker",
		"databases",
		"hardware_detection.json",
		"device_capabilities.json",
		"system_features.json",
		"platform_detection.json",
	}
)

// Target describes everything the reset pipeline needs to know about one application.
type Target struct {
	Name               string        `mapstructure:"name"`
	DisplayName        string        `mapstructure:"display_name"`
	ProcessNames       []string      `mapstructure:"process_names"`
	DataPaths          []string      `mapstructure:"data_paths"`
	PrimaryConfig      string        `mapstructure:"primary_config"`
	MachineIDFile      string        `mapstructure:"machine_id_file"`
	JSONFileNames      []string      `mapstructure:"json_file_names"`
	SQLiteExtensions   []string      `mapstructure:"sqlite_extensions"`
	ExcludePatterns    []string      `mapstructure:"exclude_patterns"`
	TelemetryKeys      []string      `mapstructure:"telemetry_keys"`
	SessionKeys        []string      `mapstructure:"session_keys"`
	ContentKeywords    []string      `mapstructure:"content_keywords"`
	CacheTablePatterns []string      `mapstructure:"cache_table_patterns"`
	CacheDirectories   []string      `mapstructure:"cache_directories"`
	// IdentityFiles are removed below the data root, files or whole directories.
	IdentityFiles []string `mapstructure:"identity_files"`
	// ExtraIDFiles are (re)written with a fresh UUID on every reset.
	ExtraIDFiles []string `mapstructure:"extra_id_files"`
	// PreservePaths are never swept or removed, even inside a cache directory.
	PreservePaths []string `mapstructure:"preserve_paths"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
}

// Names returns the built-in target names.
func Names() []string {
	ret := []string{TargetCursor, TargetWindsurf, TargetQoder}
	sort.Strings(ret)
	return ret
}

// Default returns the built-in preset for name.
func Default(name string) (Target, error) {
	switch name {
	case TargetCursor:
		return vscodeTarget(TargetCursor, "Cursor", appDirs("Cursor", "cursor-ai")), nil
	case TargetWindsurf:
		return vscodeTarget(TargetWindsurf, "Windsurf", appDirs("Windsurf", "windsurf-ai", filepath.Join("Codeium", "Windsurf"))), nil
	case TargetQoder:
		t := vscodeTarget(TargetQoder, "Qoder", appDirs("Qoder"))
		t.ProcessNames = []string{"qoder"}
		t.MachineIDFile = "machineid"
		t.ShutdownTimeout = 5 * time.Second
		t.CacheDirectories = append([]string(nil), qoderCacheDirectories...)
		t.IdentityFiles = append([]string(nil), qoderIdentityFiles...)
		t.ExtraIDFiles = []string{"deviceid", "hardware_uuid", "system_uuid", "platform_id", "installation_id"}
		t.PreservePaths = []string{
			"User/workspaceStorage",
			"User/History",
			"SharedClientCache/mcp.json",
			"SharedClientCache/extension/local/mcp.json",
		}
		return t, nil
	default:
		return Target{}, errors.Wrap(ErrUnknownTarget, name)
	}
}

// Load returns the preset for name overlaid with any `targets.<name>` settings found in v.
func Load(v *viper.Viper, name string) (Target, error) {
	t, err := Default(name)
	if err != nil {
		return Target{}, err
	}

	sub := v.Sub("targets." + name)
	if sub == nil {
		return t, nil
	}

	var o Target
	if err := sub.Unmarshal(&o); err != nil {
		return Target{}, errors.Wrapf(err, "failed to decode target %s", name)
	}

	overlay := func(key string, apply func()) {
		if sub.IsSet(key) {
			apply()
		}
	}
	overlay("name", func() { t.Name = o.Name })
	overlay("display_name", func() { t.DisplayName = o.DisplayName })
	overlay("process_names", func() { t.ProcessNames = o.ProcessNames })
	overlay("data_paths", func() { t.DataPaths = o.DataPaths })
	overlay("primary_config", func() { t.PrimaryConfig = o.PrimaryConfig })
	overlay("machine_id_file", func() { t.MachineIDFile = o.MachineIDFile })
	overlay("json_file_names", func() { t.JSONFileNames = o.JSONFileNames })
	overlay("sqlite_extensions", func() { t.SQLiteExtensions = o.SQLiteExtensions })
	overlay("exclude_patterns", func() { t.ExcludePatterns = o.ExcludePatterns })
	overlay("telemetry_keys", func() { t.TelemetryKeys = o.TelemetryKeys })
	overlay("session_keys", func() { t.SessionKeys = o.SessionKeys })
	overlay("content_keywords", func() { t.ContentKeywords = o.ContentKeywords })
	overlay("cache_table_patterns", func() { t.CacheTablePatterns = o.CacheTablePatterns })
	overlay("cache_directories", func() { t.CacheDirectories = o.CacheDirectories })
	overlay("identity_files", func() { t.IdentityFiles = o.IdentityFiles })
	overlay("extra_id_files", func() { t.ExtraIDFiles = o.ExtraIDFiles })
	overlay("preserve_paths", func() { t.PreservePaths = o.PreservePaths })
	overlay("shutdown_timeout", func() { t.ShutdownTimeout = o.ShutdownTimeout })
	overlay("poll_interval", func() { t.PollInterval = o.PollInterval })

	return t, nil
}

// DataRoot returns the first configured data path that exists as a directory.
func (t Target) DataRoot(fs afero.Fs) (string, bool) {
	for _, p := range t.DataPaths {
		if p == "" {
			continue
		}
		if ok, err := afero.DirExists(fs, p); err == nil && ok {
			return p, true
		}
	}
	return "", false
}

// PrimaryConfigPath returns the primary config file below root.
func (t Target) PrimaryConfigPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(t.PrimaryConfig))
}

// MachineIDPath returns the machine id file below root, or "" if none is configured.
func (t Target) MachineIDPath(root string) string {
	if t.MachineIDFile == "" {
		return ""
	}
	return filepath.Join(root, filepath.FromSlash(t.MachineIDFile))
}

// Version reads the application version from a package.json next to or inside
// root. It returns UnknownVersion when neither carries one.
func (t Target) Version(fs afero.Fs, root string) string {
	for _, path := range []string{
		filepath.Join(filepath.Dir(root), "package.json"),
		filepath.Join(root, "package.json"),
	} {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			continue
		}
		if v := jsoniter.Get(data, "version"); v.ValueType() == jsoniter.StringValue && v.ToString() != "" {
			return v.ToString()
		}
	}
	return UnknownVersion
}

// DefaultBackupDir returns the per-target backup directory below the user config dir.
func DefaultBackupDir(name string) string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "idreset", "backups", name)
}

func vscodeTarget(name, displayName string, dataPaths []string) Target {
	return Target{
		Name:        name,
		DisplayName: displayName,
		ProcessNames: []string{
			name,
			name + ".exe",
			displayName,
		},
		DataPaths:        dataPaths,
		PrimaryConfig:    "User/globalStorage/storage.json",
		JSONFileNames:    []string{"storage.json", "preferences.json", "settings.json"},
		SQLiteExtensions: []string{"vscdb", "db", "sqlite", "sqlite3"},
		ExcludePatterns:  []string{"backup", ".bak"},
		TelemetryKeys: []string{
			"machineId",
			"telemetry.machineId",
			"telemetryMachineId",
			"deviceId",
			"telemetry.deviceId",
			"lastSessionId",
			"sessionId",
			"installationId",
			"sqmUserId",
			"sqmMachineId",
			"clientId",
			"instanceId",
		},
		SessionKeys: []string{
			"lastSessionDate",
			"sessionStartTime",
			"userSession",
			"authToken",
			"accessToken",
			"refreshToken",
			"bearerToken",
			"apiKey",
			"userToken",
		},
		ContentKeywords: []string{
			"augment",
			"account",
			"session",
			"user",
			"login",
			"auth",
			"token",
			"credential",
			"profile",
			"identity",
		},
		CacheTablePatterns: []string{
			"cache",
			"session",
			"temp",
			"log",
			"history",
			"recent",
			"workspace",
			"project",
		},
		CacheDirectories: []string{
			"IndexedDB",
			"Local Storage",
			"Cache",
			"Code Cache",
			"GPUCache",
			"blob_storage",
			"logs",
			"User/workspaceStorage",
			"User/History",
			"User/logs",
			"CachedData",
			"CachedExtensions",
			"ShaderCache",
			"WebStorage",
		},
		ShutdownTimeout: 10 * time.Second,
		PollInterval:    500 * time.Millisecond,
	}
}

// appDirs expands application directory names into the per-OS data paths.
func appDirs(names ...string) []string {
	var bases []string
	if dir, err := os.UserConfigDir(); err == nil {
		bases = append(bases, dir)
	}
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			bases = append(bases, dir)
		}
	}

	var ret []string
	for _, name := range names {
		for _, base := range bases {
			ret = append(ret, filepath.Join(base, name))
		}
	}
	return ret
}
