package store

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

type Kind string

const (
	KindJSON   Kind = "json"
	KindSQLite Kind = "sqlite"
)

type (
	// Handle points at one discovered store file.
	Handle struct {
		Kind Kind
		Path string
	}
	// ModifyResult is what a rewriter did to one store.
	ModifyResult struct {
		FilesProcessed int
		KeysUpdated    int
		KeysDeleted    int
		Errors         []string
	}
	DiscoverOptions struct {
		// JSONFileNames are matched against the exact base name.
		JSONFileNames []string
		// SQLiteExtensions are matched case-insensitively, without the dot.
		SQLiteExtensions []string
		// ExcludePatterns drop every path containing one of them.
		ExcludePatterns []string
		// ExcludeDirs are never descended into.
		ExcludeDirs []string
	}
)

// Add merges o into r.
func (r *ModifyResult) Add(o ModifyResult) {
	r.FilesProcessed += o.FilesProcessed
	r.KeysUpdated += o.KeysUpdated
	r.KeysDeleted += o.KeysDeleted
	r.Errors = append(r.Errors, o.Errors...)
}

func (r ModifyResult) Changed() bool {
	return r.KeysUpdated > 0 || r.KeysDeleted > 0
}

// Discover walks root and returns every JSON and SQLite store in walk order.
// Unreadable entries are skipped.
func Discover(fs afero.Fs, root string, opts DiscoverOptions) ([]Handle, error) {
	if _, err := fs.Stat(root); err != nil {
		return nil, err
	}

	excludeDirs := make([]string, 0, len(opts.ExcludeDirs))
	for _, dir := range opts.ExcludeDirs {
		if dir != "" {
			excludeDirs = append(excludeDirs, filepath.Clean(dir))
		}
	}

	var ret []Handle
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if info.IsDir() {
			if path != root && (excluded(path, opts.ExcludePatterns) || under(path, excludeDirs)) {
				return filepath.SkipDir
			}
			return nil
		}
		if excluded(path, opts.ExcludePatterns) {
			return nil
		}
		if kind, ok := classify(info.Name(), opts); ok {
			ret = append(ret, Handle{Kind: kind, Path: path})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func classify(name string, opts DiscoverOptions) (Kind, bool) {
	for _, v := range opts.JSONFileNames {
		if name == v {
			return KindJSON, true
		}
	}
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return "", false
	}
	for _, v := range opts.SQLiteExtensions {
		if strings.EqualFold(ext, strings.TrimPrefix(v, ".")) {
			return KindSQLite, true
		}
	}
	return "", false
}

func excluded(path string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(path, p) {
			return true
		}
	}
	return false
}

func under(path string, dirs []string) bool {
	for _, dir := range dirs {
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Replacement picks the new value for a telemetry key: an explicit assignment,
// else sessionID for keys containing "session", else machineID.
func Replacement(key string, assignments map[string]string, machineID, sessionID string) string {
	if v, ok := assignments[key]; ok {
		return v
	}
	if strings.Contains(strings.ToLower(key), "session") {
		return sessionID
	}
	return machineID
}
