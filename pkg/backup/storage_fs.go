package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

// FilesystemStorage implements Storage on top of an afero filesystem.
type FilesystemStorage struct {
	fs      afero.Fs
	baseDir string
	mu      sync.RWMutex
}

// NewFilesystemStorage creates a new filesystem-backed storage rooted at baseDir.
func NewFilesystemStorage(fs afero.Fs, baseDir string) (*FilesystemStorage, error) {
	if err := fs.MkdirAll(baseDir, 0700); err != nil {
		return nil, err
	}
	return &FilesystemStorage{fs: fs, baseDir: baseDir}, nil
}

func (f *FilesystemStorage) Write(_ context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	path := f.Location(key)
	if err := f.fs.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return afero.WriteFile(f.fs, path, data, 0600)
}

func (f *FilesystemStorage) Read(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	return afero.ReadFile(f.fs, f.Location(key))
}

// List returns keys matching the prefix.
// Note: Only lists files in the base directory (non-recursive).
func (f *FilesystemStorage) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	entries, err := afero.ReadDir(f.fs, f.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var keys []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			keys = append(keys, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

func (f *FilesystemStorage) Delete(_ context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	err := f.fs.Remove(f.Location(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (f *FilesystemStorage) Location(key string) string {
	return filepath.Join(f.baseDir, key)
}

func (f *FilesystemStorage) Close() error {
	return nil
}
