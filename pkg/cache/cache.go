package cache

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type (
	Result struct {
		DirectoriesCleaned int
		EntriesRemoved     int
		BytesFreed         int64
		Errors             []string
	}
	// Sweeper empties named cache directories below a data root.
	Sweeper struct {
		l        *zap.Logger
		fs       afero.Fs
		names    []string
		preserve []string
	}
	SweeperOption func(*Sweeper)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func SweeperWithFs(v afero.Fs) SweeperOption {
	return func(o *Sweeper) {
		o.fs = v
	}
}

// SweeperWithPreserve keeps the given slash separated paths below the root.
// Cache directories holding one of them are emptied around it.
func SweeperWithPreserve(v ...string) SweeperOption {
	return func(o *Sweeper) {
		for _, p := range v {
			if p = strings.Trim(filepath.ToSlash(p), "/"); p != "" {
				o.preserve = append(o.preserve, p)
			}
		}
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// NewSweeper creates a sweeper for the given directory names. Names containing
// a slash are nested hints like "User/History".
func NewSweeper(l *zap.Logger, names []string, opts ...SweeperOption) *Sweeper {
	inst := &Sweeper{
		l:     l.Named("cache"),
		fs:    afero.NewOsFs(),
		names: names,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Sweep empties every matching directory below root. It never fails, problems
// end up in Result.Errors.
func (s *Sweeper) Sweep(root string) Result {
	var res Result
	if ok, err := afero.DirExists(s.fs, root); err != nil || !ok {
		s.l.Debug("sweep root missing", zap.String("root", root))
		return res
	}

	cleaned := map[string]struct{}{}
	for _, name := range s.names {
		m, ok := newMatcher(name)
		if !ok {
			continue
		}
		for _, dir := range s.find(root, m) {
			if _, ok := cleaned[dir]; ok {
				continue
			}
			cleaned[dir] = struct{}{}

			entries, err := afero.ReadDir(s.fs, dir)
			if err != nil {
				res.Errors = append(res.Errors, err.Error())
				s.l.Warn("failed to list cache directory", zap.String("dir", dir), zap.Error(err))
				continue
			}

			size := s.size(root, dir)
			if err := s.empty(root, dir, entries); err != nil {
				for _, e := range multierr.Errors(err) {
					res.Errors = append(res.Errors, e.Error())
				}
				s.l.Warn("failed to remove cache entries", zap.String("dir", dir), zap.Error(err))
			}
			res.DirectoriesCleaned++
			res.BytesFreed += size
			s.l.Debug("cleaned cache directory", zap.String("dir", dir), zap.String("size", FormatSize(size)))
		}
	}

	s.l.Info("swept caches",
		zap.String("root", root),
		zap.Int("directories", res.DirectoriesCleaned),
		zap.String("freed", FormatSize(res.BytesFreed)),
	)

	return res
}

// Purge removes the given paths below root, files and directories alike.
// Missing paths are skipped and preserved paths are never touched.
func (s *Sweeper) Purge(root string, paths []string) Result {
	var res Result
	for _, p := range paths {
		rel := strings.Trim(filepath.ToSlash(p), "/")
		if rel == "" || s.preserved(rel) || s.holdsPreserved(rel) {
			continue
		}
		path := filepath.Join(root, filepath.FromSlash(rel))
		if _, err := s.fs.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				res.Errors = append(res.Errors, err.Error())
			}
			continue
		}
		size := s.size(root, path)
		if err := s.fs.RemoveAll(path); err != nil {
			res.Errors = append(res.Errors, err.Error())
			s.l.Warn("failed to remove", zap.String("path", path), zap.Error(err))
			continue
		}
		res.EntriesRemoved++
		res.BytesFreed += size
		s.l.Debug("removed", zap.String("path", path))
	}

	s.l.Info("purged identity files",
		zap.String("root", root),
		zap.Int("entries", res.EntriesRemoved),
		zap.String("freed", FormatSize(res.BytesFreed)),
	)

	return res
}

// FormatSize renders a byte count for humans.
func FormatSize(b int64) string {
	if b < 0 {
		b = 0
	}
	return humanize.IBytes(uint64(b))
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

type matcher struct {
	base    string
	parents []string
}

func newMatcher(name string) (matcher, bool) {
	var segments []string
	for _, seg := range strings.Split(filepath.ToSlash(name), "/") {
		if seg != "" {
			segments = append(segments, seg)
		}
	}
	if len(segments) == 0 {
		return matcher{}, false
	}
	return matcher{
		base:    segments[len(segments)-1],
		parents: segments[:len(segments)-1],
	}, true
}

// match reports whether a directory qualifies; rel is its slash separated path below the sweep root.
func (m matcher) match(base, rel string) bool {
	if base != m.base {
		return false
	}
	for _, p := range m.parents {
		if !strings.Contains(rel, p) {
			return false
		}
	}
	return true
}

func (s *Sweeper) find(root string, m matcher) []string {
	var ret []string
	_ = afero.Walk(s.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || !info.IsDir() || path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if s.preserved(rel) {
			return filepath.SkipDir
		}
		if m.match(info.Name(), rel) {
			ret = append(ret, path)
			return filepath.SkipDir
		}
		return nil
	})
	return ret
}

// size sums the regular files below path that are not preserved.
func (s *Sweeper) size(root, path string) int64 {
	var ret int64
	_ = afero.Walk(s.fs, path, func(p string, info os.FileInfo, err error) error {
		if err != nil || info == nil {
			return nil
		}
		if rel, err := filepath.Rel(root, p); err == nil && s.preserved(filepath.ToSlash(rel)) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.Mode().IsRegular() {
			ret += info.Size()
		}
		return nil
	})
	return ret
}

// empty removes entries of dir, descending into directories that hold a preserved path.
func (s *Sweeper) empty(root, dir string, entries []os.FileInfo) error {
	var errs error
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(root, path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		rel = filepath.ToSlash(rel)
		switch {
		case s.preserved(rel):
			continue
		case entry.IsDir() && s.holdsPreserved(rel):
			children, err := afero.ReadDir(s.fs, path)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			errs = multierr.Append(errs, s.empty(root, path, children))
		case entry.IsDir():
			errs = multierr.Append(errs, s.fs.RemoveAll(path))
		default:
			errs = multierr.Append(errs, s.fs.Remove(path))
		}
	}
	return errs
}

// preserved reports whether rel is a preserved path or lies inside one.
func (s *Sweeper) preserved(rel string) bool {
	for _, p := range s.preserve {
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// holdsPreserved reports whether a preserved path lies below rel.
func (s *Sweeper) holdsPreserved(rel string) bool {
	for _, p := range s.preserve {
		if strings.HasPrefix(p, rel+"/") {
			return true
		}
	}
	return false
}
