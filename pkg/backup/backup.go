package backup

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	IDPrefix         = "backup_"
	Suffix           = ".json"
	TimeLayout       = "20060102_150405"
	RestoreSuffix    = ".restore_bak"
	UnknownMachineID = "Unknown"
	DisplayIDKey     = "telemetry.devDeviceId"
)

var (
	ErrSourceMissing  = errors.New("backup source does not exist")
	ErrBackupNotFound = errors.New("backup not found")
	ErrBackupExists   = errors.New("backup already exists")
)

type (
	// Descriptor describes one snapshot.
	Descriptor struct {
		ID        string    `json:"id"`
		Timestamp time.Time `json:"timestamp"`
		MachineID string    `json:"machineId"`
		Size      int64     `json:"size"`
		Path      string    `json:"path"`
	}
	// Store snapshots and restores a single live configuration file.
	Store struct {
		l       *zap.Logger
		fs      afero.Fs
		storage Storage
		dir     string
		now     func() time.Time
		mu      sync.Mutex
	}
	Option func(*Store)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

// WithStorage replaces the default filesystem storage.
func WithStorage(v Storage) Option {
	return func(o *Store) {
		o.storage = v
	}
}

// WithFs sets the filesystem holding the live files and the default storage.
func WithFs(v afero.Fs) Option {
	return func(o *Store) {
		o.fs = v
	}
}

func WithClock(v func() time.Time) Option {
	return func(o *Store) {
		o.now = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

// New creates a store keeping its snapshots in dir unless another storage is given.
func New(l *zap.Logger, dir string, opts ...Option) (*Store, error) {
	inst := &Store{
		l:   l.Named("backup"),
		fs:  afero.NewOsFs(),
		dir: dir,
		now: time.Now,
	}

	for _, opt := range opts {
		opt(inst)
	}

	if inst.storage == nil {
		storage, err := NewFilesystemStorage(inst.fs, inst.dir)
		if err != nil {
			return nil, errors.Wrap(err, "failed to create default filesystem storage")
		}
		inst.storage = storage
	}

	return inst, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Create snapshots source and returns the new backup id.
func (s *Store) Create(ctx context.Context, source string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, source)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errors.Wrap(ErrSourceMissing, source)
		}
		return "", errors.Wrapf(err, "failed to read %s", source)
	}

	id := IDPrefix + s.now().Format(TimeLayout)
	key := id + Suffix

	if _, err := s.storage.Read(ctx, key); err == nil {
		return "", errors.Wrap(ErrBackupExists, id)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", errors.Wrapf(err, "failed to check backup %s", id)
	}

	if err := s.storage.Write(ctx, key, data); err != nil {
		return "", errors.Wrap(err, "failed to write backup")
	}

	s.l.Info("backup created",
		zap.String("id", id),
		zap.String("source", source),
		zap.Int("size", len(data)),
	)

	return id, nil
}

// List returns all snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]Descriptor, error) {
	keys, err := s.storage.List(ctx, IDPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list backups")
	}

	ret := make([]Descriptor, 0, len(keys))
	for _, key := range keys {
		if !strings.HasSuffix(key, Suffix) {
			continue
		}
		data, err := s.storage.Read(ctx, key)
		if err != nil {
			s.l.Warn("failed to read backup", zap.String("key", key), zap.Error(err))
			continue
		}
		id := strings.TrimSuffix(key, Suffix)
		ts, _ := ParseTimestamp(id)
		ret = append(ret, Descriptor{
			ID:        id,
			Timestamp: ts,
			MachineID: displayID(data),
			Size:      int64(len(data)),
			Path:      s.storage.Location(key),
		})
	}

	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].Timestamp.Equal(ret[j].Timestamp) {
			return ret[i].ID > ret[j].ID
		}
		return ret[i].Timestamp.After(ret[j].Timestamp)
	})

	return ret, nil
}

// Restore writes the snapshot id onto live, keeping a copy of the current live file.
func (s *Store) Restore(ctx context.Context, id, live string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.read(ctx, id)
	if err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if info, err := s.fs.Stat(live); err == nil {
		mode = info.Mode().Perm()
		current, err := afero.ReadFile(s.fs, live)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", live)
		}
		if err := afero.WriteFile(s.fs, live+RestoreSuffix, current, mode); err != nil {
			return errors.Wrap(err, "failed to write safety copy")
		}
		s.l.Debug("safety copy written", zap.String("path", live+RestoreSuffix))
	} else if !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "failed to stat %s", live)
	}

	if err := s.fs.MkdirAll(filepath.Dir(live), 0755); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(live))
	}
	if err := afero.WriteFile(s.fs, live, data, mode); err != nil {
		return errors.Wrapf(err, "failed to restore %s", live)
	}

	s.l.Info("backup restored", zap.String("id", id), zap.String("path", live))
	return nil
}

// Delete removes the snapshot id. The live file is never touched.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.read(ctx, id); err != nil {
		return err
	}
	if err := s.storage.Delete(ctx, id+Suffix); err != nil {
		return errors.Wrapf(err, "failed to delete backup %s", id)
	}

	s.l.Info("backup deleted", zap.String("id", id))
	return nil
}

// Prune deletes all but the newest keep snapshots and returns how many were removed.
// A keep value <= 0 disables pruning.
func (s *Store) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}

	list, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for i := keep; i < len(list); i++ {
		s.l.Debug("removing outdated backup", zap.String("id", list[i].ID))
		if err := s.storage.Delete(ctx, list[i].ID+Suffix); err != nil {
			return removed, errors.Wrapf(err, "could not remove backup %s", list[i].ID)
		}
		removed++
	}

	return removed, nil
}

// Close releases resources held by the backup storage.
func (s *Store) Close() error {
	if s.storage != nil {
		return s.storage.Close()
	}
	return nil
}

// ParseTimestamp extracts the local capture time from a backup id.
func ParseTimestamp(id string) (time.Time, bool) {
	if !strings.HasPrefix(id, IDPrefix) {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation(TimeLayout, strings.TrimPrefix(id, IDPrefix), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (s *Store) read(ctx context.Context, id string) ([]byte, error) {
	if !validID(id) {
		return nil, errors.Wrap(ErrBackupNotFound, id)
	}
	data, err := s.storage.Read(ctx, id+Suffix)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrap(ErrBackupNotFound, id)
		}
		return nil, errors.Wrapf(err, "failed to read backup %s", id)
	}
	return data, nil
}

// validID accepts ids as listed by List: the backup prefix and no path elements.
func validID(id string) bool {
	return strings.HasPrefix(id, IDPrefix) && checkKey(id+Suffix) == nil
}

func displayID(data []byte) string {
	v := jsoniter.Get(data, DisplayIDKey)
	if v.ValueType() == jsoniter.StringValue {
		if s := v.ToString(); s != "" {
			return s
		}
	}
	return UnknownMachineID
}
