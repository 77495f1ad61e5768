package backup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

const testLive = "/data/User/globalStorage/storage.json"

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	original := []byte(`{"telemetry.devDeviceId":"original-id"}`)
	require.NoError(t, afero.WriteFile(fs, testLive, original, 0644))

	s := testStore(t, fs, fixedClock(time.Date(2024, 3, 1, 12, 30, 45, 0, time.Local)))

	id, err := s.Create(ctx, testLive)
	require.NoError(t, err)
	assert.Equal(t, "backup_20240301_123045", id)

	modified := []byte(`{"telemetry.devDeviceId":"modified-id"}`)
	require.NoError(t, afero.WriteFile(fs, testLive, modified, 0644))

	require.NoError(t, s.Restore(ctx, id, testLive))

	restored, err := afero.ReadFile(fs, testLive)
	require.NoError(t, err)
	assert.Equal(t, original, restored)

	safety, err := afero.ReadFile(fs, testLive+RestoreSuffix)
	require.NoError(t, err)
	assert.Equal(t, modified, safety)
}

func TestStoreRestoreWithoutLiveFile(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLive, []byte("{}"), 0644))

	s := testStore(t, fs, time.Now)
	id, err := s.Create(ctx, testLive)
	require.NoError(t, err)
	require.NoError(t, fs.Remove(testLive))

	require.NoError(t, s.Restore(ctx, id, testLive))
	exists, err := afero.Exists(fs, testLive+RestoreSuffix)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreCreateSourceMissing(t *testing.T) {
	s := testStore(t, afero.NewMemMapFs(), time.Now)
	_, err := s.Create(context.Background(), "/missing.json")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceMissing))
}

func TestStoreCreateExisting(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLive, []byte("first"), 0644))
	s := testStore(t, fs, fixedClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local)))

	_, err := s.Create(ctx, testLive)
	require.NoError(t, err)

	require.NoError(t, afero.WriteFile(fs, testLive, []byte("second"), 0644))
	_, err = s.Create(ctx, testLive)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBackupExists))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(len("first")), list[0].Size)
}

func TestStoreRestoreNotFound(t *testing.T) {
	s := testStore(t, afero.NewMemMapFs(), time.Now)
	err := s.Restore(context.Background(), "backup_20000101_000000", testLive)
	assert.True(t, errors.Is(err, ErrBackupNotFound))
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLive, []byte("{}"), 0644))
	s := testStore(t, fs, time.Now)

	id, err := s.Create(ctx, testLive)
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, id))

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	exists, err := afero.Exists(fs, testLive)
	require.NoError(t, err)
	assert.True(t, exists, "live file must survive")

	err = s.Delete(ctx, id)
	assert.True(t, errors.Is(err, ErrBackupNotFound))
}

func TestStoreListOrder(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	storage, err := NewFilesystemStorage(fs, "/backups")
	require.NoError(t, err)

	require.NoError(t, storage.Write(ctx, "backup_20240101_100000.json", []byte(`{"telemetry.devDeviceId":"a"}`)))
	require.NoError(t, storage.Write(ctx, "backup_20240301_100000.json", []byte(`{"telemetry.devDeviceId":"c"}`)))
	require.NoError(t, storage.Write(ctx, "backup_20240201_100000.json", []byte(`not json`)))
	require.NoError(t, storage.Write(ctx, "backup_garbage.json", []byte(`{"telemetry.devDeviceId":"x"}`)))
	require.NoError(t, storage.Write(ctx, "notes.txt", []byte(`ignored`)))

	s, err := New(zaptest.NewLogger(t), "/backups", WithFs(fs), WithStorage(storage))
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 4)

	assert.Equal(t, "backup_20240301_100000", list[0].ID)
	assert.Equal(t, "c", list[0].MachineID)
	assert.Equal(t, "backup_20240201_100000", list[1].ID)
	assert.Equal(t, UnknownMachineID, list[1].MachineID)
	assert.Equal(t, "backup_20240101_100000", list[2].ID)
	assert.Equal(t, "backup_garbage", list[3].ID)
	assert.True(t, list[3].Timestamp.IsZero())
	assert.Equal(t, "/backups/backup_20240301_100000.json", list[0].Path)
}

func TestStorePrune(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLive, []byte("{}"), 0644))

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local)
	s := testStore(t, fs, func() time.Time {
		now = now.Add(time.Second)
		return now
	})
	for i := 0; i < 5; i++ {
		_, err := s.Create(ctx, testLive)
		require.NoError(t, err)
	}

	removed, err := s.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = s.Prune(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "backup_20240101_000005", list[0].ID)
	assert.Equal(t, "backup_20240101_000004", list[1].ID)
}

func TestStoreWithBlobStorage(t *testing.T) {
	ctx := context.Background()
	bucket, err := blob.OpenBucket(ctx, "mem://")
	require.NoError(t, err)
	defer bucket.Close()

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testLive, []byte(`{"telemetry.devDeviceId":"blob"}`), 0644))

	s, err := New(zaptest.NewLogger(t), "",
		WithFs(fs),
		WithStorage(NewBlobStorageFromBucket(bucket, "cursor")),
		WithClock(fixedClock(time.Date(2024, 5, 6, 7, 8, 9, 0, time.Local))),
	)
	require.NoError(t, err)

	id, err := s.Create(ctx, testLive)
	require.NoError(t, err)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, "blob", list[0].MachineID)
	assert.Equal(t, "cursor/"+id+Suffix, list[0].Path)
}

func TestParseTimestamp(t *testing.T) {
	ts, ok := ParseTimestamp("backup_20231231_235959")
	require.True(t, ok)
	assert.Equal(t, time.Date(2023, 12, 31, 23, 59, 59, 0, time.Local), ts)

	for _, id := range []string{"", "backup_", "backup_2023", "snapshot_20231231_235959"} {
		t.Run(fmt.Sprintf("invalid %q", id), func(t *testing.T) {
			_, ok := ParseTimestamp(id)
			assert.False(t, ok)
		})
	}
}

func testStore(t *testing.T, fs afero.Fs, clock func() time.Time) *Store {
	t.Helper()
	s, err := New(zaptest.NewLogger(t), "/backups", WithFs(fs), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestStoreRejectsIDsOutsideBackupDir(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	live := []byte(`{"telemetry.devDeviceId":"live"}`)
	require.NoError(t, afero.WriteFile(fs, testLive, live, 0644))
	require.NoError(t, afero.WriteFile(fs, "/data/other.json", []byte(`{"telemetry.devDeviceId":"other"}`), 0644))
	s := testStore(t, fs, time.Now)

	for _, id := range []string{
		"../data/User/globalStorage/storage",
		"backup_/../../data/User/globalStorage/storage",
		"backup_..",
		`backup_..\..\data\other`,
		"../data/other",
		"",
	} {
		t.Run(fmt.Sprintf("%q", id), func(t *testing.T) {
			err := s.Delete(ctx, id)
			assert.True(t, errors.Is(err, ErrBackupNotFound), "delete: %v", err)

			err = s.Restore(ctx, id, testLive)
			assert.True(t, errors.Is(err, ErrBackupNotFound), "restore: %v", err)

			data, err := afero.ReadFile(fs, testLive)
			require.NoError(t, err)
			assert.Equal(t, live, data)
		})
	}

	exists, err := afero.Exists(fs, testLive+RestoreSuffix)
	require.NoError(t, err)
	assert.False(t, exists)
}
