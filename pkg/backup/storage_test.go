package backup

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob"
	_ "gocloud.dev/blob/memblob"
)

func testStorages(t *testing.T) map[string]Storage {
	t.Helper()
	fsStorage, err := NewFilesystemStorage(afero.NewMemMapFs(), "/backups")
	require.NoError(t, err)

	bucket, err := blob.OpenBucket(context.Background(), "mem://")
	require.NoError(t, err)
	t.Cleanup(func() { bucket.Close() })

	return map[string]Storage{
		"filesystem": fsStorage,
		"blob":       NewBlobStorageFromBucket(bucket, "prefix"),
	}
}

func TestStorage(t *testing.T) {
	for name, storage := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, storage.Write(ctx, "backup_1.json", []byte("one")))
			require.NoError(t, storage.Write(ctx, "backup_2.json", []byte("two")))
			require.NoError(t, storage.Write(ctx, "other.json", []byte("other")))

			data, err := storage.Read(ctx, "backup_2.json")
			require.NoError(t, err)
			assert.Equal(t, []byte("two"), data)

			keys, err := storage.List(ctx, "backup_")
			require.NoError(t, err)
			assert.Equal(t, []string{"backup_2.json", "backup_1.json"}, keys)

			_, err = storage.Read(ctx, "missing.json")
			assert.ErrorIs(t, err, os.ErrNotExist)

			require.NoError(t, storage.Delete(ctx, "backup_1.json"))
			require.NoError(t, storage.Delete(ctx, "backup_1.json"), "delete is idempotent")

			keys, err = storage.List(ctx, "backup_")
			require.NoError(t, err)
			assert.Equal(t, []string{"backup_2.json"}, keys)
		})
	}
}

func TestFilesystemStorageLocation(t *testing.T) {
	storage, err := NewFilesystemStorage(afero.NewMemMapFs(), "/backups")
	require.NoError(t, err)
	assert.Equal(t, "/backups/backup_1.json", storage.Location("backup_1.json"))
}

func TestStorageInvalidKeys(t *testing.T) {
	for name, storage := range testStorages(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, key := range []string{"", "../x.json", "a/b.json", `a\b.json`, ".."} {
				assert.ErrorIs(t, storage.Write(ctx, key, []byte("x")), ErrInvalidKey)
				_, err := storage.Read(ctx, key)
				assert.ErrorIs(t, err, ErrInvalidKey)
				assert.ErrorIs(t, storage.Delete(ctx, key), ErrInvalidKey)
			}
		})
	}
}
