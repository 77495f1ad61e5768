package backup

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	// bucket drivers selectable through --backup-bucket
	_ "gocloud.dev/blob/azureblob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/s3blob"
)

// BlobStorage keeps backups in a gocloud bucket, one object per backup below
// a per-target folder.
type BlobStorage struct {
	bucket    *blob.Bucket
	bucketURL string
	folder    string
}

// NewBlobStorage opens bucketURL (file://, gs://, s3:// or azblob://) and
// stores backups below folder.
func NewBlobStorage(ctx context.Context, bucketURL, folder string) (*BlobStorage, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open bucket %s", bucketURL)
	}
	inst := NewBlobStorageFromBucket(bucket, folder)
	inst.bucketURL = strings.TrimSuffix(bucketURL, "/")
	return inst, nil
}

// NewBlobStorageFromBucket takes ownership of an already opened bucket.
func NewBlobStorageFromBucket(bucket *blob.Bucket, folder string) *BlobStorage {
	folder = strings.Trim(folder, "/")
	if folder != "" {
		folder += "/"
	}
	return &BlobStorage{bucket: bucket, folder: folder}
}

func (b *BlobStorage) Write(ctx context.Context, key string, data []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	return b.bucket.WriteAll(ctx, b.object(key), data, &blob.WriterOptions{ContentType: "application/json"})
}

func (b *BlobStorage) Read(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	data, err := b.bucket.ReadAll(ctx, b.object(key))
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, os.ErrNotExist
	}
	return data, err
}

func (b *BlobStorage) List(ctx context.Context, prefix string) ([]string, error) {
	it := b.bucket.List(&blob.ListOptions{Prefix: b.object(prefix), Delimiter: "/"})

	var ret []string
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, errors.Wrap(err, "failed to list bucket")
		}
		if obj.IsDir {
			continue
		}
		if key, ok := strings.CutPrefix(obj.Key, b.folder); ok {
			ret = append(ret, key)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] > ret[j] })
	return ret, nil
}

func (b *BlobStorage) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := b.bucket.Delete(ctx, b.object(key)); err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return err
	}
	return nil
}

func (b *BlobStorage) Location(key string) string {
	if b.bucketURL == "" {
		return b.object(key)
	}
	return b.bucketURL + "/" + b.object(key)
}

func (b *BlobStorage) Close() error {
	return b.bucket.Close()
}

func (b *BlobStorage) object(key string) string {
	return b.folder + key
}
