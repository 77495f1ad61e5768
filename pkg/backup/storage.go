package backup

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidKey is returned for keys that would leave the storage root.
var ErrInvalidKey = errors.New("invalid backup key")

// Storage keeps backup files under flat keys like "backup_20240102_150405.json".
type Storage interface {
	Write(ctx context.Context, key string, data []byte) error
	// Read returns os.ErrNotExist for unknown keys.
	Read(ctx context.Context, key string) ([]byte, error)
	// List returns the keys starting with prefix in descending order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete succeeds for unknown keys.
	Delete(ctx context.Context, key string) error
	// Location is where a key lives, for display.
	Location(key string) string
	Close() error
}

// checkKey rejects empty keys and keys with separators or parent references.
func checkKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return errors.Wrap(ErrInvalidKey, key)
	}
	return nil
}
