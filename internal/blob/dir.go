package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/foodingest/internal/food"
)

// Dir serves objects from root/<bucket>/<key> on the local filesystem.
type Dir struct {
	root    string
	maxSize int64
}

// NewDir returns a reader rooted at root.
func NewDir(root string, maxSize int64) *Dir {
	return &Dir{root: root, maxSize: maxSize}
}

// Get returns the file's bytes. Keys that escape the bucket directory are
// rejected.
func (d *Dir) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: err}
	}

	path, err := d.resolve(bucket, key)
	if err != nil {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: err}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("object not found: %w", err)
		}
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: err}
	}
	defer f.Close()

	data, err := readLimited(f, d.maxSize)
	if err != nil {
		return nil, &food.BlobReadError{Bucket: bucket, Key: key, Err: err}
	}
	return data, nil
}

func (d *Dir) resolve(bucket, key string) (string, error) {
	base := filepath.Join(d.root, filepath.Clean("/"+bucket))
	path := filepath.Join(base, filepath.FromSlash(filepath.Clean("/"+key)))
	if path != base && !strings.HasPrefix(path, base+string(filepath.Separator)) {
		return "", fmt.Errorf("key escapes bucket directory")
	}
	return path, nil
}
