package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/toastdotdev/toast/internal/errors"
)

// Store persists artifacts by key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, data []byte) error
}

// DiskStore keeps artifacts under a local directory, sharded by key prefix.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a store rooted at dir, creating it if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeMkdirFailed, "failed to create cache directory", dir)
	}
	return &DiskStore{dir: dir}, nil
}

// Dir returns the store root.
func (s *DiskStore) Dir() string {
	return s.dir
}

func (s *DiskStore) path(key string) string {
	shard := key
	if len(shard) > 2 {
		shard = key[:2]
	}
	return filepath.Join(s.dir, shard, key)
}

// Get reads the artifact stored under key.
func (s *DiskStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	p := s.path(key)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.WrapIO(err, errors.ErrCodeReadFailed, "failed to read cached artifact", p)
	}
	return data, true, nil
}

// Put writes data under key. The write goes through a temporary file so a
// concurrent reader never sees a partial artifact.
func (s *DiskStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p := s.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeMkdirFailed, "failed to create cache shard", filepath.Dir(p))
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), "."+key+".*")
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to create cache file", p)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to write cache file", p)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to close cache file", p)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return errors.WrapIO(err, errors.ErrCodeWriteFailed, "failed to commit cache file", p)
	}
	return nil
}
