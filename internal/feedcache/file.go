package feedcache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
)

// FileStore keeps one file per key under Dir.
type FileStore struct {
	Dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (fs *FileStore) path(key string) string {
	return filepath.Join(fs.Dir, url.PathEscape(key)+".json")
}

func (fs *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	b, err := os.ReadFile(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

// Set writes to a temp file and renames it so readers never see a torn
// record.
func (fs *FileStore) Set(_ context.Context, key string, value []byte) error {
	f, err := os.CreateTemp(fs.Dir, "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	if _, err := f.Write(value); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, fs.path(key))
}

func (fs *FileStore) Delete(_ context.Context, key string) error {
	err := os.Remove(fs.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
