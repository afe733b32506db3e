package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

// LocalStorage implements ObjectStorage for a local directory.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates a new local storage adapter.
func NewLocalStorage(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// List returns all location list files below the base directory.
func (s *LocalStorage) List(ctx context.Context) ([]output.StorageObject, error) {
	var objects []output.StorageObject

	err := filepath.WalkDir(s.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !output.IsLocationFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(s.basePath, path)
		if err != nil {
			return err
		}

		objects = append(objects, output.StorageObject{
			Key:          filepath.ToSlash(relPath),
			Size:         info.Size(),
			LastModified: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFoundErr("local", "list", "", err)
		}
		return nil, storageErr("local", "list", "", err)
	}

	return objects, nil
}

// Download copies a file to the destination.
func (s *LocalStorage) Download(ctx context.Context, key string, dest string) error {
	srcPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if srcPath == dest {
		return nil
	}

	src, err := s.open(key, srcPath, "download")
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return storageErr("local", "download", key, err)
	}
	dst, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return storageErr("local", "download", key, err)
	}
	defer func() { _ = dst.Close() }()

	if _, err := io.Copy(dst, src); err != nil {
		return storageErr("local", "download", key, err)
	}
	return nil
}

// GetReader returns a reader for the given file.
func (s *LocalStorage) GetReader(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	return s.open(key, path, "read")
}

// Exists checks if a file exists.
func (s *LocalStorage) Exists(_ context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, storageErr("local", "stat", key, err)
	}
}

// FullPath returns the full path for a key.
func (s *LocalStorage) FullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// KeyFor converts a path below the base directory back to a storage key.
func (s *LocalStorage) KeyFor(path string) (string, error) {
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s is outside %s: %w", path, s.basePath, domain.ErrInvalidInput)
	}
	return filepath.ToSlash(rel), nil
}

// resolve maps a key to a path and refuses keys that escape the base directory.
func (s *LocalStorage) resolve(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("key %q: %w", key, domain.ErrInvalidInput)
	}
	return filepath.Join(s.basePath, clean), nil
}

func (s *LocalStorage) open(key, path, op string) (*os.File, error) {
	f, err := os.Open(path) //#nosec G304 -- path is resolved below basePath
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFoundErr("local", op, key, err)
		}
		return nil, storageErr("local", op, key, err)
	}
	return f, nil
}
