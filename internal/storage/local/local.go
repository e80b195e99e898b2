// Package local implements the filesystem storage backend. It is meant for
// development and single-node deployments; several API instances would need
// a shared filesystem to see each other's snapshots.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/storage"
	"github.com/assessment-platform/assessment-api/pkg/checksum"
)

// checksumSuffix names the sidecar file holding an object's SHA-256.
const checksumSuffix = ".sha256"

func init() {
	storage.Register("local", func(cfg *config.StorageConfig) (storage.Storage, error) {
		return New(&cfg.Local)
	})
}

// LocalStorage stores objects as files under a base directory.
type LocalStorage struct {
	basePath string
}

// New creates the base directory if needed.
func New(cfg *config.LocalStorageConfig) (*LocalStorage, error) {
	if cfg.BasePath == "" {
		return nil, fmt.Errorf("local storage base path is required")
	}
	if err := os.MkdirAll(cfg.BasePath, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: filepath.Clean(cfg.BasePath)}, nil
}

// resolve maps a key to a path inside basePath, rejecting keys that escape it.
func (s *LocalStorage) resolve(key string) (string, error) {
	full := filepath.Join(s.basePath, filepath.FromSlash(key))
	if full == s.basePath || !strings.HasPrefix(full, s.basePath+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage key: %q", key)
	}
	return full, nil
}

// Put writes the object and its checksum sidecar.
func (s *LocalStorage) Put(ctx context.Context, key string, reader io.Reader, contentType string) (*storage.UploadResult, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read data: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(full), 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0640); err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	sum := checksum.Bytes(data)
	if err := os.WriteFile(full+checksumSuffix, []byte(sum), 0640); err != nil {
		return nil, fmt.Errorf("failed to write checksum: %w", err)
	}
	return &storage.UploadResult{Key: key, Size: int64(len(data)), Checksum: sum}, nil
}

// Get opens the file. A missing sidecar leaves Checksum empty.
func (s *LocalStorage) Get(ctx context.Context, key string) (*storage.Object, error) {
	full, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	obj := &storage.Object{Body: file}
	if sum, err := os.ReadFile(full + checksumSuffix); err == nil {
		obj.Checksum = string(bytes.TrimSpace(sum))
	}
	return obj, nil
}

// Exists checks whether the file is present.
func (s *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	full, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// Delete removes the file, its sidecar and any parent directories left empty.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	full, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	_ = os.Remove(full + checksumSuffix)

	for dir := filepath.Dir(full); dir != s.basePath; dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			break
		}
	}
	return nil
}
