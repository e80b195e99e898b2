package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/storage"
	"github.com/assessment-platform/assessment-api/pkg/checksum"
)

func newTestStorage(t *testing.T) *LocalStorage {
	t.Helper()
	s, err := New(&config.LocalStorageConfig{BasePath: t.TempDir()})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	if _, err := New(&config.LocalStorageConfig{BasePath: dir}); err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("base directory not created: %v", err)
	}
}

func TestNew_RequiresBasePath(t *testing.T) {
	if _, err := New(&config.LocalStorageConfig{}); err == nil {
		t.Error("New() = nil error, want error for empty base path")
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	data := []byte(`{"profile":"builder"}`)

	res, err := s.Put(ctx, "results/org/sess/r1.json", bytes.NewReader(data), "application/json")
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}
	if res.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", res.Size, len(data))
	}
	if res.Checksum != checksum.Bytes(data) {
		t.Errorf("Checksum = %q, want %q", res.Checksum, checksum.Bytes(data))
	}

	obj, err := s.Get(ctx, "results/org/sess/r1.json")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer obj.Body.Close()
	got, _ := io.ReadAll(obj.Body)
	if !bytes.Equal(got, data) {
		t.Errorf("Get() body = %q, want %q", got, data)
	}
	if obj.Checksum != res.Checksum {
		t.Errorf("Get() checksum = %q, want %q", obj.Checksum, res.Checksum)
	}
}

func TestPut_OverwritesExisting(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "k.json", bytes.NewReader([]byte("one")), "")
	_, _ = s.Put(ctx, "k.json", bytes.NewReader([]byte("two")), "")

	obj, err := s.Get(ctx, "k.json")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer obj.Body.Close()
	got, _ := io.ReadAll(obj.Body)
	if string(got) != "two" {
		t.Errorf("body = %q, want two", got)
	}
	if obj.Checksum != checksum.Bytes([]byte("two")) {
		t.Error("checksum sidecar not refreshed")
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.Get(context.Background(), "missing.json")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestKeysCannotEscapeBasePath(t *testing.T) {
	s := newTestStorage(t)
	for _, key := range []string{"../outside.json", "a/../../outside.json", ""} {
		if _, err := s.Put(context.Background(), key, bytes.NewReader(nil), ""); err == nil {
			t.Errorf("Put(%q) = nil error, want rejection", key)
		}
	}
}

func TestExists(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "a/b.json")
	if err != nil || ok {
		t.Fatalf("Exists() before put = %v, %v; want false, nil", ok, err)
	}
	_, _ = s.Put(ctx, "a/b.json", bytes.NewReader([]byte("x")), "")
	ok, err = s.Exists(ctx, "a/b.json")
	if err != nil || !ok {
		t.Errorf("Exists() after put = %v, %v; want true, nil", ok, err)
	}
}

func TestDelete_CleansUpEmptyParentDirs(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	_, _ = s.Put(ctx, "deep/nested/file.json", bytes.NewReader([]byte("x")), "")

	if err := s.Delete(ctx, "deep/nested/file.json"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "deep")); !os.IsNotExist(err) {
		t.Error("empty parent directories should be removed")
	}
	if _, err := os.Stat(s.basePath); err != nil {
		t.Error("base path must survive cleanup")
	}
}

func TestDelete_NonExistentFile(t *testing.T) {
	s := newTestStorage(t)
	if err := s.Delete(context.Background(), "never/existed.json"); err != nil {
		t.Errorf("Delete() of missing key error: %v", err)
	}
}
