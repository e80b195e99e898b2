package storage_test

import (
	"context"
	"io"
	"testing"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/storage"
)

type mockStorage struct{}

func (m *mockStorage) Put(_ context.Context, _ string, _ io.Reader, _ string) (*storage.UploadResult, error) {
	return nil, nil
}
func (m *mockStorage) Get(_ context.Context, _ string) (*storage.Object, error) { return nil, nil }
func (m *mockStorage) Exists(_ context.Context, _ string) (bool, error)         { return false, nil }
func (m *mockStorage) Delete(_ context.Context, _ string) error                 { return nil }

func TestRegister_AddsFactory(t *testing.T) {
	storage.Register("test-backend", func(_ *config.StorageConfig) (storage.Storage, error) {
		return &mockStorage{}, nil
	})

	s, err := storage.NewStorage(&config.StorageConfig{DefaultBackend: "test-backend"})
	if err != nil {
		t.Fatalf("NewStorage() error: %v", err)
	}
	if s == nil {
		t.Fatal("NewStorage() returned nil")
	}

	found := false
	for _, name := range storage.Backends() {
		if name == "test-backend" {
			found = true
		}
	}
	if !found {
		t.Errorf("Backends() = %v, want it to contain test-backend", storage.Backends())
	}
}

func TestNewStorage_UnknownBackend(t *testing.T) {
	_, err := storage.NewStorage(&config.StorageConfig{DefaultBackend: "completely-unknown-backend"})
	if err == nil {
		t.Error("NewStorage() = nil error, want error for unregistered backend")
	}
}

func TestNewStorage_EmptyBackend(t *testing.T) {
	_, err := storage.NewStorage(&config.StorageConfig{})
	if err == nil {
		t.Error("NewStorage() = nil error, want error for empty backend name")
	}
}
