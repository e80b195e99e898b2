// Package storage defines the object store used for archived result snapshots.
//
// Backends register themselves with the factory from an init() function in
// their own package:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.StorageConfig) (storage.Storage, error) {
//	        return New(&cfg.MyBackend)
//	    })
//	}
//
// cmd/server imports each backend with a blank import to trigger init().
package storage

import (
	"context"
	"errors"
	"io"
)

// MetadataChecksumKey is the object metadata key holding the hex SHA-256 of the body.
const MetadataChecksumKey = "sha256"

// ErrNotFound is returned by Get when no object exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// Storage is a flat key/value object store.
type Storage interface {
	// Put stores the reader's content under key and records its checksum.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) (*UploadResult, error)

	// Get opens the object stored under key. Callers must close Body.
	Get(ctx context.Context, key string) (*Object, error)

	// Exists reports whether an object is stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// UploadResult describes a stored object.
type UploadResult struct {
	Key      string
	Size     int64
	Checksum string
}

// Object is an opened stored object.
type Object struct {
	Body io.ReadCloser
	// Checksum is the SHA-256 recorded at upload time, empty when the backend keeps none.
	Checksum string
}
