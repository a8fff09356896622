// Package storage defines the blob store abstraction used for the persisted
// baseline and the cropped region artifact. Implementations live in the
// local, gcs and memory subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by GetObject when no object exists at the path.
var ErrObjectNotFound = errors.New("object not found")

// BlobStore reads and writes whole objects. PutObject replaces any existing
// object at path in a single step; a concurrent GetObject observes either the
// previous or the new content, never a partial write.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}
