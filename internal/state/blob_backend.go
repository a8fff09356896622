package state

import (
	"bytes"
	"context"
	"fmt"

	"github.com/JakeFAU/pagewatch/internal/storage"
)

// BlobBackend keeps the record as a single object in a storage.BlobStore.
type BlobBackend struct {
	store storage.BlobStore
	name  string
	label string
}

// NewBlobBackend stores the record under name. label is used in log lines,
// e.g. the file path or gs:// URI.
func NewBlobBackend(store storage.BlobStore, name, label string) (*BlobBackend, error) {
	if store == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if name == "" {
		return nil, fmt.Errorf("object name is required")
	}
	if label == "" {
		label = name
	}
	return &BlobBackend{store: store, name: name, label: label}, nil
}

// ReadRecord implements Backend.
func (b *BlobBackend) ReadRecord(ctx context.Context) ([]byte, error) {
	return b.store.GetObject(ctx, b.name) //nolint:wrapcheck // Store wraps with location
}

// WriteRecord implements Backend.
func (b *BlobBackend) WriteRecord(ctx context.Context, data []byte) error {
	if _, err := b.store.PutObject(ctx, b.name, "application/json; charset=utf-8", bytes.NewReader(data)); err != nil {
		return err //nolint:wrapcheck // Store wraps with location
	}
	return nil
}

// Location implements Backend.
func (b *BlobBackend) Location() string {
	return b.label
}
