// Package state persists the change-detection baseline.
//
// The baseline is a single record, read once at the start of a decision and
// replaced wholesale at the end of a successful or unchanged run. Backends only
// move opaque bytes; encoding and record construction live here so every
// backend stores the same document.
package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/pagewatch/internal/storage"
)

var (
	// ErrNotFound reports that no baseline has been saved yet.
	ErrNotFound = errors.New("state not found")
	// ErrCorrupt reports a baseline that exists but cannot be decoded.
	ErrCorrupt = errors.New("state corrupt")
)

// Backend reads and writes the encoded record.
type Backend interface {
	ReadRecord(ctx context.Context) ([]byte, error)
	WriteRecord(ctx context.Context, data []byte) error
	Location() string
}

// TextHasher derives the secondary message hash.
type TextHasher interface {
	Text(s string) string
}

// Clock stamps saved records.
type Clock interface {
	Now() time.Time
}

// Store loads and saves the baseline through a Backend.
type Store struct {
	backend Backend
	hasher  TextHasher
	clock   Clock
}

// New constructs a Store.
func New(backend Backend, hasher TextHasher, clock Clock) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("state backend is required")
	}
	if hasher == nil {
		return nil, fmt.Errorf("text hasher is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	return &Store{backend: backend, hasher: hasher, clock: clock}, nil
}

// Location describes where the baseline lives, for log lines.
func (s *Store) Location() string {
	return s.backend.Location()
}

// Load returns the current baseline, ErrNotFound when none exists, or an
// error wrapping ErrCorrupt when the stored bytes cannot be decoded.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	data, err := s.backend.ReadRecord(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, storage.ErrObjectNotFound) {
			return nil, fmt.Errorf("load %s: %w", s.Location(), ErrNotFound)
		}
		return nil, fmt.Errorf("load %s: %w", s.Location(), err)
	}
	record, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", s.Location(), ErrCorrupt, err)
	}
	return &record, nil
}

// Save replaces the baseline with a record built from the given values.
func (s *Store) Save(ctx context.Context, alertText, dateText, fingerprint string) (Record, error) {
	if fingerprint == "" {
		return Record{}, fmt.Errorf("save state: fingerprint is required")
	}
	record := Record{
		MessageHash: s.hasher.Text(alertText),
		AlertText:   alertText,
		UpdateDate:  dateText,
		Fingerprint: fingerprint,
		SavedAt:     Timestamp{Time: s.clock.Now()},
	}
	data, err := record.Encode()
	if err != nil {
		return Record{}, err
	}
	if err := s.backend.WriteRecord(ctx, data); err != nil {
		return Record{}, fmt.Errorf("save %s: %w", s.Location(), err)
	}
	return record, nil
}
