// Package file stores engine state as a JSON or YAML document on disk.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"macsleuth/internal/codec"
	"macsleuth/internal/domain"
	"macsleuth/internal/repository"
)

// documentCodec reads and writes the state document
type documentCodec interface {
	codec.Importer
	codec.Exporter
}

// Store implements repository.StateStore on a single document file
type Store struct {
	path  string
	codec documentCodec
}

var _ repository.StateStore = (*Store)(nil)

// New creates a store for the document at path. The file is not touched
// until the first Load or Save.
func New(path string) *Store {
	return &Store{
		path:  path,
		codec: codec.NewJSONCodec(),
	}
}

// NewWithFormat creates a store using the named codec ("json" or "yaml")
func NewWithFormat(path, format string) (*Store, error) {
	c, ok := codec.ForFormat(format)
	if !ok {
		return nil, fmt.Errorf("unsupported state format %q", format)
	}
	return &Store{path: path, codec: c}, nil
}

// Path returns the document location
func (s *Store) Path() string {
	return s.path
}

// Load reads the state document. A missing file yields an empty snapshot.
// A document that cannot be read or parsed, including a path that is a
// directory or lacks permissions, yields an empty snapshot and an error
// wrapping repository.ErrCorruptState.
func (s *Store) Load(ctx context.Context) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewSnapshot(), nil
	}
	if err != nil {
		return domain.NewSnapshot(), fmt.Errorf("%w: read %s: %w", repository.ErrCorruptState, s.path, err)
	}

	snap, err := s.codec.Parse(bytes.NewReader(data))
	if err != nil {
		return domain.NewSnapshot(), fmt.Errorf("%w: %s: %w", repository.ErrCorruptState, s.path, err)
	}

	return snap, nil
}

// Save writes the document to a temporary sibling, syncs it and renames it
// over the previous one.
func (s *Store) Save(ctx context.Context, snap *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := s.codec.Export(snap, &buf); err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := writeSynced(tmp, buf.Bytes()); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace state %s: %w", s.path, err)
	}

	syncDir(dir)
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}

// syncDir makes the rename durable. Best effort; not all platforms allow
// syncing a directory.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
