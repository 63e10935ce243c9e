package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore keeps the document in a single file on disk. It is the default
// backend: best-effort local persistence with no external moving parts.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path. Missing parent directories
// are created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the document file. A missing file means no saved state.
func (s *FileStore) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", s.path, err)
	}
	return data, true, nil
}

// Save writes the document file.
func (s *FileStore) Save(ctx context.Context, data []byte) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }
