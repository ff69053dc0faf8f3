// Package fs provides a file system-based key-value store for questauth.
//
// Each key is kept in its own JSON file under one directory. Files are
// written atomically with owner-only permissions.
package fs

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
)

// FileStore stores values as files in a directory.
type FileStore struct {
	mu  sync.RWMutex
	dir string
}

// NewFileStore creates a FileStore rooted at dir.
// If dir is empty, defaults to <user config dir>/questauth.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("could not determine config directory: %w", err)
			}
			configDir = filepath.Join(home, ".config")
		}
		dir = filepath.Join(configDir, "questauth")
	}

	// Restricted permissions: the directory holds bearer tokens
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to
func (s *FileStore) Dir() string {
	return s.dir
}

// Path returns the file a key is stored in
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, fileName(key))
}

func fileName(key string) string {
	return url.PathEscape(key) + ".json"
}

// Get reads the value for key. Returns nil, nil if the file does not exist.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.Path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Set writes value for key, replacing the previous file atomically.
func (s *FileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeAtomicFile(s.Path(key), value, 0600)
}

// Delete removes the file for key.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}
