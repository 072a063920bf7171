package cache

import (
	"fmt"
	"os"
	"path/filepath"
)

// Storage is the durable key/value medium behind a Namespace. A location names
// one blob.
//
// Read must return an error matching fs.ErrNotExist when the blob is absent.
// Write must replace the blob so that a reader sees either the old or the new
// content, never a partial write.
type Storage interface {
	Read(location string) ([]byte, error)
	Write(location string, data []byte) error
}

var _ Storage = (*FileStorage)(nil)

// FileStorage keeps each blob in its own file. Relative locations are resolved
// against Dir.
type FileStorage struct {
	Dir string
}

// NewFileStorage returns a FileStorage rooted at dir.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{Dir: dir}
}

// Path resolves a location to a file path.
func (s *FileStorage) Path(location string) string {
	if filepath.IsAbs(location) || s.Dir == "" {
		return filepath.Clean(location)
	}
	return filepath.Join(s.Dir, location)
}

// Read returns the file content.
func (s *FileStorage) Read(location string) ([]byte, error) {
	return os.ReadFile(s.Path(location))
}

// Write stores data in a temporary file next to the target, then renames it
// over the target.
func (s *FileStorage) Write(location string, data []byte) error {
	path := s.Path(location)
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp cache file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close cache file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o600); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod cache file: %w", err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}
