package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-composite/pkg/composite"
)

// Store is a filesystem implementation of composite.SnapshotStore. Every
// snapshot is one file under BaseDir; writes go through a temporary file and
// a rename so readers never see a partial snapshot.
type Store struct {
	baseDir string
}

// Config options for the filesystem snapshot store
type Config struct {
	BaseDir string // Base directory for storing snapshots
}

var _ composite.SnapshotStore = (*Store)(nil)

// New creates a new filesystem snapshot store
func New(config Config) (*Store, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{baseDir: config.BaseDir}, nil
}

func (s *Store) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if key == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", &composite.StorageError{Backend: "fs", Key: key, Op: "resolve", Err: errors.New("key escapes base directory")}
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Put writes data under key
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	// Create directory structure if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return &composite.StorageError{Backend: "fs", Key: key, Op: "put", Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(filePath), ".snapshot-*")
	if err != nil {
		return &composite.StorageError{Backend: "fs", Key: key, Op: "put", Err: err}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &composite.StorageError{Backend: "fs", Key: key, Op: "put", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &composite.StorageError{Backend: "fs", Key: key, Op: "put", Err: err}
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return &composite.StorageError{Backend: "fs", Key: key, Op: "put", Err: err}
	}
	return nil
}

// Get reads the snapshot stored under key
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	filePath, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", composite.ErrSnapshotNotFound, key)
	}
	if err != nil {
		return nil, &composite.StorageError{Backend: "fs", Key: key, Op: "get", Err: err}
	}
	return data, nil
}

// Delete removes key. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	filePath, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return &composite.StorageError{Backend: "fs", Key: key, Op: "delete", Err: err}
	}
	return nil
}

// Exists reports whether key holds a snapshot
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	filePath, err := s.path(key)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(filePath)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &composite.StorageError{Backend: "fs", Key: key, Op: "exists", Err: err}
	}
	return true, nil
}
