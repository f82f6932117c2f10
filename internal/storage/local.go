package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/japanesestudent/listening-service/internal/apperrors"
)

// UploadsPath is the URL prefix the API serves local objects under
const UploadsPath = "/uploads/"

// localStore keeps objects on the local filesystem
type localStore struct {
	baseDir string
	baseURL string
}

// NewLocalStore creates a local store rooted at baseDir, creating the directory if needed
func NewLocalStore(baseDir, baseURL string) (*localStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("upload directory is required")
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &localStore{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *localStore) Name() string {
	return "local"
}

// pathFor maps a key to a file path below baseDir
func (s *localStore) pathFor(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Put writes the object and flushes it to disk before returning its URL
func (s *localStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	fullPath, err := s.pathFor(key)
	if err != nil {
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}

	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(fullPath)
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(fullPath)
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}
	if err := file.Close(); err != nil {
		os.Remove(fullPath)
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}

	return s.baseURL + UploadsPath + key, nil
}

// Delete removes the file, a missing file counts as deleted
func (s *localStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.pathFor(key)
	if err != nil {
		return &apperrors.StorageError{Op: "delete", Key: key, Err: err}
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &apperrors.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *localStore) Close() error {
	return nil
}
