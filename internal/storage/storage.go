// Package storage persists uploaded media and resolves it to public URLs
package storage

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/japanesestudent/listening-service/internal/config"
	"go.uber.org/zap"
)

// KeyPrefix is the folder every audio object is stored under
const KeyPrefix = "audio/"

var keyPattern = regexp.MustCompile(`audio/[^?]+`)

// GenerateKey builds a unique storage key keeping the extension of the original filename
func GenerateKey(filename string) string {
	return KeyPrefix + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

// KeyFromURL extracts the storage key from a stored audio URL.
// Returns an empty string if the URL does not point into the audio folder.
func KeyFromURL(url string) string {
	return keyPattern.FindString(url)
}

// New creates the store selected by cfg.Backend.
// Returns an error for an unknown backend or an unusable bucket.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*Store, error) {
	switch cfg.Backend {
	case config.StorageBackendLocal:
		local, err := NewLocalStore(cfg.UploadDir, cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("media store initialized", zap.String("backend", cfg.Backend), zap.String("upload_dir", cfg.UploadDir))
		return &Store{backend: local}, nil
	case config.StorageBackendGCS:
		gcs, err := NewGCSStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("media store initialized", zap.String("backend", cfg.Backend), zap.String("bucket", cfg.GCSBucket))
		return &Store{backend: gcs}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// backend is implemented by the local and GCS stores
type backend interface {
	Name() string
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store is the media store chosen once at startup
type Store struct {
	backend backend
}

// Backend returns the name of the active backend
func (s *Store) Backend() string {
	return s.backend.Name()
}

// Put stores data under key and returns its public URL.
// The object is fully written when Put returns without error.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return s.backend.Put(ctx, key, data, contentType)
}

// Delete removes the object under key, a missing object is not an error
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.backend.Delete(ctx, key)
}

// Close releases backend resources
func (s *Store) Close() error {
	return s.backend.Close()
}
