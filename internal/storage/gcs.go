package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/japanesestudent/listening-service/internal/apperrors"
	"github.com/japanesestudent/listening-service/internal/config"
	"google.golang.org/api/option"
)

// gcsStore keeps objects in a Google Cloud Storage bucket
type gcsStore struct {
	client          *gcs.Client
	bucket          string
	publicBaseURL   string
	signedURLExpiry time.Duration
}

// NewGCSStore connects to GCS and checks that the configured bucket is reachable
func NewGCSStore(ctx context.Context, cfg config.StorageConfig) (*gcsStore, error) {
	opts := []option.ClientOption{option.WithScopes(gcs.ScopeReadWrite)}
	if cfg.GCSCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.GCSCredentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	if _, err := client.Bucket(cfg.GCSBucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.GCSBucket, err)
	}

	return &gcsStore{
		client:          client,
		bucket:          cfg.GCSBucket,
		publicBaseURL:   cfg.GCSPublicBaseURL,
		signedURLExpiry: cfg.SignedURLExpiry,
	}, nil
}

func (s *gcsStore) Name() string {
	return "gcs"
}

// Put uploads the object, closing the writer commits it
func (s *gcsStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}
	if err := w.Close(); err != nil {
		return "", &apperrors.StorageError{Op: "put", Key: key, Err: err}
	}

	url, err := s.url(key)
	if err != nil {
		// the caller never learns the key, remove the committed object
		_ = s.client.Bucket(s.bucket).Object(key).Delete(context.WithoutCancel(ctx))
		return "", &apperrors.StorageError{Op: "sign", Key: key, Err: err}
	}
	return url, nil
}

// url returns the public URL of key, or a signed GET URL when no public base is configured
func (s *gcsStore) url(key string) (string, error) {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key, nil
	}
	return s.client.Bucket(s.bucket).SignedURL(key, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(s.signedURLExpiry),
	})
}

// Delete removes the object, a missing object counts as deleted
func (s *gcsStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return &apperrors.StorageError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (s *gcsStore) Close() error {
	return s.client.Close()
}
