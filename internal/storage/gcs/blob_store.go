// Package gcs provides a cache backend backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/taxcrawl/internal/cache"
)

// PublicURLBase prefixes public object URLs.
const PublicURLBase = "https://storage.googleapis.com"

// Config captures the parameters required to use a bucket.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	// PublicRead grants allUsers read on every object written.
	PublicRead bool `mapstructure:"public_read"`
}

// BlobStore stores cache entries as objects in a bucket.
type BlobStore struct {
	client     *storage.Client
	bucket     string
	publicRead bool
}

// New creates a GCS-backed cache backend.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &BlobStore{client: client, bucket: cfg.Bucket, publicRead: cfg.PublicRead}, nil
}

// Get downloads the object for key. A missing object is reported as absent.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("open object %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, true, nil
}

// Set uploads value with metadata inferred from the key's extension.
func (s *BlobStore) Set(ctx context.Context, key string, value []byte) error {
	ct, err := cache.ContentTypeForKey(key)
	if err != nil {
		return err
	}
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = ct.Type
	w.ContentEncoding = ct.Encoding
	if s.publicRead {
		w.PredefinedACL = "publicRead"
	}
	if _, err := w.Write(value); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return fmt.Errorf("write object %s: %w (close writer: %v)", key, err, closeErr)
		}
		return fmt.Errorf("write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize object %s: %w", key, err)
	}
	return nil
}

// Delete removes the object for key if present.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// URLForKey returns the public HTTPS URL of the object.
func (s *BlobStore) URLForKey(key string) (string, bool) {
	return fmt.Sprintf("%s/%s/%s", PublicURLBase, s.bucket, key), true
}

// Description names the backend for logs.
func (s *BlobStore) Description() string {
	return "gcs bucket " + s.bucket
}
