// Package s3 provides a cache backend on any S3-compatible object store.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/JakeFAU/taxcrawl/internal/cache"
)

// Config captures connection parameters for the object store.
type Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	// PublicRead sends a public-read canned ACL with every upload.
	PublicRead bool `mapstructure:"public_read"`
	// PublicURL overrides the base of URLs returned by URLForKey.
	PublicURL string `mapstructure:"public_url"`
}

// BlobStore stores cache entries as objects.
type BlobStore struct {
	client     *minio.Client
	bucket     string
	publicRead bool
	urlBase    string
}

// NewClient builds a minio client from cfg.
func NewClient(cfg Config) (*minio.Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	return client, nil
}

// New creates an S3-backed cache backend.
func New(client *minio.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	base := strings.TrimSuffix(cfg.PublicURL, "/")
	if base == "" {
		base = strings.TrimSuffix(client.EndpointURL().String(), "/") + "/" + cfg.Bucket
	}
	return &BlobStore{
		client:     client,
		bucket:     cfg.Bucket,
		publicRead: cfg.PublicRead,
		urlBase:    base,
	}, nil
}

// Get downloads the object for key. NoSuchKey is reported as absent.
func (s *BlobStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return missingOrError(key, err)
	}
	defer func() { _ = obj.Close() }()
	data, err := io.ReadAll(obj)
	if err != nil {
		return missingOrError(key, err)
	}
	return data, true, nil
}

func missingOrError(key string, err error) ([]byte, bool, error) {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil, false, nil
	}
	return nil, false, fmt.Errorf("get object %s: %w", key, err)
}

// Set uploads value with metadata inferred from the key's extension.
func (s *BlobStore) Set(ctx context.Context, key string, value []byte) error {
	ct, err := cache.ContentTypeForKey(key)
	if err != nil {
		return err
	}
	opts := minio.PutObjectOptions{
		ContentType:     ct.Type,
		ContentEncoding: ct.Encoding,
	}
	if s.publicRead {
		opts.UserMetadata = map[string]string{"x-amz-acl": "public-read"}
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(value), int64(len(value)), opts)
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	if info.Size != int64(len(value)) {
		return fmt.Errorf("put object %s: uploaded %d of %d bytes", key, info.Size, len(value))
	}
	return nil
}

// Delete removes the object for key.
func (s *BlobStore) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// URLForKey returns the object's URL under the configured public base.
func (s *BlobStore) URLForKey(key string) (string, bool) {
	return s.urlBase + "/" + key, true
}

// Description names the backend for logs.
func (s *BlobStore) Description() string {
	return "s3 bucket " + s.bucket
}
