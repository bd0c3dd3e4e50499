// Package gcs provides an object store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
}

// Store writes capture artifacts to a configured GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
}

// New creates a GCS-backed object store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// Put uploads the file at srcPath to the named object and reports whether
// an existing object was overwritten.
func (s *Store) Put(ctx context.Context, name, srcPath string) (bool, error) {
	if strings.TrimSpace(name) == "" {
		return false, fmt.Errorf("object name is required")
	}

	obj := s.client.Bucket(s.bucket).Object(name)
	existed := true
	if _, err := obj.Attrs(ctx); err != nil {
		if !errors.Is(err, storage.ErrObjectNotExist) {
			return false, fmt.Errorf("stat object %s: %w", name, err)
		}
		existed = false
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return false, fmt.Errorf("open artifact: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	writer := obj.NewWriter(ctx)
	writer.ContentType = contentTypeFor(name)
	if _, err := io.Copy(writer, f); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return false, fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return false, fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return false, fmt.Errorf("close writer: %w", err)
	}
	return existed, nil
}

// SignedURL returns a time-limited download URL for the named object.
// The V2 scheme is used so the expiration surfaces as an Expires query
// parameter callers can read back.
func (s *Store) SignedURL(_ context.Context, name string, expiry time.Duration) (string, error) {
	u, err := s.client.Bucket(s.bucket).SignedURL(name, &storage.SignedURLOptions{
		Method:  "GET",
		Expires: time.Now().Add(expiry),
		Scheme:  storage.SigningSchemeV2,
	})
	if err != nil {
		return "", fmt.Errorf("sign url for %s: %w", name, err)
	}
	return u, nil
}

// Delete removes the named object. A missing object is not an error, so
// repeated cleanup of the same archive stays idempotent.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.Bucket(s.bucket).Object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

func contentTypeFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".wacz"):
		return "application/zip"
	case strings.HasSuffix(name, ".png"):
		return "image/png"
	case strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"):
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
