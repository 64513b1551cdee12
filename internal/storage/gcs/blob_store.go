// Package gcs provides a BlobStore backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/patronemptor/titlesvc/internal/titles"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket      string
	ProjectID   string
	ContentType string
}

// BlobStore writes payloads to a configured GCS bucket under fresh keys.
type BlobStore struct {
	client *storage.Client
	idGen  titles.IDGenerator
	cfg    Config
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, idGen titles.IDGenerator, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if idGen == nil {
		return nil, fmt.Errorf("id generator is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	return &BlobStore{
		client: client,
		idGen:  idGen,
		cfg:    cfg,
	}, nil
}

// EnsureBucket creates the bucket if absent. A bucket that already exists,
// including one created concurrently, is treated as success.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	err := s.client.Bucket(s.cfg.Bucket).Create(ctx, s.cfg.ProjectID, nil)
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	return fmt.Errorf("ensure bucket %s: %w: %w", s.cfg.Bucket, titles.ErrStoreUnavailable, err)
}

// Put uploads content under a freshly generated key and returns the public
// locator for the object.
func (s *BlobStore) Put(ctx context.Context, content []byte) (string, error) {
	key, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate blob key: %w", err)
	}
	writer := s.client.Bucket(s.cfg.Bucket).Object(key).NewWriter(ctx)
	writer.ContentType = s.cfg.ContentType
	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write object: %w: %w (close writer: %w)", titles.ErrWriteFailed, err, closeErr)
		}
		return "", fmt.Errorf("write object: %w: %w", titles.ErrWriteFailed, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w: %w", titles.ErrWriteFailed, err)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.cfg.Bucket, key), nil
}
