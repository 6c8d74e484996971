// Package gcs stores audio artifacts in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"cloud.google.com/go/storage"

	"linkcast/internal/cast"
)

// Store writes artifacts as objects under an optional key prefix.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New wraps an existing GCS client.
func New(client *storage.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Connect dials GCS with ambient credentials.
func Connect(ctx context.Context, bucket, prefix string) (*Store, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return New(client, bucket, prefix), nil
}

// Put uploads the artifact and returns its gs:// URL.
func (s *Store) Put(ctx context.Context, name, contentType string, data io.Reader) (string, error) {
	key := s.key(name)
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, key), nil
}

// Open streams a stored artifact, or returns cast.ErrNotFound for a
// missing object.
func (s *Store) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.key(name)).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("audio %s: %w", name, cast.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return r, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

var _ cast.AudioStore = (*Store)(nil)
