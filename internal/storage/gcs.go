package storage

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/arxgeo/geodist/internal/dberr"
)

// GCSBackend stores partition files as objects in one GCS bucket.
type GCSBackend struct {
	client *storage.Client
	bucket *storage.BucketHandle
}

// NewGCSBackend dials GCS using application default credentials.
func NewGCSBackend(ctx context.Context, bucketName string) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "dial gcs", err)
	}
	return &GCSBackend{client: client, bucket: client.Bucket(bucketName)}, nil
}

func (b *GCSBackend) Type() string { return "gcs" }

func (b *GCSBackend) PutReader(ctx context.Context, key string, r io.Reader) error {
	w := b.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return dberr.Wrap(dberr.CodeFilesystem, "gcs write "+key, err)
	}
	if err := w.Close(); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "gcs finalize "+key, err)
	}
	return nil
}

func (b *GCSBackend) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.bucket.Object(key).NewReader(ctx)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "gcs read "+key, err)
	}
	return r, nil
}

func (b *GCSBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.bucket.Object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, dberr.Wrap(dberr.CodeFilesystem, "gcs stat "+key, err)
}

func (b *GCSBackend) Delete(ctx context.Context, key string) error {
	if err := b.bucket.Object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return dberr.Wrap(dberr.CodeFilesystem, "gcs delete "+key, err)
	}
	return nil
}
