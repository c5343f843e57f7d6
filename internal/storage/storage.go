// Package storage persists partition files to a pluggable backend.
// The on-disk layout is a header carrying the dataset's Metadata,
// followed by every object's record, followed by a
// seek-back patch of the final count); this package implements that
// layout once, over a Backend interface local disk, S3, Azure Blob, or
// GCS can all satisfy.
package storage

import (
	"context"
	"io"
)

// Backend is the minimal object-store surface a partition-file writer
// needs: stream a blob in, stream a blob back out, and answer whether it
// exists. No metadata/listing operations, because nothing in this
// domain lists partition files by prefix or needs per-object
// content-type metadata — every read is a direct key lookup by dataset
// id and partition id.
type Backend interface {
	PutReader(ctx context.Context, key string, r io.Reader) error
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	Type() string
}

// WriteSeeker is satisfied by backends whose PutReader destination can be
// patched in place after the fact (the local filesystem). Backends that
// can't seek an in-flight upload (every object-store backend here)
// buffer the whole partition file in memory before the single PutReader
// call instead; see partitionfile.go.
type WriteSeeker interface {
	io.Writer
	io.Seeker
}
