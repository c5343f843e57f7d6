package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/arxgeo/geodist/internal/dberr"
)

// LocalBackend stores partition files as plain files under basePath,
// keyed by a slash-separated key that becomes a nested relative path.
type LocalBackend struct {
	basePath string
}

// NewLocalBackend creates basePath if needed and returns a backend
// rooted at it.
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "resolve storage base path", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "create storage base path", err)
	}
	return &LocalBackend{basePath: abs}, nil
}

func (l *LocalBackend) Type() string { return "local" }

func (l *LocalBackend) path(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

func (l *LocalBackend) PutReader(ctx context.Context, key string, r io.Reader) error {
	p := l.path(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "create partition directory", err)
	}
	f, err := os.Create(p)
	if err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "create partition file "+key, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "write partition file "+key, err)
	}
	return nil
}

func (l *LocalBackend) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(l.path(key))
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "open partition file "+key, err)
	}
	return f, nil
}

func (l *LocalBackend) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(l.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, dberr.Wrap(dberr.CodeFilesystem, "stat partition file "+key, err)
}

func (l *LocalBackend) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return dberr.Wrap(dberr.CodeFilesystem, "delete partition file "+key, err)
	}
	return nil
}

// OpenForPatch opens key for in-place read-write access, used by
// WritePartitionFile to seek back and patch the object count header
// once every record has been written. Only LocalBackend can do this
// cheaply; object-store backends buffer instead (see partitionfile.go).
func (l *LocalBackend) OpenForPatch(key string) (*os.File, error) {
	f, err := os.OpenFile(l.path(key), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeFilesystem, "open partition file for patch "+key, err)
	}
	return f, nil
}
