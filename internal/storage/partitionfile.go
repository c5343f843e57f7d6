package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// WritePartitionFile persists one partition file: a 4-byte object count
// placeholder, the dataset's Metadata, then every shape's record in
// insertion order, finishing with a seek-back patch of the real count
// (original_source/storage/write.cpp's three-phase write — the count is
// unknown until every record has been streamed, so the header reserves
// space for it up front rather than buffering the whole file to count
// first).
//
// LocalBackend can patch its own output file in place; every other
// backend here uploads in a single PutReader call with no mid-stream
// seek, so for those the whole file is built in memory before the one
// upload (acceptable for partition files, which are bounded by the
// partitioning grid's per-cell share of one batch).
func WritePartitionFile(ctx context.Context, backend Backend, key string, meta dataset.Metadata, shapes []*shape.Shape) error {
	if local, ok := backend.(*LocalBackend); ok {
		return writePartitionFileLocal(local, key, meta, shapes)
	}

	var buf bytes.Buffer
	if err := writePartitionBody(&buf, meta, shapes); err != nil {
		return err
	}
	patchCount(buf.Bytes(), uint32(len(shapes)))
	return backend.PutReader(ctx, key, &buf)
}

func writePartitionFileLocal(l *LocalBackend, key string, meta dataset.Metadata, shapes []*shape.Shape) error {
	f, err := l.OpenForPatch(key)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Truncate(0); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "truncate partition file "+key, err)
	}
	if err := writePartitionBody(f, meta, shapes); err != nil {
		return err
	}

	var countBuf [4]byte
	binary.LittleEndian.PutUint32(countBuf[:], uint32(len(shapes)))
	if _, err := f.WriteAt(countBuf[:], 0); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "patch object count in "+key, err)
	}
	return nil
}

func writePartitionBody(w io.Writer, meta dataset.Metadata, shapes []*shape.Shape) error {
	var placeholder [4]byte
	if _, err := w.Write(placeholder[:]); err != nil {
		return dberr.Wrap(dberr.CodeFilesystem, "write object count placeholder", err)
	}
	if err := meta.Serialize(w); err != nil {
		return err
	}
	for _, s := range shapes {
		if err := s.Serialize(w); err != nil {
			return err
		}
	}
	return nil
}

func patchCount(body []byte, count uint32) {
	binary.LittleEndian.PutUint32(body[:4], count)
}

// ReadPartitionFile reads back what WritePartitionFile wrote: the
// object count, the dataset Metadata, then that many shape records
// (deserialized as geomType, the caller's declared dataset type, since
// the format does not repeat the type per shape).
func ReadPartitionFile(ctx context.Context, backend Backend, key string, geomType shape.GeometryType) (dataset.Metadata, []*shape.Shape, error) {
	r, err := backend.GetReader(ctx, key)
	if err != nil {
		return dataset.Metadata{}, nil, err
	}
	defer r.Close()

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return dataset.Metadata{}, nil, dberr.Wrap(dberr.CodeSerialization, "read object count", err)
	}
	count := binary.LittleEndian.Uint32(countBuf[:])

	meta, err := dataset.DeserializeMetadata(r)
	if err != nil {
		return dataset.Metadata{}, nil, err
	}

	shapes := make([]*shape.Shape, count)
	for i := range shapes {
		shapes[i], err = shape.DeserializeShape(r, geomType)
		if err != nil {
			return dataset.Metadata{}, nil, err
		}
	}
	return meta, shapes, nil
}
