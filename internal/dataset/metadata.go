package dataset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/arxgeo/geodist/internal/shape"
)

// FileType names the on-disk source format a dataset was loaded from,
// carried alongside DataType in the metadata broadcast so a worker's
// loader knows how to re-read Path if it needs to reload from source
// rather than from an already-written partition file.
type FileType int

const (
	FileTypeCSV FileType = iota
	FileTypeWKT
	FileTypeBinary // a prior run's persisted partition file
)

// Metadata is the broadcast unit describing one dataset, sent from the
// driver to the host and then on to every worker ahead of the batches
// themselves.
type Metadata struct {
	InternalID string
	DataType   Type
	FileType   FileType
	Path       string
	Persist    bool

	HaveBounds bool
	Dataspace  shape.MBR
}

// Serialize writes m as: persist bool, internal id (length-prefixed),
// data type, file type, length-prefixed path, a bounds-present flag, and
// the dataspace MBR's four doubles when bounds are present.
func (m Metadata) Serialize(w io.Writer) error {
	if err := writeBool(w, m.Persist); err != nil {
		return err
	}
	if err := writeString(w, m.InternalID); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.DataType)); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(m.FileType)); err != nil {
		return err
	}
	if err := writeString(w, m.Path); err != nil {
		return err
	}
	if err := writeBool(w, m.HaveBounds); err != nil {
		return err
	}
	if !m.HaveBounds {
		return nil
	}
	for _, v := range []float64{m.Dataspace.MinX, m.Dataspace.MinY, m.Dataspace.MaxX, m.Dataspace.MaxY} {
		if err := writeFloat64(w, v); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeMetadata reads the layout Serialize writes.
func DeserializeMetadata(r io.Reader) (Metadata, error) {
	var m Metadata
	var err error
	if m.Persist, err = readBool(r); err != nil {
		return Metadata{}, err
	}
	if m.InternalID, err = readString(r); err != nil {
		return Metadata{}, err
	}
	dt, err := readUint32(r)
	if err != nil {
		return Metadata{}, err
	}
	m.DataType = Type(dt)
	ft, err := readUint32(r)
	if err != nil {
		return Metadata{}, err
	}
	m.FileType = FileType(ft)
	if m.Path, err = readString(r); err != nil {
		return Metadata{}, err
	}
	if m.HaveBounds, err = readBool(r); err != nil {
		return Metadata{}, err
	}
	if !m.HaveBounds {
		return m, nil
	}
	vals := make([]float64, 4)
	for i := range vals {
		if vals[i], err = readFloat64(r); err != nil {
			return Metadata{}, err
		}
	}
	m.Dataspace = shape.MBR{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	return m, nil
}

func writeBool(w io.Writer, b bool) error {
	v := byte(0)
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, fmt.Errorf("dataset: read bool: %w", err)
	}
	return b[0] != 0, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("dataset: read uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeFloat64(w io.Writer, v float64) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readFloat64(r io.Reader) (float64, error) {
	var v float64
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, fmt.Errorf("dataset: read float64: %w", err)
	}
	return v, nil
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("dataset: read string: %w", err)
	}
	return string(buf), nil
}
