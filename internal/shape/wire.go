package shape

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Serialize writes s in the fixed layout the fabric and the on-disk
// partition file both use: recID, partition count, the flattened
// (partitionID, class) pairs, vertex count, then the flattened (x,y)
// coordinate sequence. The geometry type is not carried on the wire — a
// dataset's shapes all share the type declared on the Dataset, the same
// way the on-disk partition file stores the type once in its header
// rather than per object.
func (s *Shape) Serialize(w io.Writer) error {
	if err := writeInt64(w, s.RecID); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(s.Partitions))); err != nil {
		return err
	}
	for _, pa := range s.Partitions {
		if err := writeUint32(w, uint32(pa.PartitionID)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(pa.Class)); err != nil {
			return err
		}
	}
	if err := writeUint32(w, uint32(len(s.Coordinates))); err != nil {
		return err
	}
	for _, c := range s.Coordinates {
		if err := writeFloat64(w, c.X); err != nil {
			return err
		}
		if err := writeFloat64(w, c.Y); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeShape reads the layout Serialize writes, reconstructing the
// shape as typ (the dataset-level geometry type it belongs to) and
// recomputing its MBR from the decoded coordinates.
func DeserializeShape(r io.Reader, typ GeometryType) (*Shape, error) {
	recID, err := readInt64(r)
	if err != nil {
		return nil, err
	}
	partCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	partitions := make([]PartitionAssignment, partCount)
	for i := range partitions {
		pid, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		class, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		partitions[i] = PartitionAssignment{PartitionID: int32(pid), Class: TwoLayerClass(class)}
	}
	vertCount, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	coords := make([]Point, vertCount)
	for i := range coords {
		if coords[i].X, err = readFloat64(r); err != nil {
			return nil, err
		}
		if coords[i].Y, err = readFloat64(r); err != nil {
			return nil, err
		}
	}
	s, err := New(recID, typ, coords)
	if err != nil {
		return nil, err
	}
	s.Partitions = partitions
	return s, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeInt64(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func writeFloat64(w io.Writer, v float64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	_, err := w.Write(b[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("shape: read uint32: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readInt64(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("shape: read int64: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

func readFloat64(r io.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("shape: read float64: %w", err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b[:])), nil
}
