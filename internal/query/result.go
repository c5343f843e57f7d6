package query

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/arxgeo/geodist/internal/dberr"
)

// Result is the common surface every QResultBase variant implements:
// mergeResults, serialize, getResultCount, and getQueryType.
// Type-specific addResult methods (IdSet.Add, IdPairSet.Add,
// TopologyHistogram.Add, KNNHeap.Offer) live
// on the concrete types since their argument shapes differ by kind —
// Go's type system does not let a single interface method cover
// "add a recID" and "add a (recID,recID) pair" uniformly, and forcing a
// shared signature (e.g. variadic int64) would obscure each kind's
// actual invariant instead of expressing it.
type Result interface {
	Merge(other Result) error
	Serialize() ([]byte, error)
	Count() int
	QueryType() Type
}

// resultTag is the leading byte of every serialized Result, letting
// Deserialize pick the concrete kind without an out-of-band type hint.
type resultTag byte

const (
	tagIdSet resultTag = iota
	tagIdPairSet
	tagTopologyHistogram
	tagKNNHeap
)

// Deserialize reconstructs whichever Result kind data was serialized
// from. Returns DBERR_SERIALIZATION on a truncated or unrecognized
// buffer.
func Deserialize(data []byte) (Result, error) {
	if len(data) < 1 {
		return nil, dberr.New(dberr.CodeSerialization, "empty result buffer")
	}
	switch resultTag(data[0]) {
	case tagIdSet:
		return deserializeIdSet(data[1:])
	case tagIdPairSet:
		return deserializeIdPairSet(data[1:])
	case tagTopologyHistogram:
		return deserializeTopologyHistogram(data[1:])
	case tagKNNHeap:
		return deserializeKNNHeap(data[1:])
	default:
		return nil, dberr.New(dberr.CodeSerialization, "unrecognized result tag")
	}
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func writeFloat64(buf *bytes.Buffer, v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	buf.Write(tmp[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, dberr.Wrap(dberr.CodeSerialization, "truncated uint32", err)
	}
	return binary.LittleEndian.Uint32(tmp[:]), nil
}

func readInt64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, dberr.Wrap(dberr.CodeSerialization, "truncated int64", err)
	}
	return int64(binary.LittleEndian.Uint64(tmp[:])), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	tmp := make([]byte, n)
	if _, err := io.ReadFull(r, tmp); err != nil {
		return "", dberr.Wrap(dberr.CodeSerialization, "truncated string", err)
	}
	return string(tmp), nil
}

func readFloat64(r *bytes.Reader) (float64, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, dberr.Wrap(dberr.CodeSerialization, "truncated float64", err)
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(tmp[:])), nil
}
