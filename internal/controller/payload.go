package controller

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// ConfigPayload is TagBroadcastConfig's body: the fields every worker
// needs to build its own partitioning.Method once the dataspace for a
// dataset is known, plus the thread/cluster sizing it needs for its own
// bounded pools.
type ConfigPayload struct {
	Partitioning config.PartitioningConfig
	WorldSize    int32
	MaxThreads   int
	PersistPath  string // config.Partitioning.Path; empty means no partition-file persistence
}

func EncodeConfig(p ConfigPayload) []byte {
	var buf bytes.Buffer
	writeString(&buf, string(p.Partitioning.Type))
	writeUint32(&buf, uint32(p.Partitioning.PPDNum))
	writeUint32(&buf, uint32(p.Partitioning.DGPPDNum))
	writeString(&buf, string(p.Partitioning.AssignmentFunc))
	writeUint32(&buf, uint32(p.WorldSize))
	writeUint32(&buf, uint32(p.MaxThreads))
	writeString(&buf, p.PersistPath)
	return buf.Bytes()
}

func DecodeConfig(data []byte) (ConfigPayload, error) {
	r := bytes.NewReader(data)
	var p ConfigPayload
	var err error
	var s string
	if s, err = readString(r); err != nil {
		return p, err
	}
	p.Partitioning.Type = config.PartitioningType(s)
	n, err := readUint32(r)
	if err != nil {
		return p, err
	}
	p.Partitioning.PPDNum = int(n)
	if n, err = readUint32(r); err != nil {
		return p, err
	}
	p.Partitioning.DGPPDNum = int(n)
	if s, err = readString(r); err != nil {
		return p, err
	}
	p.Partitioning.AssignmentFunc = config.AssignmentFunc(s)
	if n, err = readUint32(r); err != nil {
		return p, err
	}
	p.WorldSize = int32(n)
	if n, err = readUint32(r); err != nil {
		return p, err
	}
	p.MaxThreads = int(n)
	if p.PersistPath, err = readString(r); err != nil {
		return p, err
	}
	return p, nil
}

// LoadDatasetPayload is TagLoadDataset's body: one batch of shapes bound
// for datasetID. The shapes already carry the partition assignments the
// host computed over dataspace; the receiving worker loads them as they
// are, without partitioning them again.
type LoadDatasetPayload struct {
	DatasetID string
	DataType  dataset.Type
	Dataspace shape.MBR
	Shapes    []*shape.Shape
}

func EncodeLoadDataset(p LoadDatasetPayload) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, p.DatasetID)
	writeUint32(&buf, uint32(p.DataType))
	for _, v := range []float64{p.Dataspace.MinX, p.Dataspace.MinY, p.Dataspace.MaxX, p.Dataspace.MaxY} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, dberr.Wrap(dberr.CodeSerialization, "write dataspace", err)
		}
	}
	writeUint32(&buf, uint32(len(p.Shapes)))
	for _, s := range p.Shapes {
		if err := s.Serialize(&buf); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func DecodeLoadDataset(data []byte) (LoadDatasetPayload, error) {
	r := bytes.NewReader(data)
	var p LoadDatasetPayload
	var err error
	if p.DatasetID, err = readString(r); err != nil {
		return p, err
	}
	dt, err := readUint32(r)
	if err != nil {
		return p, err
	}
	p.DataType = dataset.Type(dt)
	vals := make([]float64, 4)
	for i := range vals {
		if err := binary.Read(r, binary.LittleEndian, &vals[i]); err != nil {
			return p, dberr.Wrap(dberr.CodeSerialization, "read dataspace", err)
		}
	}
	p.Dataspace = shape.MBR{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	n, err := readUint32(r)
	if err != nil {
		return p, err
	}
	geomType := dataTypeToGeometryType(p.DataType)
	p.Shapes = make([]*shape.Shape, n)
	for i := range p.Shapes {
		p.Shapes[i], err = shape.DeserializeShape(r, geomType)
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

func dataTypeToGeometryType(t dataset.Type) shape.GeometryType {
	switch t {
	case dataset.TypePoint:
		return shape.TypePoint
	case dataset.TypeLineString:
		return shape.TypeLineString
	case dataset.TypePolygon:
		return shape.TypePolygon
	default:
		return shape.TypeBox
	}
}

// QueryPayload is TagQuery's body: the serialized query plus the thread
// budget the receiving node should evaluate it with. A distance join's
// local pass needs the receiving node's own rank too, but that rank is
// whatever the receiving controller already knows about itself (host is
// always 0, a worker is its own WorkerController.rank) — it is never
// sent over the wire, since a stale or mismatched rank would silently
// corrupt the border-ownership check every node's local pass relies on.
type QueryPayload struct {
	Query   []byte
	Threads int
}

func EncodeQuery(p QueryPayload) []byte {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(p.Query)))
	buf.Write(p.Query)
	writeUint32(&buf, uint32(p.Threads))
	return buf.Bytes()
}

func DecodeQuery(data []byte) (QueryPayload, error) {
	r := bytes.NewReader(data)
	n, err := readUint32(r)
	if err != nil {
		return QueryPayload{}, err
	}
	q := make([]byte, n)
	if _, err := io.ReadFull(r, q); err != nil {
		return QueryPayload{}, dberr.Wrap(dberr.CodeSerialization, "truncated query payload", err)
	}
	threads, err := readUint32(r)
	if err != nil {
		return QueryPayload{}, err
	}
	return QueryPayload{Query: q, Threads: int(threads)}, nil
}

func writeUint32(w io.Writer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, dberr.Wrap(dberr.CodeSerialization, "read uint32", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeString(w io.Writer, s string) {
	writeUint32(w, uint32(len(s)))
	io.WriteString(w, s)
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", dberr.Wrap(dberr.CodeSerialization, "read string", err)
	}
	return string(buf), nil
}

// AssignPartitionsPayload is TagAssignPartitions's body: the dataspace
// a worker must build its partitioning.Method against for datasetID,
// plus the partitioning scheme and cluster size to build it with.
type AssignPartitionsPayload struct {
	DatasetID    string
	Dataspace    shape.MBR
	Partitioning config.PartitioningConfig
	WorldSize    int32
}

func EncodeAssignPartitions(p AssignPartitionsPayload) []byte {
	var buf bytes.Buffer
	writeString(&buf, p.DatasetID)
	for _, v := range []float64{p.Dataspace.MinX, p.Dataspace.MinY, p.Dataspace.MaxX, p.Dataspace.MaxY} {
		binary.Write(&buf, binary.LittleEndian, v)
	}
	writeString(&buf, string(p.Partitioning.Type))
	writeUint32(&buf, uint32(p.Partitioning.PPDNum))
	writeUint32(&buf, uint32(p.Partitioning.DGPPDNum))
	writeString(&buf, string(p.Partitioning.AssignmentFunc))
	writeUint32(&buf, uint32(p.WorldSize))
	return buf.Bytes()
}

func DecodeAssignPartitions(data []byte) (AssignPartitionsPayload, error) {
	r := bytes.NewReader(data)
	var p AssignPartitionsPayload
	var err error
	if p.DatasetID, err = readString(r); err != nil {
		return p, err
	}
	vals := make([]float64, 4)
	for i := range vals {
		if err := binary.Read(r, binary.LittleEndian, &vals[i]); err != nil {
			return p, dberr.Wrap(dberr.CodeSerialization, "read dataspace", err)
		}
	}
	p.Dataspace = shape.MBR{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
	var s string
	if s, err = readString(r); err != nil {
		return p, err
	}
	p.Partitioning.Type = config.PartitioningType(s)
	n, err := readUint32(r)
	if err != nil {
		return p, err
	}
	p.Partitioning.PPDNum = int(n)
	if n, err = readUint32(r); err != nil {
		return p, err
	}
	p.Partitioning.DGPPDNum = int(n)
	if s, err = readString(r); err != nil {
		return p, err
	}
	p.Partitioning.AssignmentFunc = config.AssignmentFunc(s)
	if n, err = readUint32(r); err != nil {
		return p, err
	}
	p.WorldSize = int32(n)
	return p, nil
}

// DJLocalResultPayload is TagDistanceJoinLocalResult's body: a node's
// local distance-join pairs plus the border shapes its scan found
// reaching a remote-owned cell, grouped by the rank that owns that
// cell. The host merges every node's BorderR/BorderS before building
// the BatchPayload each destination rank needs for the traffic phase.
type DJLocalResultPayload struct {
	Pairs   []byte
	BorderR map[int32]map[int64]*shape.Shape
	BorderS map[int32]map[int64]*shape.Shape
}

func EncodeDJLocalResult(p DJLocalResultPayload) ([]byte, error) {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(p.Pairs)))
	buf.Write(p.Pairs)
	if err := encodeRankShapeMap(&buf, p.BorderR); err != nil {
		return nil, err
	}
	if err := encodeRankShapeMap(&buf, p.BorderS); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeDJLocalResult(data []byte) (DJLocalResultPayload, error) {
	r := bytes.NewReader(data)
	var p DJLocalResultPayload
	n, err := readUint32(r)
	if err != nil {
		return p, err
	}
	p.Pairs = make([]byte, n)
	if _, err := io.ReadFull(r, p.Pairs); err != nil {
		return p, dberr.Wrap(dberr.CodeSerialization, "truncated local-result pairs", err)
	}
	if p.BorderR, err = decodeRankShapeMap(r); err != nil {
		return p, err
	}
	if p.BorderS, err = decodeRankShapeMap(r); err != nil {
		return p, err
	}
	return p, nil
}

func encodeRankShapeMap(buf *bytes.Buffer, m map[int32]map[int64]*shape.Shape) error {
	writeUint32(buf, uint32(len(m)))
	for rank, shapes := range m {
		writeUint32(buf, uint32(rank))
		if err := encodeShapeMap(buf, shapes); err != nil {
			return err
		}
	}
	return nil
}

func decodeRankShapeMap(r io.Reader) (map[int32]map[int64]*shape.Shape, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int32]map[int64]*shape.Shape, n)
	for i := uint32(0); i < n; i++ {
		rank, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		shapes, err := decodeShapeMap(r)
		if err != nil {
			return nil, err
		}
		out[int32(rank)] = shapes
	}
	return out, nil
}

// BatchPayload is TagDistanceJoinBatch's body: the traffic phase of a
// distance join — border shapes fetched from a remote
// rank, to be evaluated against this node's own local partitions.
type BatchPayload struct {
	Query    []byte
	DatasetR string
	DatasetS string
	ForeignR map[int64]*shape.Shape
	ForeignS map[int64]*shape.Shape
}

func EncodeBatch(p BatchPayload) ([]byte, error) {
	var buf bytes.Buffer
	writeUint32(&buf, uint32(len(p.Query)))
	buf.Write(p.Query)
	writeString(&buf, p.DatasetR)
	writeString(&buf, p.DatasetS)
	if err := encodeShapeMap(&buf, p.ForeignR); err != nil {
		return nil, err
	}
	if err := encodeShapeMap(&buf, p.ForeignS); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeBatch(data []byte) (BatchPayload, error) {
	r := bytes.NewReader(data)
	var p BatchPayload
	n, err := readUint32(r)
	if err != nil {
		return p, err
	}
	p.Query = make([]byte, n)
	if _, err := io.ReadFull(r, p.Query); err != nil {
		return p, dberr.Wrap(dberr.CodeSerialization, "truncated batch query", err)
	}
	if p.DatasetR, err = readString(r); err != nil {
		return p, err
	}
	if p.DatasetS, err = readString(r); err != nil {
		return p, err
	}
	if p.ForeignR, err = decodeShapeMap(r); err != nil {
		return p, err
	}
	if p.ForeignS, err = decodeShapeMap(r); err != nil {
		return p, err
	}
	return p, nil
}

func encodeShapeMap(buf *bytes.Buffer, m map[int64]*shape.Shape) error {
	writeUint32(buf, uint32(len(m)))
	for _, s := range m {
		writeUint32(buf, uint32(s.Type))
		if err := s.Serialize(buf); err != nil {
			return err
		}
	}
	return nil
}

func decodeShapeMap(r io.Reader) (map[int64]*shape.Shape, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*shape.Shape, n)
	for i := uint32(0); i < n; i++ {
		gt, err := readUint32(r)
		if err != nil {
			return nil, err
		}
		s, err := shape.DeserializeShape(r, shape.GeometryType(gt))
		if err != nil {
			return nil, err
		}
		out[s.RecID] = s
	}
	return out, nil
}

// EncodeDatasetID encodes the body of messages whose body is a single string
// (TagUnloadDataset).
func EncodeDatasetID(id string) []byte {
	var buf bytes.Buffer
	writeString(&buf, id)
	return buf.Bytes()
}

func DecodeDatasetID(data []byte) (string, error) {
	return readString(bytes.NewReader(data))
}
