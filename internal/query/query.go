// Package query implements the Query tagged variant and the QResultBase
// result containers and §4.5: IdSet, IdPairSet,
// TopologyHistogram, and KNNHeap, each with type-specific merge and
// serialize/deserialize behavior. Queries are immutable once constructed;
// every New* function returns a value with no exported mutator.
package query

import (
	"bytes"

	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// Type tags the four query kinds names.
type Type int

const (
	TypeRange Type = iota
	TypeKNN
	TypeJoin
	TypeDistanceJoin
)

func (t Type) String() string {
	switch t {
	case TypeRange:
		return "rangeQuery"
	case TypeKNN:
		return "knnQuery"
	case TypeJoin:
		return "spatialJoin"
	case TypeDistanceJoin:
		return "distanceJoin"
	default:
		return "unknown"
	}
}

// Predicate selects what a JoinQuery reports. FindRelation populates a
// full TopologyHistogram; every other predicate filters the sweep
// kernel's candidate pairs down to an IdPairSet matching exactly that
// topological relation. Intersects is the "plain forwardPair" fast path
// — it never calls the geometric refiner.
type Predicate int

const (
	PredicateFindRelation Predicate = iota
	PredicateIntersects
	PredicateEquals
	PredicateInside
	PredicateContains
	PredicateCovers
	PredicateCoveredBy
	PredicateMeet
	PredicateDisjoint
)

// predicateMatches reports whether the exact relation rel satisfies
// predicate p. Covers/CoveredBy are not exclusive with Contains/Inside —
// a strict (non-touching) containment still satisfies the weaker
// "covers"/"covered-by" predicate, matching standard topology semantics
// (CoveredBy(S,R) on a strictly interior pair).
func predicateMatches(rel shape.TopologyRelation, p Predicate) bool {
	switch p {
	case PredicateEquals:
		return rel == shape.TopoEqual
	case PredicateInside:
		return rel == shape.TopoInside
	case PredicateContains:
		return rel == shape.TopoContains
	case PredicateCovers:
		return rel == shape.TopoContains || rel == shape.TopoCovers || rel == shape.TopoEqual
	case PredicateCoveredBy:
		return rel == shape.TopoInside || rel == shape.TopoCoveredBy || rel == shape.TopoEqual
	case PredicateMeet:
		return rel == shape.TopoMeet
	case PredicateDisjoint:
		return rel == shape.TopoDisjoint
	default:
		return false
	}
}

// Query is the immutable, tagged-variant query value the engine's query
// layer is built around. Only the fields relevant to Type are populated; callers
// must use the matching New* constructor rather than the zero value.
type Query struct {
	id        string
	typ       Type
	datasetR  string
	datasetS  string // empty for single-dataset queries
	window    shape.MBR
	polygon   []shape.Point
	point     shape.Point
	k         int
	distance  float64
	predicate Predicate
}

func (q Query) ID() string         { return q.id }
func (q Query) Type() Type         { return q.typ }
func (q Query) DatasetR() string   { return q.datasetR }
func (q Query) DatasetS() string   { return q.datasetS }
func (q Query) Window() shape.MBR  { return q.window }
func (q Query) Point() shape.Point { return q.point }
func (q Query) K() int             { return q.k }
func (q Query) Distance() float64  { return q.distance }
func (q Query) Predicate() Predicate { return q.predicate }

// Polygon returns a copy of the polygon window, or nil for a non-polygon
// query.
func (q Query) Polygon() []shape.Point {
	out := make([]shape.Point, len(q.polygon))
	copy(out, q.polygon)
	return out
}

// NewRangeQueryBox builds a box-window range query.
func NewRangeQueryBox(id, datasetID string, window shape.MBR) Query {
	return Query{id: id, typ: TypeRange, datasetR: datasetID, window: window}
}

// NewRangeQueryPolygon builds a polygon-window range query.
func NewRangeQueryPolygon(id, datasetID string, polygon []shape.Point) Query {
	return Query{id: id, typ: TypeRange, datasetR: datasetID, polygon: polygon}
}

// NewKNNQuery builds a k-nearest-neighbor query. Returns DBERR_QUERY if k
// is not positive.
func NewKNNQuery(id, datasetID string, p shape.Point, k int) (Query, error) {
	if k <= 0 {
		return Query{}, dberr.New(dberr.CodeQuery, "kValue must be positive")
	}
	return Query{id: id, typ: TypeKNN, datasetR: datasetID, point: p, k: k}, nil
}

// NewJoinQuery builds a topology-relation or intersection join between
// datasetR and datasetS under predicate.
func NewJoinQuery(id, datasetR, datasetS string, predicate Predicate) Query {
	return Query{id: id, typ: TypeJoin, datasetR: datasetR, datasetS: datasetS, predicate: predicate}
}

// NewDistanceJoinQuery builds a distance join reporting every (r,s) pair
// within dist of each other. Returns DBERR_QUERY if dist is negative.
func NewDistanceJoinQuery(id, datasetR, datasetS string, dist float64) (Query, error) {
	if dist < 0 {
		return Query{}, dberr.New(dberr.CodeQuery, "distance must be non-negative")
	}
	return Query{id: id, typ: TypeDistanceJoin, datasetR: datasetR, datasetS: datasetS, distance: dist}, nil
}

// hasPolygon distinguishes a box-window from a polygon-window range query
// on the wire, since both share Type() == TypeRange.
func (q Query) hasPolygon() bool { return len(q.polygon) > 0 }

// Serialize encodes q for transport across the fabric. Only the fields relevant to q.Type()
// are meaningful on deserialize; the others round-trip as zero values.
func (q Query) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(q.typ))
	writeString(&buf, q.id)
	writeString(&buf, q.datasetR)
	writeString(&buf, q.datasetS)

	switch q.typ {
	case TypeRange:
		if q.hasPolygon() {
			buf.WriteByte(1)
			writeUint32(&buf, uint32(len(q.polygon)))
			for _, p := range q.polygon {
				writeFloat64(&buf, p.X)
				writeFloat64(&buf, p.Y)
			}
		} else {
			buf.WriteByte(0)
			writeFloat64(&buf, q.window.MinX)
			writeFloat64(&buf, q.window.MinY)
			writeFloat64(&buf, q.window.MaxX)
			writeFloat64(&buf, q.window.MaxY)
		}
	case TypeKNN:
		writeFloat64(&buf, q.point.X)
		writeFloat64(&buf, q.point.Y)
		writeUint32(&buf, uint32(q.k))
	case TypeJoin:
		buf.WriteByte(byte(q.predicate))
	case TypeDistanceJoin:
		writeFloat64(&buf, q.distance)
	}
	return buf.Bytes(), nil
}

// DeserializeQuery reconstructs a Query from Serialize's output.
func DeserializeQuery(data []byte) (Query, error) {
	if len(data) < 1 {
		return Query{}, dberr.New(dberr.CodeSerialization, "empty query buffer")
	}
	r := bytes.NewReader(data[1:])
	q := Query{typ: Type(data[0])}

	var err error
	if q.id, err = readString(r); err != nil {
		return Query{}, err
	}
	if q.datasetR, err = readString(r); err != nil {
		return Query{}, err
	}
	if q.datasetS, err = readString(r); err != nil {
		return Query{}, err
	}

	switch q.typ {
	case TypeRange:
		tag, err := r.ReadByte()
		if err != nil {
			return Query{}, dberr.Wrap(dberr.CodeSerialization, "truncated range query", err)
		}
		if tag == 1 {
			n, err := readUint32(r)
			if err != nil {
				return Query{}, err
			}
			q.polygon = make([]shape.Point, n)
			for i := range q.polygon {
				if q.polygon[i].X, err = readFloat64(r); err != nil {
					return Query{}, err
				}
				if q.polygon[i].Y, err = readFloat64(r); err != nil {
					return Query{}, err
				}
			}
		} else {
			if q.window.MinX, err = readFloat64(r); err != nil {
				return Query{}, err
			}
			if q.window.MinY, err = readFloat64(r); err != nil {
				return Query{}, err
			}
			if q.window.MaxX, err = readFloat64(r); err != nil {
				return Query{}, err
			}
			if q.window.MaxY, err = readFloat64(r); err != nil {
				return Query{}, err
			}
		}
	case TypeKNN:
		if q.point.X, err = readFloat64(r); err != nil {
			return Query{}, err
		}
		if q.point.Y, err = readFloat64(r); err != nil {
			return Query{}, err
		}
		k, err := readUint32(r)
		if err != nil {
			return Query{}, err
		}
		q.k = int(k)
	case TypeJoin:
		p, err := r.ReadByte()
		if err != nil {
			return Query{}, dberr.Wrap(dberr.CodeSerialization, "truncated join query", err)
		}
		q.predicate = Predicate(p)
	case TypeDistanceJoin:
		if q.distance, err = readFloat64(r); err != nil {
			return Query{}, err
		}
	default:
		return Query{}, dberr.New(dberr.CodeSerialization, "unrecognized query type")
	}
	return q, nil
}
