// Package shape defines the geometry primitives shared by every other
// package in the engine: the MBR, the tagged Shape variant, and the
// per-(shape,partition) two-layer class assignment.
package shape

import (
	"fmt"
	"math"
)

// GeometryType tags the variant carried by a Shape.
type GeometryType int

const (
	TypePoint GeometryType = iota
	TypeLineString
	TypePolygon
	TypeBox
)

func (t GeometryType) String() string {
	switch t {
	case TypePoint:
		return "POINT"
	case TypeLineString:
		return "LINESTRING"
	case TypePolygon:
		return "POLYGON"
	case TypeBox:
		return "BOX"
	default:
		return "UNKNOWN"
	}
}

// Point is a single 2-D coordinate.
type Point struct {
	X, Y float64
}

// MBR is an axis-aligned minimum bounding rectangle.
type MBR struct {
	MinX, MinY, MaxX, MaxY float64
}

// epsilon is the tolerance used for boundary comparisons throughout the
// engine (dataspace padding, MBR equality in relateMBRs).
const Epsilon = 1e-9

// Intersects reports whether the two MBRs overlap (touching counts as
// overlap; callers needing strict overlap should use relateMBRs).
func (m MBR) Intersects(o MBR) bool {
	return m.MinX <= o.MaxX && m.MaxX >= o.MinX && m.MinY <= o.MaxY && m.MaxY >= o.MinY
}

// Contains reports whether point (x,y) lies within the MBR, inclusive.
func (m MBR) Contains(x, y float64) bool {
	return x >= m.MinX && x <= m.MaxX && y >= m.MinY && y <= m.MaxY
}

// Union returns the smallest MBR enclosing both m and o.
func (m MBR) Union(o MBR) MBR {
	return MBR{
		MinX: min(m.MinX, o.MinX),
		MinY: min(m.MinY, o.MinY),
		MaxX: max(m.MaxX, o.MaxX),
		MaxY: max(m.MaxY, o.MaxY),
	}
}

// Dilate grows the MBR by d on every side, used by the distance-join
// border computation.
func (m MBR) Dilate(d float64) MBR {
	return MBR{MinX: m.MinX - d, MinY: m.MinY - d, MaxX: m.MaxX + d, MaxY: m.MaxY + d}
}

// MinDistanceToPoint returns the minimum Euclidean distance from (x,y) to
// the rectangle, 0 if the point is inside. Used by the kNN pruning bound.
func (m MBR) MinDistanceToPoint(x, y float64) float64 {
	dx := 0.0
	if x < m.MinX {
		dx = m.MinX - x
	} else if x > m.MaxX {
		dx = x - m.MaxX
	}
	dy := 0.0
	if y < m.MinY {
		dy = m.MinY - y
	} else if y > m.MaxY {
		dy = y - m.MaxY
	}
	return math.Sqrt(dx*dx + dy*dy)
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// TwoLayerClass is the per-(shape,partition) label assigned during
// partitioning.
type TwoLayerClass int

const (
	ClassA TwoLayerClass = iota
	ClassB
	ClassC
	ClassD
)

func (c TwoLayerClass) String() string {
	return [...]string{"A", "B", "C", "D"}[c]
}

// PartitionAssignment is one (partitionID, class) pair a shape belongs to.
// A shape may be assigned to several fine partitions when its MBR spans
// more than one cell.
type PartitionAssignment struct {
	PartitionID int32
	Class       TwoLayerClass
}

// Shape is the tagged variant over {Point, LineString, Polygon, Box}.
// recID is process-wide unique within one dataset; Coordinates holds the
// flattened (x,y) sequence (length 1 for Point, 2 for Box corners, N for
// LineString/Polygon rings).
type Shape struct {
	RecID       int64
	Type        GeometryType
	MBR         MBR
	Coordinates []Point
	Partitions  []PartitionAssignment
}

// New builds a Shape and computes its MBR from the coordinate sequence.
// The invariant "mbr tightly encloses the coordinates" is
// established here and never violated afterward: Shape values are
// immutable except for Partitions, appended to during partitioning.
func New(recID int64, typ GeometryType, coords []Point) (*Shape, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("shape %d: empty coordinate sequence", recID)
	}
	mbr := MBR{MinX: coords[0].X, MinY: coords[0].Y, MaxX: coords[0].X, MaxY: coords[0].Y}
	for _, c := range coords[1:] {
		if c.X < mbr.MinX {
			mbr.MinX = c.X
		}
		if c.X > mbr.MaxX {
			mbr.MaxX = c.X
		}
		if c.Y < mbr.MinY {
			mbr.MinY = c.Y
		}
		if c.Y > mbr.MaxY {
			mbr.MaxY = c.Y
		}
	}
	return &Shape{RecID: recID, Type: typ, MBR: mbr, Coordinates: coords}, nil
}

// AddPartition records a (partitionID, class) assignment. A given
// (shape, partition) pair must never be added twice; partitioning code
// enforces this by construction (one class per cell per shape).
func (s *Shape) AddPartition(partitionID int32, class TwoLayerClass) {
	s.Partitions = append(s.Partitions, PartitionAssignment{PartitionID: partitionID, Class: class})
}

// Distance returns the Euclidean distance between this shape's MBR center
// and the given point; used only where a representative point is needed
// (kNN over point data, where Coordinates has exactly one entry).
func (s *Shape) Distance(p Point) float64 {
	if len(s.Coordinates) == 1 {
		dx := s.Coordinates[0].X - p.X
		dy := s.Coordinates[0].Y - p.Y
		return math.Sqrt(dx*dx + dy*dy)
	}
	cx := (s.MBR.MinX + s.MBR.MaxX) / 2
	cy := (s.MBR.MinY + s.MBR.MaxY) / 2
	dx := cx - p.X
	dy := cy - p.Y
	return math.Sqrt(dx*dx + dy*dy)
}
