// Package partitioning implements the two-level grid described in
// a coarse distribution grid mapping cells to node ranks,
// and, nested within it, a finer partitioning grid used for the two-layer
// sweep. Round-robin partitioning is the degenerate case where the two
// grids coincide.
package partitioning

import (
	"math"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// Cell is a (column, row) pair in either grid.
type Cell struct {
	X, Y int32
}

// Method is the configured, process-wide partitioning scheme. It is set
// once during the configuration broadcast
// and never mutated afterward.
type Method struct {
	Type           config.PartitioningType
	WorldSize      int32
	Dataspace      shape.MBR
	CoarsePPD      int32 // distribution grid resolution per axis
	FinePerCoarse  int32 // fine cells per coarse cell per axis (1 for RR)
	FineGlobalPPD  int32 // CoarsePPD * FinePerCoarse
	cellWidth      float64
	cellHeight     float64
	fineCellWidth  float64
	fineCellHeight float64
}

// New builds a Method from the broadcast configuration and the global
// dataspace MBR (already padded with epsilon by the dataset that produced
// it). Returns DBERR_CONFIG if the grid-sizing constraints are violated —
// this duplicates config.Validate's checks because a
// worker may receive the dataspace (and therefore call New) before it has
// independently validated the broadcast config.
func New(pc config.PartitioningConfig, worldSize int32, dataspace shape.MBR) (*Method, error) {
	m := &Method{Type: pc.Type, WorldSize: worldSize, Dataspace: dataspace}
	switch pc.Type {
	case config.PartitioningRR:
		if int32(pc.PPDNum) < worldSize {
			return nil, dberr.New(dberr.CodeConfig, "ppdNum must be >= worldSize for RR")
		}
		m.CoarsePPD = int32(pc.PPDNum)
		m.FinePerCoarse = 1
	case config.PartitioningTwoGrid:
		if int32(pc.DGPPDNum) < worldSize {
			return nil, dberr.New(dberr.CodeConfig, "dgppdNum must be >= worldSize for TWOGRID")
		}
		finePerCoarse := pc.PPDNum / pc.DGPPDNum
		if finePerCoarse < int(worldSize) {
			return nil, dberr.New(dberr.CodeConfig, "ppdNum/dgppdNum must be >= worldSize for TWOGRID")
		}
		m.CoarsePPD = int32(pc.DGPPDNum)
		m.FinePerCoarse = int32(finePerCoarse)
	default:
		return nil, dberr.New(dberr.CodeConfig, "unknown partitioning type")
	}
	m.FineGlobalPPD = m.CoarsePPD * m.FinePerCoarse

	width := dataspace.MaxX - dataspace.MinX
	height := dataspace.MaxY - dataspace.MinY
	m.cellWidth = width / float64(m.CoarsePPD)
	m.cellHeight = height / float64(m.CoarsePPD)
	m.fineCellWidth = width / float64(m.FineGlobalPPD)
	m.fineCellHeight = height / float64(m.FineGlobalPPD)
	return m, nil
}

// FinePartitionID returns the linear partition id for a fine cell.
func (m *Method) FinePartitionID(c Cell) int32 {
	return c.X + c.Y*m.FineGlobalPPD
}

// FineCellOf inverts FinePartitionID.
func (m *Method) FineCellOf(id int32) Cell {
	return Cell{X: id % m.FineGlobalPPD, Y: id / m.FineGlobalPPD}
}

// CoarseCellOf returns the distribution cell containing fine cell c.
func (m *Method) CoarseCellOf(c Cell) Cell {
	return Cell{X: c.X / m.FinePerCoarse, Y: c.Y / m.FinePerCoarse}
}

// NodeForCoarseCell applies the round-robin assignment
// (i + j*coarsePPD) mod worldSize This is the
// only assignment function implemented; config.Validate rejects the
// unimplemented "OP" function before a Method is ever constructed.
func (m *Method) NodeForCoarseCell(c Cell) int32 {
	return (c.X + c.Y*m.CoarsePPD) % m.WorldSize
}

// NodeForFinePartition is the composition of CoarseCellOf and
// NodeForCoarseCell, used by the distance-join border logic to decide
// whether a dilated MBR's cell is local or remote.
func (m *Method) NodeForFinePartition(id int32) int32 {
	return m.NodeForCoarseCell(m.CoarseCellOf(m.FineCellOf(id)))
}

// FineCellOrigin returns the (x,y) world-coordinate origin of a fine cell,
// used by the two-layer classifier.
func (m *Method) FineCellOrigin(c Cell) (x, y float64) {
	return m.Dataspace.MinX + float64(c.X)*m.fineCellWidth, m.Dataspace.MinY + float64(c.Y)*m.fineCellHeight
}

// FineCellExtent returns the MBR of a fine cell.
func (m *Method) FineCellExtent(c Cell) shape.MBR {
	ox, oy := m.FineCellOrigin(c)
	return shape.MBR{MinX: ox, MinY: oy, MaxX: ox + m.fineCellWidth, MaxY: oy + m.fineCellHeight}
}

// CellsForMBR enumerates every fine cell whose extent intersects mbr,
// computed via floored division of (min-origin)/extent as specified.
// Out-of-range indices (a corrupt dataspace) are reported as
// DBERR_INVALID_PARTITION rather than silently clamped.
func (m *Method) CellsForMBR(mbr shape.MBR) ([]Cell, error) {
	iMin, jMin, iMax, jMax, err := m.CellRange(mbr)
	if err != nil {
		return nil, err
	}

	cells := make([]Cell, 0, (iMax-iMin+1)*(jMax-jMin+1))
	for j := jMin; j <= jMax; j++ {
		for i := iMin; i <= iMax; i++ {
			cells = append(cells, Cell{X: i, Y: j})
		}
	}
	return cells, nil
}

// CellRange returns the inclusive fine-cell index bounds covering mbr,
// the same computation CellsForMBR uses internally, exposed separately
// for callers that need the bounds rather than the cell list.
func (m *Method) CellRange(mbr shape.MBR) (iMin, jMin, iMax, jMax int32, err error) {
	iMin = int32(math.Floor((mbr.MinX - m.Dataspace.MinX) / m.fineCellWidth))
	jMin = int32(math.Floor((mbr.MinY - m.Dataspace.MinY) / m.fineCellHeight))
	iMax = int32(math.Floor((mbr.MaxX - m.Dataspace.MinX) / m.fineCellWidth))
	jMax = int32(math.Floor((mbr.MaxY - m.Dataspace.MinY) / m.fineCellHeight))
	if iMin < 0 || jMin < 0 || iMax >= m.FineGlobalPPD || jMax >= m.FineGlobalPPD {
		return 0, 0, 0, 0, dberr.New(dberr.CodeInvalidPartition, "MBR falls outside the partitioned dataspace")
	}
	return iMin, jMin, iMax, jMax, nil
}

// Classify determines the two-layer class of a shape's MBR within the
// fine partition whose origin is (px,py), per the A/B/C/D classification rule.
func Classify(mbr shape.MBR, px, py float64) shape.TwoLayerClass {
	startsRight := mbr.MinX >= px
	startsAbove := mbr.MinY >= py
	switch {
	case startsRight && startsAbove:
		return shape.ClassA
	case startsRight && !startsAbove:
		return shape.ClassB
	case !startsRight && startsAbove:
		return shape.ClassC
	default:
		return shape.ClassD
	}
}

// AssignShape computes every (partitionID, class) pair for s and appends
// them to s.Partitions. Called once per shape during partitioning;
// establishes the "partitions is non-empty after partitioning" invariant.
func (m *Method) AssignShape(s *shape.Shape) error {
	cells, err := m.CellsForMBR(s.MBR)
	if err != nil {
		return err
	}
	for _, c := range cells {
		px, py := m.FineCellOrigin(c)
		class := Classify(s.MBR, px, py)
		s.AddPartition(m.FinePartitionID(c), class)
	}
	return nil
}

// OverlappingPartitionOffsets returns every fine cell that mbr (already
// dilated by the join distance, for distance joins) intersects. Unlike
// CellsForMBR it clips mbr to the dataspace rather than reporting an
// error, since a dilated MBR or a query window may reach past the grid;
// an mbr that misses the dataspace yields no cells. Named to match the
// original's getOverlappingPartitionOffsets, used by the distance-join
// and range-query drivers in package uniform.
func (m *Method) OverlappingPartitionOffsets(mbr shape.MBR) ([]Cell, error) {
	if !mbr.Intersects(m.Dataspace) {
		return nil, nil
	}
	clamp := func(v, origin, extent float64) int32 {
		return int32(math.Max(0, math.Min(math.Floor((v-origin)/extent), float64(m.FineGlobalPPD-1))))
	}
	iMin, iMax := clamp(mbr.MinX, m.Dataspace.MinX, m.fineCellWidth), clamp(mbr.MaxX, m.Dataspace.MinX, m.fineCellWidth)
	jMin, jMax := clamp(mbr.MinY, m.Dataspace.MinY, m.fineCellHeight), clamp(mbr.MaxY, m.Dataspace.MinY, m.fineCellHeight)
	cells := make([]Cell, 0, (iMax-iMin+1)*(jMax-jMin+1))
	for j := jMin; j <= jMax; j++ {
		for i := iMin; i <= iMax; i++ {
			cells = append(cells, Cell{X: i, Y: j})
		}
	}
	return cells, nil
}
