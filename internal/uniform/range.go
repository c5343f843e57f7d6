package uniform

import (
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/refine"
	"github.com/arxgeo/geodist/internal/shape"
)

// RangeQueryBox evaluates a box (window) range query: partitions wholly
// inside window contribute every shape without refinement; partitions
// that straddle the boundary (the bottom row, top row, left column,
// right column of the cell range) refine each shape individually. This
// is the interior/boundary split.
func RangeQueryBox(ds *dataset.Dataset, method *partitioning.Method, window shape.MBR, refiner refine.Refiner, emit func(int64)) error {
	cells, err := method.OverlappingPartitionOffsets(window)
	if err != nil || len(cells) == 0 {
		return err
	}
	// cells runs row by row from (iMin, jMin) to (iMax, jMax).
	iMin, jMin := cells[0].X, cells[0].Y
	iMax, jMax := cells[len(cells)-1].X, cells[len(cells)-1].Y

	for j := jMin; j <= jMax; j++ {
		for i := iMin; i <= iMax; i++ {
			cell := partitioning.Cell{X: i, Y: j}
			pid := method.FinePartitionID(cell)
			recIDs := ds.Uniform[pid]
			if len(recIDs) == 0 {
				continue
			}

			boundary := i == iMin || i == iMax || j == jMin || j == jMax
			if !boundary {
				for _, id := range recIDs {
					emit(id)
				}
				continue
			}
			for _, id := range recIDs {
				if refiner.IntersectsWindow(ds.Get(id), window) {
					emit(id)
				}
			}
		}
	}
	return nil
}

// RangeQueryPolygon evaluates a polygon-window range query. Every
// candidate partition is "partial" — every shape is refined, since a polygon window's boundary cannot be reduced to the
// box decomposition RangeQueryBox uses.
func RangeQueryPolygon(ds *dataset.Dataset, method *partitioning.Method, window []shape.Point, refiner refine.Refiner, emit func(int64)) error {
	windowMBR := polygonMBR(window)
	cells, err := method.OverlappingPartitionOffsets(windowMBR)
	if err != nil {
		return err
	}
	for _, c := range cells {
		pid := method.FinePartitionID(c)
		for _, id := range ds.Uniform[pid] {
			if refiner.IntersectsPolygon(ds.Get(id), window) {
				emit(id)
			}
		}
	}
	return nil
}

func polygonMBR(pts []shape.Point) shape.MBR {
	m := shape.MBR{MinX: pts[0].X, MinY: pts[0].Y, MaxX: pts[0].X, MaxY: pts[0].Y}
	for _, p := range pts[1:] {
		if p.X < m.MinX {
			m.MinX = p.X
		}
		if p.X > m.MaxX {
			m.MaxX = p.X
		}
		if p.Y < m.MinY {
			m.MinY = p.Y
		}
		if p.Y > m.MaxY {
			m.MaxY = p.Y
		}
	}
	return m
}
