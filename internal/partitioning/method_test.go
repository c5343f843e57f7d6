package partitioning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/shape"
)

func TestRoundRobinNodeAssignment(t *testing.T) {
	ds := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	m, err := New(config.PartitioningConfig{Type: config.PartitioningRR, PPDNum: 4}, 2, ds)
	require.NoError(t, err)

	assert.Equal(t, int32(0), m.NodeForCoarseCell(Cell{X: 0, Y: 0}))
	assert.Equal(t, int32(1), m.NodeForCoarseCell(Cell{X: 1, Y: 0}))
	assert.Equal(t, int32(0), m.NodeForCoarseCell(Cell{X: 2, Y: 0}))
}

func TestTwoGridConstraintViolation(t *testing.T) {
	ds := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	_, err := New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 1}, 2, ds)
	assert.Error(t, err)
}

func TestCellsForMBRClosure(t *testing.T) {
	ds := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	m, err := New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 2, PPDNum: 2}, 1, ds)
	require.NoError(t, err)

	cells, err := m.CellsForMBR(shape.MBR{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, cells)
	for _, c := range cells {
		assert.True(t, c.X >= 0 && c.X < m.FineGlobalPPD)
		assert.True(t, c.Y >= 0 && c.Y < m.FineGlobalPPD)
	}
}

func TestCellsForMBROutOfRange(t *testing.T) {
	ds := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	m, err := New(config.PartitioningConfig{Type: config.PartitioningRR, PPDNum: 1}, 1, ds)
	require.NoError(t, err)

	_, err = m.CellsForMBR(shape.MBR{MinX: -5, MinY: -5, MaxX: -1, MaxY: -1})
	assert.Error(t, err)
}

func TestTwoLayerClassUniqueness(t *testing.T) {
	cases := []struct {
		mbr      shape.MBR
		px, py   float64
		expected shape.TwoLayerClass
	}{
		{shape.MBR{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}, 0, 0, shape.ClassA},
		{shape.MBR{MinX: 1, MinY: -1, MaxX: 2, MaxY: 2}, 0, 0, shape.ClassB},
		{shape.MBR{MinX: -1, MinY: 1, MaxX: 2, MaxY: 2}, 0, 0, shape.ClassC},
		{shape.MBR{MinX: -1, MinY: -1, MaxX: 2, MaxY: 2}, 0, 0, shape.ClassD},
	}
	for _, c := range cases {
		got := Classify(c.mbr, c.px, c.py)
		assert.Equal(t, c.expected, got)
	}
}

func TestAssignShapeNonEmptyAfterPartitioning(t *testing.T) {
	ds := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	m, err := New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 1}, 1, ds)
	require.NoError(t, err)

	s, err := shape.New(1, shape.TypeBox, []shape.Point{{X: 1, Y: 1}, {X: 2, Y: 2}})
	require.NoError(t, err)
	require.NoError(t, m.AssignShape(s))
	assert.NotEmpty(t, s.Partitions)
}
