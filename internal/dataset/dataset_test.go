package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/shape"
)

func buildPartitioned(t *testing.T, shapes []*shape.Shape) (*Dataset, *partitioning.Method) {
	t.Helper()
	d := New(TypePolygon, "", false)
	for _, s := range shapes {
		d.Add(s)
	}
	m, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 1}, 1, d.Dataspace())
	require.NoError(t, err)
	for _, s := range shapes {
		require.NoError(t, m.AssignShape(s))
	}
	require.NoError(t, d.BuildTwoLayerIndex())
	require.NoError(t, d.BuildUniformIndex())
	return d, m
}

func TestSealedPartitionsSortedByYMin(t *testing.T) {
	s1, _ := shape.New(1, shape.TypeBox, []shape.Point{{X: 0, Y: 5}, {X: 1, Y: 6}})
	s2, _ := shape.New(2, shape.TypeBox, []shape.Point{{X: 0, Y: 1}, {X: 1, Y: 2}})
	d, _ := buildPartitioned(t, []*shape.Shape{s1, s2})

	for _, part := range d.TwoLayer {
		all := append(append(append(append([]int64{}, part.A...), part.B...), part.C...), part.D...)
		for i := 1; i < len(all); i++ {
			assert.LessOrEqual(t, d.Get(all[i-1]).MBR.MinY, d.Get(all[i]).MBR.MinY)
		}
	}
}

func TestUnloadClearsState(t *testing.T) {
	s1, _ := shape.New(1, shape.TypeBox, []shape.Point{{X: 0, Y: 0}, {X: 1, Y: 1}})
	d, _ := buildPartitioned(t, []*shape.Shape{s1})
	assert.Equal(t, 1, d.Len())
	d.Unload()
	assert.Equal(t, 0, d.Len())
	assert.Empty(t, d.TwoLayer)
}
