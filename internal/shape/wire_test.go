package shape

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeSerializationRoundTrip(t *testing.T) {
	s, err := New(42, TypePolygon, []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}})
	require.NoError(t, err)
	s.AddPartition(3, ClassA)
	s.AddPartition(7, ClassC)

	var buf bytes.Buffer
	require.NoError(t, s.Serialize(&buf))

	got, err := DeserializeShape(&buf, TypePolygon)
	require.NoError(t, err)

	assert.Equal(t, s.RecID, got.RecID)
	assert.Equal(t, s.MBR, got.MBR)
	assert.Equal(t, s.Coordinates, got.Coordinates)
	assert.Equal(t, s.Partitions, got.Partitions)
}

func TestShapeSerializationNoPartitions(t *testing.T) {
	s, err := New(1, TypePoint, []Point{{X: 5, Y: 6}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Serialize(&buf))
	got, err := DeserializeShape(&buf, TypePoint)
	require.NoError(t, err)
	assert.Empty(t, got.Partitions)
	assert.Equal(t, s.Coordinates, got.Coordinates)
}
