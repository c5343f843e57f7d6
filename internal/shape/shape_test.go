package shape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewComputesTightMBR(t *testing.T) {
	s, err := New(1, TypePolygon, []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}})
	require.NoError(t, err)
	assert.Equal(t, MBR{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}, s.MBR)
}

func TestNewRejectsEmptyCoordinates(t *testing.T) {
	_, err := New(1, TypePoint, nil)
	assert.Error(t, err)
}

func TestMBRIntersects(t *testing.T) {
	a := MBR{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	b := MBR{MinX: 0.5, MinY: 0.5, MaxX: 1.5, MaxY: 1.5}
	c := MBR{MinX: 10, MinY: 10, MaxX: 11, MaxY: 11}
	assert.True(t, a.Intersects(b))
	assert.False(t, a.Intersects(c))
}

func TestMinDistanceToPoint(t *testing.T) {
	m := MBR{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	assert.Equal(t, 0.0, m.MinDistanceToPoint(0.5, 0.5))
	assert.InDelta(t, 1.0, m.MinDistanceToPoint(2, 0.5), 1e-9)
}

func TestRelateMBRsTotality(t *testing.T) {
	r := MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	s := MBR{MinX: 3, MinY: 3, MaxX: 4, MaxY: 4}
	assert.Equal(t, RelSInR, RelateMBRs(r, s))
	assert.Equal(t, RelRInS, RelateMBRs(s, r))

	eq := MBR{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	assert.Equal(t, RelEqual, RelateMBRs(eq, eq))

	cross := MBR{MinX: -1, MinY: -1, MaxX: 5, MaxY: 0.5}
	base := MBR{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	assert.Equal(t, RelCross, RelateMBRs(base, cross))
}

func TestDilate(t *testing.T) {
	m := MBR{MinX: 0, MinY: 0, MaxX: 1, MaxY: 1}
	d := m.Dilate(0.5)
	assert.Equal(t, MBR{MinX: -0.5, MinY: -0.5, MaxX: 1.5, MaxY: 1.5}, d)
}
