package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/shape"
)

func mbr(minX, minY, maxX, maxY float64) shape.MBR {
	return shape.MBR{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
}

func writeTemp(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadCSVPoints(t *testing.T) {
	path := writeTemp(t, "0,1.0 2.0\n1,3.5 4.5\n2,-1.0 -2.0\n")

	shapes, dataspace, err := Load(path, dataset.TypePoint, dataset.FileTypeCSV)
	require.NoError(t, err)
	require.Len(t, shapes, 3)
	assert.Equal(t, int64(0), shapes[0].RecID)
	assert.Equal(t, 1.0, shapes[0].Coordinates[0].X)
	assert.Equal(t, 2.0, shapes[0].Coordinates[0].Y)

	assert.Equal(t, -1.0, dataspace.MinX)
	assert.Equal(t, -2.0, dataspace.MinY)
	assert.Equal(t, 3.5, dataspace.MaxX)
	assert.Equal(t, 4.5, dataspace.MaxY)
}

func TestLoadCSVBox(t *testing.T) {
	path := writeTemp(t, "0,0 0,10 10\n")

	shapes, dataspace, err := Load(path, dataset.TypeBox, dataset.FileTypeCSV)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, mbr(0, 0, 10, 10), dataspace)
}

func TestLoadCSVMalformedCoordinate(t *testing.T) {
	path := writeTemp(t, "0,not-a-number 2.0\n")

	_, _, err := Load(path, dataset.TypePoint, dataset.FileTypeCSV)
	assert.Error(t, err)
}

func TestLoadCSVEmptyFile(t *testing.T) {
	path := writeTemp(t, "")

	shapes, dataspace, err := Load(path, dataset.TypePoint, dataset.FileTypeCSV)
	require.NoError(t, err)
	assert.Nil(t, shapes)
	assert.Equal(t, mbr(0, 0, 0, 0), dataspace)
}

func TestLoadWKTPoints(t *testing.T) {
	path := writeTemp(t, "POINT (1 2)\tcity=foo\nPOINT (3 4)\n")

	shapes, dataspace, err := Load(path, dataset.TypePoint, dataset.FileTypeWKT)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, 1.0, shapes[0].Coordinates[0].X)
	assert.Equal(t, mbr(1, 2, 3, 4), dataspace)
}

func TestLoadWKTSkipsMismatchedTag(t *testing.T) {
	path := writeTemp(t, "POINT (1 2)\nLINESTRING (0 0, 1 1)\nPOINT (5 6)\n")

	shapes, _, err := Load(path, dataset.TypePoint, dataset.FileTypeWKT)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
}

func TestLoadWKTPolygon(t *testing.T) {
	path := writeTemp(t, "POLYGON ((0 0, 0 10, 10 10, 10 0, 0 0))\n")

	shapes, _, err := Load(path, dataset.TypePolygon, dataset.FileTypeWKT)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Len(t, shapes[0].Coordinates, 5)
}

func TestLoadUnsupportedFileType(t *testing.T) {
	path := writeTemp(t, "")
	_, _, err := Load(path, dataset.TypePoint, dataset.FileTypeBinary)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.csv"), dataset.TypePoint, dataset.FileTypeCSV)
	assert.Error(t, err)
}
