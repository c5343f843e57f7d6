package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/shape"
)

func TestLocalBackendPutGetRoundTrip(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	exists, err := backend.Exists(ctx, "foo.bin")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.PutReader(ctx, "foo.bin", strings.NewReader("hello")))
	exists, err = backend.Exists(ctx, "foo.bin")
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := backend.GetReader(ctx, "foo.bin")
	require.NoError(t, err)
	defer r.Close()
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	require.NoError(t, backend.Delete(ctx, "foo.bin"))
	exists, err = backend.Exists(ctx, "foo.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPartitionFileRoundTrip(t *testing.T) {
	backend, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	meta := dataset.Metadata{
		InternalID: "R",
		DataType:   dataset.TypeBox,
		FileType:   dataset.FileTypeBinary,
		Path:       "R/part-0.bin",
		Persist:    true,
		HaveBounds: true,
		Dataspace:  shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10},
	}
	shapes := []*shape.Shape{
		mustBox(t, 1, 0, 0, 1, 1),
		mustBox(t, 2, 5, 5, 6, 6),
	}

	require.NoError(t, WritePartitionFile(ctx, backend, "R/part-0.bin", meta, shapes))

	gotMeta, gotShapes, err := ReadPartitionFile(ctx, backend, "R/part-0.bin", shape.TypeBox)
	require.NoError(t, err)
	assert.Equal(t, meta, gotMeta)
	require.Len(t, gotShapes, 2)
	assert.Equal(t, int64(1), gotShapes[0].RecID)
	assert.Equal(t, int64(2), gotShapes[1].RecID)
}

func mustBox(t *testing.T, id int64, x0, y0, x1, y1 float64) *shape.Shape {
	t.Helper()
	s, err := shape.New(id, shape.TypeBox, []shape.Point{{X: x0, Y: y0}, {X: x1, Y: y1}})
	require.NoError(t, err)
	return s
}
