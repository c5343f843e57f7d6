package dataset

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/shape"
)

func TestMetadataRoundTripWithBounds(t *testing.T) {
	m := Metadata{
		InternalID: "R",
		DataType:   TypeBox,
		FileType:   FileTypeCSV,
		Path:       "/data/r.csv",
		Persist:    true,
		HaveBounds: true,
		Dataspace:  shape.MBR{MinX: 0, MinY: 0, MaxX: 100, MaxY: 50},
	}
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	got, err := DeserializeMetadata(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestMetadataRoundTripNoBounds(t *testing.T) {
	m := Metadata{InternalID: "S", DataType: TypePoint, FileType: FileTypeBinary, Path: "", Persist: false}
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	got, err := DeserializeMetadata(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}
