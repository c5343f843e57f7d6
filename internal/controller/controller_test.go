package controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/fabric"
	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/shape"
)

func boxShape(t *testing.T, id int64, x0, y0, x1, y1 float64) *shape.Shape {
	t.Helper()
	s, err := shape.New(id, shape.TypeBox, []shape.Point{{X: x0, Y: y0}, {X: x1, Y: y1}})
	require.NoError(t, err)
	return s
}

func TestClusterLoadAndRangeQuery(t *testing.T) {
	worker := NewWorkerController(1)
	addr, err := worker.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer worker.Shutdown()

	cfg := config.Default()
	cfg.Partitioning = config.PartitioningConfig{
		Type:           config.PartitioningTwoGrid,
		PPDNum:         4,
		DGPPDNum:       2,
		AssignmentFunc: config.AssignmentStandard,
	}

	host := NewHostController(cfg, []fabric.Peer{{Rank: 1, Addr: addr}})
	defer host.Close()

	require.NoError(t, host.BroadcastConfig())

	dataspace := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	require.NoError(t, host.AssignPartitions("R", dataspace))

	shapes := []*shape.Shape{
		boxShape(t, 1, 1, 1, 2, 2), // bottom-left quadrant
		boxShape(t, 2, 8, 8, 9, 9), // top-right quadrant
		boxShape(t, 3, 1, 8, 2, 9), // top-left quadrant
	}
	require.NoError(t, host.LoadDataset("R", dataset.TypeBox, shapes))
	require.NoError(t, host.BuildIndex("R"))

	q := query.NewRangeQueryBox("q1", "R", dataspace)
	res, err := host.RunQuery(q, 0, 2)
	require.NoError(t, err)

	ids := res.(*query.IdSet).IDs()
	assert.Equal(t, []int64{1, 2, 3}, ids)
}

func TestClusterRejectsCommandWhileBusyElsewhere(t *testing.T) {
	w := NewWorkerController(2)
	_, err := w.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer w.Shutdown()
	assert.Equal(t, StateReady, w.State())
	require.NoError(t, w.enterBusy(SubLoading))
	assert.Error(t, w.enterBusy(SubIndexing))
	w.leaveBusy()
	assert.Equal(t, StateReady, w.State())
}
