package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/query"
	"github.com/arxgeo/geodist/internal/shape"
)

func boxShape(id int64, x0, y0, x1, y1 float64) *shape.Shape {
	s, err := shape.New(id, shape.TypeBox, []shape.Point{{X: x0, Y: y0}, {X: x1, Y: y1}})
	if err != nil {
		panic(err)
	}
	return s
}

func send(t *testing.T, a *Agent, cmd Command) Result {
	t.Helper()
	reply := make(chan Result, 1)
	cmd.Reply = reply
	a.Inbox() <- cmd
	return <-reply
}

func TestAgentLoadBuildAndEvaluateRange(t *testing.T) {
	a := New(0)
	go a.Run()
	defer func() { send(t, a, Command{Kind: CmdShutdown}) }()

	dataspace := shape.MBR{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	method, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 4}, 1, dataspace)
	require.NoError(t, err)

	res := send(t, a, Command{
		Kind:      CmdLoadBatch,
		DatasetID: "R",
		DataType:  dataset.TypeBox,
		Method:    method,
		Shapes:    []*shape.Shape{boxShape(1, 1, 1, 2, 2), boxShape(2, 8, 8, 9, 9)},
	})
	require.NoError(t, res.Err)

	res = send(t, a, Command{Kind: CmdBuildTwoLayerIndex, DatasetID: "R"})
	require.NoError(t, res.Err)
	res = send(t, a, Command{Kind: CmdBuildUniformIndex, DatasetID: "R"})
	require.NoError(t, res.Err)

	q := query.NewRangeQueryBox("q1", "R", shape.MBR{MinX: 0, MinY: 0, MaxX: 3, MaxY: 3})
	res = send(t, a, Command{Kind: CmdEvaluate, DatasetID: "R", Method: method, Query: q})
	require.NoError(t, res.Err)
	ids := res.QueryResult.(*query.IdSet).IDs()
	assert.Equal(t, []int64{1}, ids)
}

func TestAgentUnknownDatasetErrors(t *testing.T) {
	a := New(0)
	go a.Run()
	defer func() { send(t, a, Command{Kind: CmdShutdown}) }()

	res := send(t, a, Command{Kind: CmdBuildTwoLayerIndex, DatasetID: "missing"})
	assert.Error(t, res.Err)
}

func TestAgentUnloadRemovesDataset(t *testing.T) {
	a := New(0)
	go a.Run()
	defer func() { send(t, a, Command{Kind: CmdShutdown}) }()

	res := send(t, a, Command{Kind: CmdLoadBatch, DatasetID: "R", DataType: dataset.TypeBox, Shapes: []*shape.Shape{boxShape(1, 0, 0, 1, 1)}})
	require.NoError(t, res.Err)
	res = send(t, a, Command{Kind: CmdUnload, DatasetID: "R"})
	require.NoError(t, res.Err)
	res = send(t, a, Command{Kind: CmdBuildTwoLayerIndex, DatasetID: "R"})
	assert.Error(t, res.Err)
}
