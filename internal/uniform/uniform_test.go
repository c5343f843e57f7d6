package uniform

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/refine"
	"github.com/arxgeo/geodist/internal/shape"
)

// testHeap is a minimal DistanceSink stand-in so this package's tests
// don't need to import package query (which imports uniform) and create
// a cycle; query_test.go exercises the real query.KNNHeap against this
// same KNN driver.
type testHeap struct {
	k       int
	entries []struct {
		id   int64
		dist float64
	}
}

func (h *testHeap) Offer(id int64, dist float64) {
	h.entries = append(h.entries, struct {
		id   int64
		dist float64
	}{id, dist})
	sort.Slice(h.entries, func(i, j int) bool { return h.entries[i].dist < h.entries[j].dist })
	if len(h.entries) > h.k {
		h.entries = h.entries[:h.k]
	}
}

func (h *testHeap) KthDistance() (float64, bool) {
	if len(h.entries) < h.k {
		return 0, false
	}
	return h.entries[len(h.entries)-1].dist, true
}

func point(id int64, x, y float64) *shape.Shape {
	s, err := shape.New(id, shape.TypePoint, []shape.Point{{X: x, Y: y}})
	if err != nil {
		panic(err)
	}
	return s
}

// TestS3KNNBoundary reproduces scenario S3.
func TestS3KNNBoundary(t *testing.T) {
	ds := dataset.New(dataset.TypePoint, "", false)
	for i := int64(0); i < 5; i++ {
		ds.Add(point(i, float64(i), 0))
	}
	m, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 2}, 1, ds.Dataspace())
	require.NoError(t, err)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, m.AssignShape(ds.Get(i)))
	}
	require.NoError(t, ds.BuildUniformIndex())

	h := &testHeap{k: 2}
	KNN(ds, m, shape.Point{X: 1.6, Y: 0}, h)

	got := map[int64]bool{}
	for _, e := range h.entries {
		got[e.id] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true}, got)
	kth, full := h.KthDistance()
	require.True(t, full)
	assert.InDelta(t, 0.6, kth, 1e-9)
}

// TestS5RangeQueryBox reproduces scenario S5.
func TestS5RangeQueryBox(t *testing.T) {
	ds := dataset.New(dataset.TypePoint, "", false)
	var id int64
	for x := 0; x < 10; x++ {
		for y := 0; y < 10; y++ {
			ds.Add(point(id, float64(x), float64(y)))
			id++
		}
	}
	m, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 10}, 1, ds.Dataspace())
	require.NoError(t, err)
	for i := int64(0); i < id; i++ {
		require.NoError(t, m.AssignShape(ds.Get(i)))
	}
	require.NoError(t, ds.BuildUniformIndex())

	var found []int64
	err = RangeQueryBox(ds, m, shape.MBR{MinX: 3, MinY: 3, MaxX: 6, MaxY: 6}, refine.Default{}, func(id int64) {
		found = append(found, id)
	})
	require.NoError(t, err)
	assert.Len(t, found, 16)
}

// TestS4DistanceJoinTwoNodes reproduces scenario S4.
func TestS4DistanceJoinTwoNodes(t *testing.T) {
	r := dataset.New(dataset.TypePoint, "", false)
	s := dataset.New(dataset.TypePoint, "", false)
	for i := int64(0); i < 10; i++ {
		r.Add(point(i, float64(i), 0))
		s.Add(point(100+i, float64(i), 0))
	}
	combined := r.Dataspace().Union(s.Dataspace())
	m, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 2, PPDNum: 1}, 2, combined)
	require.NoError(t, err)
	for i := int64(0); i < 10; i++ {
		require.NoError(t, m.AssignShape(r.Get(i)))
		require.NoError(t, m.AssignShape(s.Get(100+i)))
	}
	require.NoError(t, r.BuildUniformIndex())
	require.NoError(t, s.BuildUniformIndex())

	allPairs := map[[2]int64]bool{}
	for node := int32(0); node < 2; node++ {
		// Build a per-node local view: only shapes whose uniform partition
		// is owned by this node are "loaded" (mirrors distributed loading).
		localR := localSubset(t, r, m, node)
		localS := localSubset(t, s, m, node)
		var local int
		_, _, err := DistanceJoinLocal(localR, localS, m, node, 0.5, func(rID, sID int64) {
			allPairs[[2]int64{rID, sID}] = true
			local++
		})
		require.NoError(t, err)
	}

	assert.Len(t, allPairs, 10)
	for i := int64(0); i < 10; i++ {
		assert.True(t, allPairs[[2]int64{i, 100 + i}])
	}
}

func localSubset(t *testing.T, ds *dataset.Dataset, m *partitioning.Method, node int32) *dataset.Dataset {
	t.Helper()
	out := dataset.New(ds.DataType, "", false)
	for _, pid := range sortedPartitionIDs(ds) {
		cell := m.FineCellOf(pid)
		if m.NodeForCoarseCell(m.CoarseCellOf(cell)) != node {
			continue
		}
		for _, id := range ds.Shapes(pid) {
			out.Add(ds.Get(id))
		}
	}
	// Shapes already carry their partition assignment from the shared
	// method m computed over the combined dataspace; BuildUniformIndex
	// just re-groups them, no re-assignment needed.
	require.NoError(t, out.BuildUniformIndex())
	return out
}
