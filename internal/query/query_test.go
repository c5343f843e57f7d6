package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arxgeo/geodist/internal/config"
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/refine"
	"github.com/arxgeo/geodist/internal/shape"
)

func boxShape(id int64, x0, y0, x1, y1 float64) *shape.Shape {
	s, err := shape.New(id, shape.TypeBox, []shape.Point{{X: x0, Y: y0}, {X: x1, Y: y1}})
	if err != nil {
		panic(err)
	}
	return s
}

func pointShape(id int64, x, y float64) *shape.Shape {
	s, err := shape.New(id, shape.TypePoint, []shape.Point{{X: x, Y: y}})
	if err != nil {
		panic(err)
	}
	return s
}

// TestS1TrivialJoinIntersects reproduces scenario S1 through
// the query-level Intersects predicate.
func TestS1TrivialJoinIntersects(t *testing.T) {
	r := dataset.New(dataset.TypeBox, "", false)
	s := dataset.New(dataset.TypeBox, "", false)
	r.Add(boxShape(1, 0, 0, 5, 5))
	s.Add(boxShape(10, 2, 2, 3, 3))

	m := assignAndIndex(t, r, s)
	_ = m

	q := NewJoinQuery("q1", "R", "S", PredicateIntersects)
	result, err := EvaluateJoin(q, r, s, refine.Default{}, refine.Disabled{})
	require.NoError(t, err)
	pairSet, ok := result.(*IdPairSet)
	require.True(t, ok)
	assert.Equal(t, [][2]int64{{1, 10}}, pairSet.Pairs())
}

// TestS2ContainsVsInsideJoin reproduces scenario S2.
func TestS2ContainsVsInsideJoin(t *testing.T) {
	r := dataset.New(dataset.TypeBox, "", false)
	s := dataset.New(dataset.TypeBox, "", false)
	r.Add(boxShape(200, 0, 0, 10, 10))
	s.Add(boxShape(100, 2, 2, 4, 4))
	assignAndIndex(t, r, s)

	hist, err := EvaluateJoin(NewJoinQuery("q2a", "R", "S", PredicateFindRelation), r, s, refine.Default{}, refine.Disabled{})
	require.NoError(t, err)
	th := hist.(*TopologyHistogram)
	assert.EqualValues(t, 1, th.CountOf(shape.TopoContains))

	insideResult, err := EvaluateJoin(NewJoinQuery("q2b", "R", "S", PredicateInside), r, s, refine.Default{}, refine.Disabled{})
	require.NoError(t, err)
	assert.Equal(t, 0, insideResult.Count())

	coveredBy, err := EvaluateJoin(NewJoinQuery("q2c", "S", "R", PredicateCoveredBy), s, r, refine.Default{}, refine.Disabled{})
	require.NoError(t, err)
	pairs := coveredBy.(*IdPairSet).Pairs()
	assert.Equal(t, [][2]int64{{100, 200}}, pairs)
}

// TestS6EmptyJoinHistogram reproduces scenario S6.
func TestS6EmptyJoinHistogram(t *testing.T) {
	r := dataset.New(dataset.TypeBox, "", false)
	s := dataset.New(dataset.TypeBox, "", false)
	r.Add(boxShape(1, 0, 0, 1, 1))
	s.Add(boxShape(2, 100, 100, 101, 101))
	assignAndIndex(t, r, s)

	intersects, err := EvaluateJoin(NewJoinQuery("q6a", "R", "S", PredicateIntersects), r, s, refine.Default{}, refine.Disabled{})
	require.NoError(t, err)
	assert.Equal(t, 0, intersects.Count())

	hist, err := EvaluateJoin(NewJoinQuery("q6b", "R", "S", PredicateFindRelation), r, s, refine.Default{}, refine.Disabled{})
	require.NoError(t, err)
	assert.Equal(t, 0, hist.Count())
}

func assignAndIndex(t *testing.T, r, s *dataset.Dataset) *partitioning.Method {
	t.Helper()
	combined := r.Dataspace().Union(s.Dataspace())
	m, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 4}, 1, combined)
	require.NoError(t, err)
	for _, sh := range r.AllShapes() {
		require.NoError(t, m.AssignShape(sh))
	}
	for _, sh := range s.AllShapes() {
		require.NoError(t, m.AssignShape(sh))
	}
	require.NoError(t, r.BuildTwoLayerIndex())
	require.NoError(t, s.BuildTwoLayerIndex())
	return m
}

// TestKNNHeapBound is testable property #3: the heap never exceeds k
// entries and always holds the k smallest distances.
func TestKNNHeapBound(t *testing.T) {
	ds := dataset.New(dataset.TypePoint, "", false)
	for i := int64(0); i < 5; i++ {
		ds.Add(pointShape(i, float64(i), 0))
	}
	m, err := partitioning.New(config.PartitioningConfig{Type: config.PartitioningTwoGrid, DGPPDNum: 1, PPDNum: 2}, 1, ds.Dataspace())
	require.NoError(t, err)
	for _, sh := range ds.AllShapes() {
		require.NoError(t, m.AssignShape(sh))
	}
	require.NoError(t, ds.BuildUniformIndex())

	q, err := NewKNNQuery("knn1", "P", shape.Point{X: 1.6, Y: 0}, 2)
	require.NoError(t, err)
	heap, err := EvaluateKNN(q, ds, m)
	require.NoError(t, err)
	assert.LessOrEqual(t, heap.Count(), 2)

	entries := heap.Entries()
	ids := map[int64]bool{}
	for _, e := range entries {
		ids[e.RecID] = true
	}
	assert.Equal(t, map[int64]bool{1: true, 2: true}, ids)
	kth, full := heap.KthDistance()
	require.True(t, full)
	assert.InDelta(t, 0.6, kth, 1e-9)
}

// TestResultMergeLaws is testable property #5: mergeResults must be
// commutative and associative for every result kind.
func TestResultMergeLaws(t *testing.T) {
	t.Run("IdSet", func(t *testing.T) {
		a, b, c := NewIdSet(), NewIdSet(), NewIdSet()
		a.Add(1)
		b.Add(2)
		c.Add(3)
		assertCommutativeAssociative(t, a, b, c, func() Result { return NewIdSet() })
	})
	t.Run("IdPairSet", func(t *testing.T) {
		a, b, c := NewIdPairSet(), NewIdPairSet(), NewIdPairSet()
		a.Add(1, 10)
		b.Add(2, 20)
		c.Add(3, 30)
		assertCommutativeAssociative(t, a, b, c, func() Result { return NewIdPairSet() })
	})
	t.Run("TopologyHistogram", func(t *testing.T) {
		a, b, c := NewTopologyHistogram(), NewTopologyHistogram(), NewTopologyHistogram()
		a.Add(shape.TopoEqual)
		b.Add(shape.TopoMeet)
		c.Add(shape.TopoEqual)
		assertCommutativeAssociative(t, a, b, c, func() Result { return NewTopologyHistogram() })
	})
	t.Run("KNNHeap", func(t *testing.T) {
		a, b, c := NewKNNHeap(2), NewKNNHeap(2), NewKNNHeap(2)
		a.Offer(1, 1.0)
		b.Offer(2, 0.5)
		c.Offer(3, 2.0)
		assertCommutativeAssociative(t, a, b, c, func() Result { return NewKNNHeap(2) })
	})
}

func assertCommutativeAssociative(t *testing.T, a, b, c Result, zero func() Result) {
	t.Helper()

	ab := cloneMerge(t, zero, a, b)
	ba := cloneMerge(t, zero, b, a)
	assertSameSerialization(t, ab, ba)

	abThenC := cloneMerge(t, zero, cloneMerge(t, zero, a, b), c)
	aThenBC := cloneMerge(t, zero, a, cloneMerge(t, zero, b, c))
	assertSameSerialization(t, abThenC, aThenBC)
}

func cloneMerge(t *testing.T, zero func() Result, x, y Result) Result {
	t.Helper()
	acc := zero()
	require.NoError(t, acc.Merge(x))
	require.NoError(t, acc.Merge(y))
	return acc
}

func assertSameSerialization(t *testing.T, x, y Result) {
	t.Helper()
	xb, err := x.Serialize()
	require.NoError(t, err)
	yb, err := y.Serialize()
	require.NoError(t, err)
	assert.Equal(t, xb, yb)
}

// TestResultSerializationRoundTrip is testable property #4 for
// QResultBase variants.
func TestResultSerializationRoundTrip(t *testing.T) {
	ids := NewIdSet()
	ids.Add(5)
	ids.Add(1)
	roundTrip(t, ids)

	pairs := NewIdPairSet()
	pairs.Add(1, 2)
	pairs.Add(3, 4)
	roundTrip(t, pairs)

	hist := NewTopologyHistogram()
	hist.Add(shape.TopoEqual)
	hist.Add(shape.TopoMeet)
	hist.Add(shape.TopoMeet)
	roundTrip(t, hist)

	kh := NewKNNHeap(3)
	kh.Offer(1, 1.0)
	kh.Offer(2, 0.5)
	kh.Offer(3, 2.0)
	roundTrip(t, kh)
}

func roundTrip(t *testing.T, r Result) {
	t.Helper()
	data, err := r.Serialize()
	require.NoError(t, err)
	got, err := Deserialize(data)
	require.NoError(t, err)
	gotData, err := got.Serialize()
	require.NoError(t, err)
	assert.Equal(t, data, gotData)
}

// TestQuerySerializationRoundTrip is testable property #4 for Query.
func TestQuerySerializationRoundTrip(t *testing.T) {
	box := NewRangeQueryBox("q1", "R", shape.MBR{MinX: 1, MinY: 2, MaxX: 3, MaxY: 4})
	roundTripQuery(t, box)

	poly := NewRangeQueryPolygon("q2", "R", []shape.Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}})
	roundTripQuery(t, poly)

	knn, err := NewKNNQuery("q3", "R", shape.Point{X: 1, Y: 2}, 5)
	require.NoError(t, err)
	roundTripQuery(t, knn)

	join := NewJoinQuery("q4", "R", "S", PredicateCovers)
	roundTripQuery(t, join)

	dj, err := NewDistanceJoinQuery("q5", "R", "S", 2.5)
	require.NoError(t, err)
	roundTripQuery(t, dj)
}

func roundTripQuery(t *testing.T, q Query) {
	t.Helper()
	data, err := q.Serialize()
	require.NoError(t, err)
	got, err := DeserializeQuery(data)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}
