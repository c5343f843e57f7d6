// Package uniform implements the flat, non-class-split grid index used
// for point data and the kNN, range-query, and distance-join drivers
// built over it.
package uniform

import (
	"sort"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/shape"
)

// DistanceSink receives kNN candidates. query.KNNHeap implements this;
// uniform never imports package query directly so the dependency order
// (index layer before query/result types) holds without an import cycle.
type DistanceSink interface {
	Offer(recID int64, distance float64)
	// KthDistance returns the current k-th smallest distance and whether
	// the heap already holds k elements (the pruning bound is only valid
	// once it does).
	KthDistance() (float64, bool)
}

// sortedPartitionIDs returns ds.Uniform's keys in ascending order so scans
// are deterministic for tests; callers must not otherwise rely on order.
func sortedPartitionIDs(ds *dataset.Dataset) []int32 {
	ids := make([]int32, 0)
	for id := range ds.Uniform {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// KNN scans ds's uniform-grid partitions in index order, pruning any
// partition whose minimum distance to q is not better than the sink's
// current k-th distance. Final heap contents land in sink
// in no particular order; sink.Offer performs the O(log k) bounded
// insertion itself.
func KNN(ds *dataset.Dataset, method *partitioning.Method, q shape.Point, sink DistanceSink) {
	for _, pid := range sortedPartitionIDs(ds) {
		cell := method.FineCellOf(pid)
		extent := method.FineCellExtent(cell)
		minDist := extent.MinDistanceToPoint(q.X, q.Y)

		if kth, full := sink.KthDistance(); full && minDist >= kth {
			continue
		}
		for _, recID := range ds.Uniform[pid] {
			obj := ds.Get(recID)
			sink.Offer(recID, obj.Distance(q))
		}
	}
}
