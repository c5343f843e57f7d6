package query

import (
	"time"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/metrics"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/refine"
	"github.com/arxgeo/geodist/internal/shape"
	"github.com/arxgeo/geodist/internal/twolayer"
	"github.com/arxgeo/geodist/internal/uniform"
)

func observeQueryDuration(typ Type, start time.Time) {
	if metrics.Default == nil {
		return
	}
	metrics.Default.QueryDuration.WithLabelValues(typ.String()).Observe(time.Since(start).Seconds())
}

// EvaluateRange runs q (a range query) against ds, dispatching on whether
// q carries a box window or a polygon window.
func EvaluateRange(q Query, ds *dataset.Dataset, method *partitioning.Method, refiner refine.Refiner) (*IdSet, error) {
	if q.Type() != TypeRange {
		return nil, dberr.New(dberr.CodeQuery, "EvaluateRange requires a range query")
	}
	defer observeQueryDuration(TypeRange, time.Now())
	result := NewIdSet()
	emit := func(id int64) { result.Add(id) }

	if poly := q.Polygon(); len(poly) > 0 {
		if err := uniform.RangeQueryPolygon(ds, method, poly, refiner, emit); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := uniform.RangeQueryBox(ds, method, q.Window(), refiner, emit); err != nil {
		return nil, err
	}
	return result, nil
}

// EvaluateKNN runs q (a kNN query) against ds.
func EvaluateKNN(q Query, ds *dataset.Dataset, method *partitioning.Method) (*KNNHeap, error) {
	if q.Type() != TypeKNN {
		return nil, dberr.New(dberr.CodeQuery, "EvaluateKNN requires a kNN query")
	}
	defer observeQueryDuration(TypeKNN, time.Now())
	heap := NewKNNHeap(q.K())
	uniform.KNN(ds, method, q.Point(), heap)
	return heap, nil
}

// EvaluateJoin runs the two-layer sweep kernel between r and s under
// q.Predicate(), producing either a TopologyHistogram (FindRelation) or an
// IdPairSet (every other predicate, including the no-refinement
// Intersects fast path). This mirrors the pair-emission rule:
// a sweep hit that is already RelCross at the MBR level never reaches the
// refiner.
func EvaluateJoin(q Query, r, s *dataset.Dataset, refiner refine.Refiner, april refine.AprilFilter) (Result, error) {
	if q.Type() != TypeJoin {
		return nil, dberr.New(dberr.CodeQuery, "EvaluateJoin requires a join query")
	}
	defer observeQueryDuration(TypeJoin, time.Now())

	if q.Predicate() == PredicateIntersects {
		pairs := NewIdPairSet()
		twolayer.Join(r, s, func(rID, sID int64) { pairs.Add(rID, sID) })
		return pairs, nil
	}

	if q.Predicate() == PredicateFindRelation {
		hist := NewTopologyHistogram()
		var firstErr error
		twolayer.Join(r, s, func(rID, sID int64) {
			if firstErr != nil {
				return
			}
			rel, err := resolveTopology(r.Get(rID), s.Get(sID), refiner, april, rID, sID)
			if err != nil {
				firstErr = err
				return
			}
			hist.Add(rel)
		})
		if firstErr != nil {
			return nil, firstErr
		}
		return hist, nil
	}

	pairs := NewIdPairSet()
	var firstErr error
	twolayer.Join(r, s, func(rID, sID int64) {
		if firstErr != nil {
			return
		}
		rel, err := resolveTopology(r.Get(rID), s.Get(sID), refiner, april, rID, sID)
		if err != nil {
			firstErr = err
			return
		}
		if predicateMatches(rel, q.Predicate()) {
			pairs.Add(rID, sID)
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return pairs, nil
}

// resolveTopology applies the short circuit: a RelCross MBR
// relation is already proof of geometric intersection and is recorded as
// TopoIntersect without reaching APRIL or the refiner. Every other MBR
// relation is forwarded to the intermediate filter first, falling
// through to exact refinement only when APRIL does not decide.
func resolveTopology(r, s *shape.Shape, refiner refine.Refiner, april refine.AprilFilter, rSection, sSection int64) (shape.TopologyRelation, error) {
	if shape.RelateMBRs(r.MBR, s.MBR) == shape.RelCross {
		return shape.TopoIntersect, nil
	}
	if april != nil {
		if decided, intersects := april.Evaluate(rSection, sSection, r, s); decided {
			if intersects {
				return shape.TopoIntersect, nil
			}
			return shape.TopoDisjoint, nil
		}
	}
	rel := refiner.Relate(r, s)
	if rel == shape.TopoDisjoint {
		metrics.RecordRefinement("reject")
	} else {
		metrics.RecordRefinement("match")
	}
	return rel, nil
}

// EvaluateDistanceJoinLocal runs the local half of a distance join:
// everything resolvable from r and s's locally loaded
// partitions goes straight into the returned IdPairSet; shapes whose
// dilated MBR reaches a remote-owned cell are reported via the border
// maps for the host-orchestrated traffic phase.
func EvaluateDistanceJoinLocal(q Query, r, s *dataset.Dataset, method *partitioning.Method, localNode int32, threads int) (*IdPairSet, uniform.BorderMap, uniform.BorderMap, error) {
	if q.Type() != TypeDistanceJoin {
		return nil, nil, nil, dberr.New(dberr.CodeQuery, "EvaluateDistanceJoinLocal requires a distance join query")
	}
	defer observeQueryDuration(TypeDistanceJoin, time.Now())
	pairs := NewIdPairSet()
	emit := func(rID, sID int64) { pairs.Add(rID, sID) }

	var borderR, borderS uniform.BorderMap
	var err error
	if threads > 1 {
		borderR, borderS, err = uniform.DistanceJoinLocalParallel(r, s, method, localNode, q.Distance(), threads, emit)
	} else {
		borderR, borderS, err = uniform.DistanceJoinLocal(r, s, method, localNode, q.Distance(), emit)
	}
	if err != nil {
		return nil, nil, nil, err
	}
	return pairs, borderR, borderS, nil
}

// EvaluateDistanceJoinBatch folds a received border batch into pairs, the
// "Receive-batch" sub-state of the distance-join state machine.
func EvaluateDistanceJoinBatch(q Query, foreignR, foreignS map[int64]*shape.Shape, localR, localS *dataset.Dataset, pairs *IdPairSet) {
	if len(foreignR) > 0 {
		uniform.EvaluateForeignRShapes(foreignR, localS, q.Distance(), func(rID, sID int64) { pairs.Add(rID, sID) })
	}
	if len(foreignS) > 0 {
		uniform.EvaluateForeignSShapes(foreignS, localR, q.Distance(), func(rID, sID int64) { pairs.Add(rID, sID) })
	}
}
