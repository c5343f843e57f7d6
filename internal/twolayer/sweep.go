// Package twolayer implements the MBR filter kernel: the two-layer plane
// sweep over a common fine partition between two sealed datasets. The
// nine (outer, inner, variant) table is the load-bearing
// part of the whole join — a wrong entry here either duplicates or
// misses pairs.
package twolayer

import (
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/metrics"
)

// PairEmitter receives one candidate pair in (R, S) order. The caller
// (package query) decides what to do with it: forward it directly for
// intersection-style joins, or run relateMBRs/refinement for
// topology-relation joins.
type PairEmitter func(rRecID, sRecID int64)

// sweepYOverlap is the shared sweep primitive behind all five named
// variants. Both id lists must already be sealed (sorted by MBR.MinY
// ascending, ties by RecID — dataset.Dataset.BuildTwoLayerIndex
// guarantees this). aIsR selects which side of the pair aIDs represents,
// so the emitted pair always preserves (R, S) order regardless of which
// class list was passed as the sweep's "outer" or "inner" list.
func sweepYOverlap(aIDs, bIDs []int64, aDS, bDS *dataset.Dataset, aIsR bool, emit PairEmitter) {
	for _, aID := range aIDs {
		aObj := aDS.Get(aID)
		for _, bID := range bIDs {
			bObj := bDS.Get(bID)
			if bObj.MBR.MinY > aObj.MBR.MaxY {
				// bIDs is sorted ascending by MinY: once one entry starts
				// above aObj's top edge, every following entry does too.
				break
			}
			if bObj.MBR.MaxY < aObj.MBR.MinY {
				continue
			}
			if aObj.MBR.MinX > bObj.MBR.MaxX || bObj.MBR.MinX > aObj.MBR.MaxX {
				continue
			}
			if aIsR {
				emit(aID, bID)
			} else {
				emit(bID, aID)
			}
		}
	}
}

// sweepRollY_1 handles R.A × S.A: both sides are "owner" class, so either
// may serve as the sweep's outer list; the inner tie-break in the
// classification table is immaterial to the emitted pair set.
func sweepRollY_1(rA, sA []int64, rDS, sDS *dataset.Dataset, emit PairEmitter) {
	sweepYOverlap(rA, sA, rDS, sDS, true, emit)
}

// sweepRollY_2 advances only the non-A side against a fixed A partition:
// used for (S.B, R.A) and (R.B, S.A).
func sweepRollY_2(bIDs []int64, bDS *dataset.Dataset, bIsR bool, aIDs []int64, aDS *dataset.Dataset, emit PairEmitter) {
	sweepYOverlap(bIDs, aIDs, bDS, aDS, bIsR, emit)
}

// sweepRollY_3 handles the (·.A, ·.C) cross-class pairs with an
// x-min-only prune on the C side (the MBR y-overlap test already applied
// by sweepYOverlap subsumes this).
func sweepRollY_3(aIDs []int64, aDS *dataset.Dataset, aIsR bool, cIDs []int64, cDS *dataset.Dataset, emit PairEmitter) {
	sweepYOverlap(aIDs, cIDs, aDS, cDS, aIsR, emit)
}

// sweepRollY_4 handles the (B, C) cross pairs with an x-min prune on the
// advancing side.
func sweepRollY_4(bIDs []int64, bDS *dataset.Dataset, bIsR bool, cIDs []int64, cDS *dataset.Dataset, emit PairEmitter) {
	sweepYOverlap(bIDs, cIDs, bDS, cDS, bIsR, emit)
}

// sweepRollY_5 handles the (D, A) corner pairs with an x-max prune.
func sweepRollY_5(dIDs []int64, dDS *dataset.Dataset, dIsR bool, aIDs []int64, aDS *dataset.Dataset, emit PairEmitter) {
	sweepYOverlap(dIDs, aIDs, dDS, aDS, dIsR, emit)
}

// SweepPartition runs the nine non-redundant class-combination sweeps
// between rPart and sPart, the same fine partition in each dataset's
// two-layer index. This guarantees every intersecting MBR pair is
// emitted exactly once across the whole join, with no deduplication step
// required.
func SweepPartition(rPart, sPart *dataset.Partition, rDS, sDS *dataset.Dataset, emit PairEmitter) {
	var n int
	counted := func(rID, sID int64) {
		n++
		emit(rID, sID)
	}
	sweepRollY_1(rPart.A, sPart.A, rDS, sDS, counted)
	sweepRollY_2(sPart.B, sDS, false, rPart.A, rDS, counted)
	sweepRollY_3(rPart.A, rDS, true, sPart.C, sDS, counted)
	sweepRollY_5(sPart.D, sDS, false, rPart.A, rDS, counted)
	sweepRollY_2(rPart.B, rDS, true, sPart.A, sDS, counted)
	sweepRollY_4(rPart.B, rDS, true, sPart.C, sDS, counted)
	sweepRollY_3(sPart.A, sDS, false, rPart.C, rDS, counted)
	sweepRollY_4(sPart.B, sDS, false, rPart.C, rDS, counted)
	sweepRollY_5(rPart.D, rDS, true, sPart.A, sDS, counted)
	if n > 0 {
		metrics.AddSweepPairs(n)
	}
}

// emptyPartition is substituted when one dataset has no partition for a
// fine cell the other dataset does — the sweep functions handle nil/empty
// class slices as a well-defined no-op.
var emptyPartition = &dataset.Partition{}

// Join runs SweepPartition over every fine partition present in r,
// treating a partition missing from s as empty ("for each
// fine partition present in R for which S also has a (possibly empty)
// partition"). emit is called once per candidate pair, in (R, S) order.
func Join(r, s *dataset.Dataset, emit PairEmitter) {
	for _, pid := range r.FinePartitionIDs() {
		rPart := r.TwoLayer[pid]
		sPart := s.TwoLayer[pid]
		if sPart == nil {
			sPart = emptyPartition
		}
		SweepPartition(rPart, sPart, r, s, emit)
	}
}
