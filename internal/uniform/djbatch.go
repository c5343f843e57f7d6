package uniform

import (
	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/shape"
)

// EvaluateForeignRShapes evaluates border R shapes received from a peer
// (the sending node's dilated MBR reached one of this node's owned
// cells) against this node's local S data, emitting every pair within
// dist. Used during the distance-join traffic phase.
func EvaluateForeignRShapes(foreignR map[int64]*shape.Shape, localS *dataset.Dataset, dist float64, emit PairEmitter) {
	for rID, rObj := range foreignR {
		for _, sID := range allRecIDs(localS) {
			sObj := localS.Get(sID)
			if rObj.Distance(centerOf(sObj)) <= dist {
				emit(rID, sID)
			}
		}
	}
}

// EvaluateForeignSShapes is EvaluateForeignRShapes with roles reversed.
func EvaluateForeignSShapes(foreignS map[int64]*shape.Shape, localR *dataset.Dataset, dist float64, emit PairEmitter) {
	for sID, sObj := range foreignS {
		for _, rID := range allRecIDs(localR) {
			rObj := localR.Get(rID)
			if rObj.Distance(centerOf(sObj)) <= dist {
				emit(rID, sID)
			}
		}
	}
}
