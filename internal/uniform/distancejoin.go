package uniform

import (
	"sync"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/partitioning"
	"github.com/arxgeo/geodist/internal/shape"
)

// centerOf returns the representative point used for distance
// computation: the single coordinate for point data, the MBR center
// otherwise — the same rule shape.Shape.Distance applies from the other
// side of the comparison.
func centerOf(s *shape.Shape) shape.Point {
	if len(s.Coordinates) == 1 {
		return s.Coordinates[0]
	}
	return shape.Point{X: (s.MBR.MinX + s.MBR.MaxX) / 2, Y: (s.MBR.MinY + s.MBR.MaxY) / 2}
}

// BorderMap maps a remote node rank to the recIDs that must be shipped
// there during the distance-join traffic phase.
type BorderMap map[int32][]int64

func (b BorderMap) add(rank int32, recID int64) {
	b[rank] = append(b[rank], recID)
}

func merge(dst, src BorderMap) {
	for rank, ids := range src {
		dst[rank] = append(dst[rank], ids...)
	}
}

// PairEmitter receives a locally resolved (rRecID, sRecID) pair. The
// caller's IdPairSet result container deduplicates, so both local
// evaluation passes below may legitimately emit the same pair twice
//.
type PairEmitter func(rRecID, sRecID int64)

// DistanceJoinLocal evaluates everything resolvable from this node's own
// locally loaded partitions of r and s, and returns the border maps of
// shapes whose dilated MBR reaches a remote-owned cell — for each
// dataset role separately, since R border shapes must ship to feed a
// remote worker's S-side local data and vice versa.
//
// It scans every recID of r and s on the calling goroutine;
// DistanceJoinLocalParallel is the multi-goroutine form.
func DistanceJoinLocal(r, s *dataset.Dataset, method *partitioning.Method, localNode int32, dist float64, emit PairEmitter) (borderR, borderS BorderMap, err error) {
	borderR, borderS = BorderMap{}, BorderMap{}

	scan := func(from, into *dataset.Dataset, border BorderMap, fromIsR bool) error {
		for _, recID := range allRecIDs(from) {
			obj := from.Get(recID)
			cells, cerr := method.OverlappingPartitionOffsets(obj.MBR.Dilate(dist))
			if cerr != nil {
				return cerr
			}
			for _, c := range cells {
				pid := method.FinePartitionID(c)
				owner := method.NodeForFinePartition(pid)
				if owner != localNode {
					border.add(owner, recID)
					continue
				}
				for _, otherID := range into.Uniform[pid] {
					otherObj := into.Get(otherID)
					if obj.Distance(centerOf(otherObj)) <= dist {
						if fromIsR {
							emit(recID, otherID)
						} else {
							emit(otherID, recID)
						}
					}
				}
			}
		}
		return nil
	}

	if err := scan(r, s, borderR, true); err != nil {
		return nil, nil, err
	}
	if err := scan(s, r, borderS, false); err != nil {
		return nil, nil, err
	}
	return borderR, borderS, nil
}

// DistanceJoinLocalParallel runs DistanceJoinLocal's R-side and S-side
// scans across a bounded thread pool, one goroutine per chunk of recIDs,
// each accumulating into a thread-local result and border map merged
// serially afterward.
func DistanceJoinLocalParallel(r, s *dataset.Dataset, method *partitioning.Method, localNode int32, dist float64, threads int, emit PairEmitter) (borderR, borderS BorderMap, err error) {
	if threads < 1 {
		threads = 1
	}

	type scanResult struct {
		pairs  []pair
		border BorderMap
		err    error
	}

	runSide := func(from, into *dataset.Dataset, fromIsR bool) scanResult {
		ids := allRecIDs(from)
		chunks := chunk(ids, threads)
		results := make([]scanResult, len(chunks))
		var wg sync.WaitGroup
		for i, c := range chunks {
			wg.Add(1)
			go func(i int, ids []int64) {
				defer wg.Done()
				local := scanResult{border: BorderMap{}}
				for _, recID := range ids {
					obj := from.Get(recID)
					cells, cerr := method.OverlappingPartitionOffsets(obj.MBR.Dilate(dist))
					if cerr != nil {
						local.err = cerr
						return
					}
					for _, c := range cells {
						pid := method.FinePartitionID(c)
						owner := method.NodeForFinePartition(pid)
						if owner != localNode {
							local.border.add(owner, recID)
							continue
						}
						for _, otherID := range into.Uniform[pid] {
							otherObj := into.Get(otherID)
							if obj.Distance(centerOf(otherObj)) <= dist {
								if fromIsR {
									local.pairs = append(local.pairs, pair{recID, otherID})
								} else {
									local.pairs = append(local.pairs, pair{otherID, recID})
								}
							}
						}
					}
				}
				results[i] = local
			}(i, c)
		}
		wg.Wait()

		merged := scanResult{border: BorderMap{}}
		for _, r := range results {
			merged.pairs = append(merged.pairs, r.pairs...)
			merge(merged.border, r.border)
			if r.err != nil && merged.err == nil {
				merged.err = r.err
			}
		}
		return merged
	}

	rResult := runSide(r, s, true)
	if rResult.err != nil {
		return nil, nil, rResult.err
	}
	sResult := runSide(s, r, false)
	if sResult.err != nil {
		return nil, nil, sResult.err
	}
	for _, p := range rResult.pairs {
		emit(p.r, p.s)
	}
	for _, p := range sResult.pairs {
		emit(p.r, p.s)
	}
	return rResult.border, sResult.border, nil
}

type pair struct{ r, s int64 }

func chunk(ids []int64, threads int) [][]int64 {
	if threads > len(ids) {
		threads = len(ids)
	}
	if threads == 0 {
		return nil
	}
	size := (len(ids) + threads - 1) / threads
	var chunks [][]int64
	for i := 0; i < len(ids); i += size {
		end := i + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[i:end])
	}
	return chunks
}

func allRecIDs(ds *dataset.Dataset) []int64 {
	var ids []int64
	for _, pid := range sortedPartitionIDs(ds) {
		ids = append(ids, ds.Shapes(pid)...)
	}
	return ids
}
