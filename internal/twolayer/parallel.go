package twolayer

import (
	"sync"

	"github.com/arxgeo/geodist/internal/dataset"
)

// Pair is a candidate (R, S) record-id pair, the unit the reduction below
// accumulates before the caller deduplicates into its chosen result
// container (the sweep already guarantees uniqueness; Pair is a plain
// carrier, not a signal that dedup is still required).
type Pair struct {
	R, S int64
}

// JoinParallel partitions r's fine partition list across threads
// partitions of roughly equal size and runs SweepPartition on each
// thread's share, with each goroutine accumulating into a private slice
//. The returned error, if non-nil, is the first error onPair raised,
// taken in thread order; on error the remaining partitions still finish (cancellation of
// in-flight partitions isn't meaningful here since SweepPartition itself
// cannot fail — reserved for callers that plug refinement into emit and
// want the same cancel-on-first-error contract as the sequential sweep).
func JoinParallel(r, s *dataset.Dataset, threads int, onPair func(Pair) error) ([]Pair, error) {
	ids := r.FinePartitionIDs()
	if threads < 1 {
		threads = 1
	}
	if threads > len(ids) {
		threads = len(ids)
	}
	if threads == 0 {
		return nil, nil
	}

	results := make([][]Pair, threads)
	errs := make([]error, threads)
	var wg sync.WaitGroup

	chunk := (len(ids) + threads - 1) / threads
	for t := 0; t < threads; t++ {
		lo := t * chunk
		hi := lo + chunk
		if hi > len(ids) {
			hi = len(ids)
		}
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(t, lo, hi int) {
			defer wg.Done()
			var local []Pair
			for _, pid := range ids[lo:hi] {
				rPart := r.TwoLayer[pid]
				sPart := s.TwoLayer[pid]
				if sPart == nil {
					sPart = emptyPartition
				}
				SweepPartition(rPart, sPart, r, s, func(rID, sID int64) {
					p := Pair{R: rID, S: sID}
					if onPair != nil {
						if err := onPair(p); err != nil && errs[t] == nil {
							errs[t] = err
						}
					}
					local = append(local, p)
				})
			}
			results[t] = local
		}(t, lo, hi)
	}
	wg.Wait()

	var merged []Pair
	for t, local := range results {
		merged = append(merged, local...)
		if errs[t] != nil {
			return merged, errs[t]
		}
	}
	return merged, nil
}
