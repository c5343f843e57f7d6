package query

import (
	"bytes"
	"container/heap"

	"github.com/arxgeo/geodist/internal/dberr"
)

type knnEntry struct {
	recID    int64
	distance float64
}

// knnMaxHeap is a max-heap on distance: the root is the current
// k-th-furthest candidate, the one evicted first when a closer candidate
// arrives.
type knnMaxHeap []knnEntry

func (h knnMaxHeap) Len() int            { return len(h) }
func (h knnMaxHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h knnMaxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *knnMaxHeap) Push(x interface{}) { *h = append(*h, x.(knnEntry)) }
func (h *knnMaxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// KNNHeap is the kNN-query result container: a bounded max-heap of size k
// on distance, plus the k-th distance as the uniform-grid scan's pruning
// bound. It implements uniform.DistanceSink directly,
// so it can be passed straight into uniform.KNN.
type KNNHeap struct {
	k int
	h knnMaxHeap
}

// NewKNNHeap returns an empty heap bounded to k entries.
func NewKNNHeap(k int) *KNNHeap {
	return &KNNHeap{k: k}
}

// Offer pushes (recID, distance); if the heap exceeds k afterward, the
// current furthest entry is popped. Implements uniform.DistanceSink.
func (kh *KNNHeap) Offer(recID int64, distance float64) {
	heap.Push(&kh.h, knnEntry{recID, distance})
	if len(kh.h) > kh.k {
		heap.Pop(&kh.h)
	}
}

// KthDistance returns the current furthest (k-th smallest) distance and
// whether the heap already holds k elements. Implements
// uniform.DistanceSink.
func (kh *KNNHeap) KthDistance() (float64, bool) {
	if len(kh.h) < kh.k {
		return 0, false
	}
	return kh.h[0].distance, true
}

func (kh *KNNHeap) Merge(other Result) error {
	o, ok := other.(*KNNHeap)
	if !ok {
		return dberr.New(dberr.CodeQuery, "cannot merge non-KNNHeap result into KNNHeap")
	}
	for _, e := range o.h {
		kh.Offer(e.recID, e.distance)
	}
	return nil
}

func (kh *KNNHeap) Count() int      { return len(kh.h) }
func (kh *KNNHeap) QueryType() Type { return TypeKNN }

// KNNEntry is one exported (recID, distance) pair from a KNNHeap.
type KNNEntry struct {
	RecID    int64
	Distance float64
}

// Entries returns the heap's contents sorted nearest-first.
func (kh *KNNHeap) Entries() []KNNEntry {
	sorted := make(knnMaxHeap, len(kh.h))
	copy(sorted, kh.h)
	// Repeated pop-max walks the copy from furthest to nearest; reverse it.
	out := make([]KNNEntry, len(sorted))
	for i := len(sorted) - 1; i >= 0; i-- {
		e := heap.Pop(&sorted).(knnEntry)
		out[i] = KNNEntry{e.recID, e.distance}
	}
	return out
}

// Serialize writes entries in canonical nearest-first order rather than
// raw heap-array order, so two heaps holding the same k-smallest set
// serialize identically regardless of insertion order (needed for
// mergeResults' commutativity/associativity to be byte-verifiable).
func (kh *KNNHeap) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(tagKNNHeap))
	writeUint32(&buf, uint32(kh.k))
	entries := kh.Entries()
	writeUint32(&buf, uint32(len(entries)))
	for _, e := range entries {
		writeInt64(&buf, e.RecID)
		writeFloat64(&buf, e.Distance)
	}
	return buf.Bytes(), nil
}

func deserializeKNNHeap(data []byte) (*KNNHeap, error) {
	r := bytes.NewReader(data)
	k, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	kh := NewKNNHeap(int(k))
	for i := uint32(0); i < n; i++ {
		id, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		dist, err := readFloat64(r)
		if err != nil {
			return nil, err
		}
		kh.Offer(id, dist)
	}
	return kh, nil
}
