package query

import (
	"bytes"

	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// topoRelationCount is the number of shape.TopologyRelation values; the
// histogram is a fixed-size array indexed by that enum rather than a map,
// since the bucket set is closed.
const topoRelationCount = int(shape.TopoDisjoint) + 1

// TopologyHistogram is the find-relation join result container: per-relation
// counts over {equal, inside, contains, covers, covered-by, meet, intersect,
// disjoint}.
type TopologyHistogram struct {
	counts [topoRelationCount]int64
}

// NewTopologyHistogram returns a zeroed histogram.
func NewTopologyHistogram() *TopologyHistogram {
	return &TopologyHistogram{}
}

// Add increments rel's bucket.
func (h *TopologyHistogram) Add(rel shape.TopologyRelation) {
	h.counts[rel]++
}

// CountOf returns rel's bucket value.
func (h *TopologyHistogram) CountOf(rel shape.TopologyRelation) int64 {
	return h.counts[rel]
}

func (h *TopologyHistogram) Merge(other Result) error {
	o, ok := other.(*TopologyHistogram)
	if !ok {
		return dberr.New(dberr.CodeQuery, "cannot merge non-TopologyHistogram result into TopologyHistogram")
	}
	for i := range h.counts {
		h.counts[i] += o.counts[i]
	}
	return nil
}

// Count returns the total number of pairs counted across every bucket,
// getResultCount's reading for a histogram result.
func (h *TopologyHistogram) Count() int {
	var total int64
	for _, c := range h.counts {
		total += c
	}
	return int(total)
}

func (h *TopologyHistogram) QueryType() Type { return TypeJoin }

func (h *TopologyHistogram) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(tagTopologyHistogram))
	for _, c := range h.counts {
		writeInt64(&buf, c)
	}
	return buf.Bytes(), nil
}

func deserializeTopologyHistogram(data []byte) (*TopologyHistogram, error) {
	r := bytes.NewReader(data)
	h := NewTopologyHistogram()
	for i := range h.counts {
		c, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		h.counts[i] = c
	}
	return h, nil
}
