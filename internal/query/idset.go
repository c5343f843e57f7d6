package query

import (
	"bytes"
	"sort"

	"github.com/arxgeo/geodist/internal/dberr"
)

// IdSet is the range-query result container: a unique set of recIDs.
type IdSet struct {
	ids map[int64]struct{}
}

// NewIdSet returns an empty IdSet.
func NewIdSet() *IdSet {
	return &IdSet{ids: make(map[int64]struct{})}
}

// Add records recID, a no-op if already present.
func (s *IdSet) Add(recID int64) {
	s.ids[recID] = struct{}{}
}

// Merge unions other into s. Returns DBERR_QUERY if other is not an IdSet.
func (s *IdSet) Merge(other Result) error {
	o, ok := other.(*IdSet)
	if !ok {
		return dberr.New(dberr.CodeQuery, "cannot merge non-IdSet result into IdSet")
	}
	for id := range o.ids {
		s.ids[id] = struct{}{}
	}
	return nil
}

func (s *IdSet) Count() int      { return len(s.ids) }
func (s *IdSet) QueryType() Type { return TypeRange }

// IDs returns the set's members in ascending order.
func (s *IdSet) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (s *IdSet) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(tagIdSet))
	ids := s.IDs()
	writeUint32(&buf, uint32(len(ids)))
	for _, id := range ids {
		writeInt64(&buf, id)
	}
	return buf.Bytes(), nil
}

func deserializeIdSet(data []byte) (*IdSet, error) {
	r := bytes.NewReader(data)
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	s := NewIdSet()
	for i := uint32(0); i < n; i++ {
		id, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		s.Add(id)
	}
	return s, nil
}
