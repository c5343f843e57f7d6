package query

import (
	"bytes"
	"sort"

	"github.com/arxgeo/geodist/internal/dberr"
)

type pairKey struct{ r, s int64 }

// IdPairSet is the join-query result container: unique (recID_R, recID_S)
// pairs with R/S ordering fixed by dataset role.
type IdPairSet struct {
	pairs map[pairKey]struct{}
}

// NewIdPairSet returns an empty IdPairSet.
func NewIdPairSet() *IdPairSet {
	return &IdPairSet{pairs: make(map[pairKey]struct{})}
}

// Add records (rRecID, sRecID), a no-op if already present.
func (p *IdPairSet) Add(rRecID, sRecID int64) {
	p.pairs[pairKey{rRecID, sRecID}] = struct{}{}
}

func (p *IdPairSet) Merge(other Result) error {
	o, ok := other.(*IdPairSet)
	if !ok {
		return dberr.New(dberr.CodeQuery, "cannot merge non-IdPairSet result into IdPairSet")
	}
	for k := range o.pairs {
		p.pairs[k] = struct{}{}
	}
	return nil
}

func (p *IdPairSet) Count() int      { return len(p.pairs) }
func (p *IdPairSet) QueryType() Type { return TypeJoin }

// Pairs returns the set's members in ascending (r,s) order.
func (p *IdPairSet) Pairs() [][2]int64 {
	out := make([][2]int64, 0, len(p.pairs))
	for k := range p.pairs {
		out = append(out, [2]int64{k.r, k.s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

func (p *IdPairSet) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(tagIdPairSet))
	pairs := p.Pairs()
	writeUint32(&buf, uint32(len(pairs)))
	for _, pr := range pairs {
		writeInt64(&buf, pr[0])
		writeInt64(&buf, pr[1])
	}
	return buf.Bytes(), nil
}

func deserializeIdPairSet(data []byte) (*IdPairSet, error) {
	r := bytes.NewReader(data)
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	p := NewIdPairSet()
	for i := uint32(0); i < n; i++ {
		rID, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		sID, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		p.Add(rID, sID)
	}
	return p, nil
}
