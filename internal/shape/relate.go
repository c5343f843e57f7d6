package shape

// Relation classifies how two MBRs relate to each other.
// relateMBRs returns exactly one of these for any pair whose MBRs are not
// strictly disjoint.
type Relation int

const (
	RelEqual Relation = iota
	RelRInS           // R's MBR lies inside S's
	RelSInR           // S's MBR lies inside R's
	RelCross          // boundaries cross; proof of geometric intersection
	RelIntersect
)

// RelateMBRs computes the four signed deltas between the corners of r and
// s and classifies the relationship using Epsilon for equality comparisons.
// Callers must first confirm the MBRs are not strictly disjoint (r.Intersects(s));
// RelateMBRs does not itself test disjointness.
func RelateMBRs(r, s MBR) Relation {
	dxmin := r.MinX - s.MinX
	dymin := r.MinY - s.MinY
	dxmax := r.MaxX - s.MaxX
	dymax := r.MaxY - s.MaxY

	eq := func(v float64) bool { return v > -Epsilon && v < Epsilon }

	if eq(dxmin) && eq(dymin) && eq(dxmax) && eq(dymax) {
		return RelEqual
	}
	// R inside S: R's min corner is >= S's, R's max corner is <= S's.
	if dxmin >= -Epsilon && dymin >= -Epsilon && dxmax <= Epsilon && dymax <= Epsilon {
		return RelRInS
	}
	// S inside R: the reverse.
	if dxmin <= Epsilon && dymin <= Epsilon && dxmax >= -Epsilon && dymax >= -Epsilon {
		return RelSInR
	}
	// Boundaries cross on at least one axis in opposing directions: proof
	// of intersection without needing geometric refinement.
	if (dxmin > Epsilon) != (dxmax > Epsilon) || (dymin > Epsilon) != (dymax > Epsilon) {
		return RelCross
	}
	return RelIntersect
}

// TopologyRelation is the exact topological predicate a Refiner resolves
// once relateMBRs's coarse classification is not already decisive
//. Unlike Relation, this is
// asymmetric: Inside(r,s) and Contains(r,s) are distinct buckets, not
// just a relabeling of the same pair.
type TopologyRelation int

const (
	TopoEqual TopologyRelation = iota
	TopoInside
	TopoContains
	TopoCovers
	TopoCoveredBy
	TopoMeet
	TopoIntersect
	TopoDisjoint
)

func (t TopologyRelation) String() string {
	switch t {
	case TopoEqual:
		return "equal"
	case TopoInside:
		return "inside"
	case TopoContains:
		return "contains"
	case TopoCovers:
		return "covers"
	case TopoCoveredBy:
		return "covered-by"
	case TopoMeet:
		return "meet"
	case TopoIntersect:
		return "intersect"
	case TopoDisjoint:
		return "disjoint"
	default:
		return "unknown"
	}
}
