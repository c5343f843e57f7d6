// Package refine provides the geometric refinement and APRIL
// intermediate-filter contracts. Both are external collaborators with
// only their interfaces specified, but the engine ships a
// working default so range queries, topology joins, and distance joins
// produce exact answers without a separate raster or refinement service
// wired in. Anything implementing these interfaces (a raster-backed
// APRIL filter, a CGO binding to a production geometry library) can be
// substituted without touching the index or query packages.
package refine

import "github.com/arxgeo/geodist/internal/shape"

// Refiner evaluates exact geometric predicates over a candidate's actual
// coordinate sequence, the step that follows the MBR filter kernel once
// a candidate pair or window match needs a non-MBR answer.
type Refiner interface {
	// IntersectsWindow reports whether candidate actually intersects an
	// axis-aligned window (used by boundary partitions in a box range
	// query).
	IntersectsWindow(candidate *shape.Shape, window shape.MBR) bool

	// IntersectsPolygon reports whether candidate intersects an arbitrary
	// polygon window (every candidate partition is "partial" for a
	// polygon window).
	IntersectsPolygon(candidate *shape.Shape, window []shape.Point) bool

	// Relate resolves the exact topological relation between r and s. The
	// sweep kernel only calls this when relateMBRs's coarse classification
	// (shape.Relation) is not already decisive: RelCross is forwarded as
	// shape.TopoIntersect without reaching here; EQUAL/R-in-S/S-in-R and
	// INTERSECT all require the exact refinement this method performs.
	Relate(r, s *shape.Shape) shape.TopologyRelation
}

// Default is a coordinate-based Refiner sufficient for Point/Box/simple
// polygon data: it does not depend on APRIL or any external geometry
// library. Production deployments with curved or self-intersecting
// geometry can swap this for a CGO-backed implementation.
type Default struct{}

func (Default) IntersectsWindow(candidate *shape.Shape, window shape.MBR) bool {
	for _, c := range candidate.Coordinates {
		if window.Contains(c.X, c.Y) {
			return true
		}
	}
	return candidate.MBR.Intersects(window)
}

func (Default) IntersectsPolygon(candidate *shape.Shape, window []shape.Point) bool {
	for _, c := range candidate.Coordinates {
		if pointInPolygon(c, window) {
			return true
		}
	}
	for _, c := range window {
		if candidate.MBR.Contains(c.X, c.Y) {
			return true
		}
	}
	return false
}

// Relate approximates the exact topological predicate from coordinate
// containment against the other shape's MBR. It is coordinate-sequence
// based rather than a full DE-9IM evaluation, sufficient for the point,
// box, and simple (non-self-intersecting) polygon data this engine
// targets; a production deployment with curved or self-intersecting
// geometry substitutes a real geometry library here.
func (d Default) Relate(r, s *shape.Shape) shape.TopologyRelation {
	if !r.MBR.Intersects(s.MBR) {
		return shape.TopoDisjoint
	}

	sInR, sTouchesR := allWithin(s, r.MBR)
	rInS, rTouchesS := allWithin(r, s.MBR)

	switch {
	case rInS && sInR:
		return shape.TopoEqual
	case sInR && !sTouchesR:
		return shape.TopoContains
	case sInR:
		return shape.TopoCovers
	case rInS && !rTouchesS:
		return shape.TopoInside
	case rInS:
		return shape.TopoCoveredBy
	}

	if touchesOnly(r.MBR, s.MBR) {
		return shape.TopoMeet
	}
	return shape.TopoIntersect
}

// allWithin reports whether every coordinate of candidate falls inside
// bound (within == true), and whether any of those coordinates lies on
// bound's boundary rather than strictly interior (touches == true).
func allWithin(candidate *shape.Shape, bound shape.MBR) (within, touches bool) {
	within = true
	for _, c := range candidate.Coordinates {
		if !bound.Contains(c.X, c.Y) {
			return false, false
		}
		onEdge := nearly(c.X, bound.MinX) || nearly(c.X, bound.MaxX) ||
			nearly(c.Y, bound.MinY) || nearly(c.Y, bound.MaxY)
		if onEdge {
			touches = true
		}
	}
	return within, touches
}

func nearly(a, b float64) bool {
	d := a - b
	return d > -shape.Epsilon && d < shape.Epsilon
}

// touchesOnly reports whether r and s share only boundary, with no
// interior overlap on either axis.
func touchesOnly(r, s shape.MBR) bool {
	xTouch := nearly(r.MaxX, s.MinX) || nearly(r.MinX, s.MaxX)
	yTouch := nearly(r.MaxY, s.MinY) || nearly(r.MinY, s.MaxY)
	xOverlap := r.MinX < s.MaxX && s.MinX < r.MaxX
	yOverlap := r.MinY < s.MaxY && s.MinY < r.MaxY
	return (xTouch && !xOverlap) || (yTouch && !yOverlap)
}

// pointInPolygon is the standard ray-casting test over a closed ring.
func pointInPolygon(p shape.Point, ring []shape.Point) bool {
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		pi, pj := ring[i], ring[j]
		if (pi.Y > p.Y) != (pj.Y > p.Y) &&
			p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X {
			inside = !inside
		}
	}
	return inside
}

// AprilFilter is the intermediate raster-approximation filter's
// entry-point contract. Evaluate returns
// decided=false when the raster approximation cannot resolve the
// predicate and refinement must still run.
type AprilFilter interface {
	Evaluate(rSection, sSection int64, r, s *shape.Shape) (decided bool, intersects bool)
}

// Disabled is the default AprilFilter: it never decides, so the pipeline
// always falls through to Refiner. Matches Pipeline.IFilter=0.
type Disabled struct{}

func (Disabled) Evaluate(_, _ int64, _, _ *shape.Shape) (bool, bool) { return false, false }
