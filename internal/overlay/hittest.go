package overlay

import (
	"math"

	"slidescope/pkg/geometry"
)

// hits reports whether image point q is inside s or within tol of its stroke.
func hits(s *Shape, q geometry.Point2D, tol float64) bool {
	switch s.Kind {
	case KindPoint, KindFlag:
		return q.Distance(s.Points[0]) <= tol
	case KindLine, KindArrow:
		return geometry.DistanceToSegment(q, s.Points[0], s.Points[1]) <= tol
	case KindRectangle:
		local := geometry.RotateAround(q, s.Center(), -s.radians())
		return s.box().Inflate(tol).Contains(local)
	case KindEllipse:
		local := geometry.RotateAround(q, s.Center(), -s.radians())
		b := s.box()
		return geometry.PointInEllipse(local, b.Center(), b.Width/2+tol, b.Height/2+tol)
	case KindCircle:
		c, r := s.circle()
		return q.Distance(c) <= r+tol
	case KindPolygon, KindFreehand:
		return geometry.PointInPolygon(q, s.Points) ||
			geometry.DistanceToPolyline(q, s.Points, true) <= tol
	default:
		return false
	}
}

// vertexAt returns the index of the handle nearest q within tol, or -1.
func vertexAt(s *Shape, q geometry.Point2D, tol float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, h := range s.Handles() {
		if d := q.Distance(h); d <= tol && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
