package geometry

import "math"

// PolygonArea returns the unsigned area of a simple polygon (shoelace formula).
func PolygonArea(polygon []Point2D) float64 {
	if len(polygon) < 3 {
		return 0
	}
	var sum float64
	n := len(polygon)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += polygon[i].X*polygon[j].Y - polygon[j].X*polygon[i].Y
	}
	return math.Abs(sum) / 2
}

// PolylineLength returns the summed segment length of an open polyline.
// When closed is true the segment from the last point back to the first is included.
func PolylineLength(points []Point2D, closed bool) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(points); i++ {
		total += points[i-1].Distance(points[i])
	}
	if closed && len(points) > 2 {
		total += points[len(points)-1].Distance(points[0])
	}
	return total
}

// EllipsePerimeter approximates the perimeter of an ellipse (Ramanujan II).
func EllipsePerimeter(rx, ry float64) float64 {
	if rx == ry {
		return 2 * math.Pi * rx
	}
	h := (rx - ry) * (rx - ry) / ((rx + ry) * (rx + ry))
	return math.Pi * (rx + ry) * (1 + 3*h/(10+math.Sqrt(4-3*h)))
}

// DistanceToSegment returns the shortest distance from p to the segment a-b.
func DistanceToSegment(p, a, b Point2D) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return p.Distance(a)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return p.Distance(Point2D{X: a.X + t*dx, Y: a.Y + t*dy})
}

// DistanceToPolyline returns the shortest distance from p to any segment of the polyline.
func DistanceToPolyline(p Point2D, points []Point2D, closed bool) float64 {
	switch len(points) {
	case 0:
		return math.Inf(1)
	case 1:
		return p.Distance(points[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(points); i++ {
		best = math.Min(best, DistanceToSegment(p, points[i-1], points[i]))
	}
	if closed && len(points) > 2 {
		best = math.Min(best, DistanceToSegment(p, points[len(points)-1], points[0]))
	}
	return best
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
func PointInPolygon(p Point2D, polygon []Point2D) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// PointInEllipse tests if a point lies inside an axis-aligned ellipse.
func PointInEllipse(p, center Point2D, rx, ry float64) bool {
	if rx <= 0 || ry <= 0 {
		return false
	}
	dx := (p.X - center.X) / rx
	dy := (p.Y - center.Y) / ry
	return dx*dx+dy*dy <= 1
}

// RotateAround rotates p by radians around the pivot.
func RotateAround(p, pivot Point2D, radians float64) Point2D {
	return Translation(pivot.X, pivot.Y).
		Compose(Rotation(radians)).
		Compose(Translation(-pivot.X, -pivot.Y)).
		Apply(p)
}
