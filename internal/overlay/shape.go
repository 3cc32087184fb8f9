// Package overlay maintains the annotation shapes drawn over a slide: the
// draw/edit state machine, hit-testing, measurement and rendering.
//
// Shape geometry is always stored in image coordinates. Screen coordinates
// are derived from the viewport transform and never kept.
package overlay

import (
	"fmt"
	"image/color"
	"math"
	"strings"

	"slidescope/pkg/colorutil"
	"slidescope/pkg/geometry"
)

// Kind identifies the shape variant.
type Kind int

const (
	KindPoint Kind = iota
	KindRectangle
	KindEllipse
	KindCircle
	KindPolygon
	KindFreehand
	KindLine // ruler
	KindArrow
	KindFlag
)

var kindNames = [...]string{
	KindPoint:     "point",
	KindRectangle: "rectangle",
	KindEllipse:   "ellipse",
	KindCircle:    "circle",
	KindPolygon:   "polygon",
	KindFreehand:  "freehand",
	KindLine:      "line",
	KindArrow:     "arrow",
	KindFlag:      "flag",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k is a known variant.
func (k Kind) Valid() bool {
	return k >= KindPoint && k <= KindFlag
}

// ParseKind returns the kind with the given name. "ruler" is accepted for
// KindLine.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "ruler" {
		return KindLine, nil
	}
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown shape kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown shape kind %d", int(k))
	}
	return []byte(kindNames[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// MinPoints is the number of distinct points a shape of kind k needs.
func (k Kind) MinPoints() int {
	switch k {
	case KindPoint, KindFlag:
		return 1
	case KindRectangle, KindEllipse, KindCircle, KindLine, KindArrow:
		return 2
	case KindPolygon, KindFreehand:
		return 3
	default:
		return math.MaxInt
	}
}

// fixedPoints is the exact stored point count, or 0 for open sequences.
func (k Kind) fixedPoints() int {
	switch k {
	case KindPoint, KindFlag:
		return 1
	case KindRectangle, KindEllipse, KindCircle, KindLine, KindArrow:
		return 2
	default:
		return 0
	}
}

// Closed reports whether shapes of kind k enclose an area.
func (k Kind) Closed() bool {
	switch k {
	case KindRectangle, KindEllipse, KindCircle, KindPolygon, KindFreehand:
		return true
	default:
		return false
	}
}

// Rotatable reports whether k keeps a separate rotation angle. Other kinds
// rotate by moving their points.
func (k Kind) Rotatable() bool {
	return k == KindRectangle || k == KindEllipse
}

// Style is the stroke and fill of a shape. Colors are straight alpha; a
// zero Fill alpha means the shape is not filled. Width is in screen pixels.
type Style struct {
	Stroke color.RGBA
	Fill   color.RGBA
	Width  float64
}

// DefaultStyle is applied to shapes created without a style.
func DefaultStyle() Style {
	return Style{Stroke: colorutil.Cyan, Width: 2}
}

func (s Style) isZero() bool {
	return s == Style{}
}

// Shape is one annotation. Points are in image coordinates; their meaning
// depends on Kind:
//
//	Point, Flag                one position
//	Rectangle, Ellipse, Circle two opposite corners of the bounding box
//	Line, Arrow                start and end
//	Polygon, Freehand          the vertices of a closed ring
//
// Rectangles and ellipses additionally rotate by Rotation degrees around
// their center. A circle's radius is half the larger side of its box.
type Shape struct {
	ID       string
	Kind     Kind
	Points   []geometry.Point2D
	Rotation float64
	Style    Style
	Label    string
	// Order overrides insertion order for z-ordering when non-zero; higher
	// values are drawn later.
	Order int

	Selected bool
	Locked   bool
	Hidden   bool

	measure *Measurement
}

// Clone returns a deep copy of s.
func (s Shape) Clone() Shape {
	s.Points = append([]geometry.Point2D(nil), s.Points...)
	if s.measure != nil {
		m := *s.measure
		s.measure = &m
	}
	return s
}

// validate checks the geometry against the kind's requirements.
func (s *Shape) validate() error {
	if !s.Kind.Valid() {
		return invalidf("unknown kind %d", int(s.Kind))
	}
	for _, p := range s.Points {
		if math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsInf(p.X, 0) || math.IsInf(p.Y, 0) {
			return invalidf("non-finite coordinate in %s", s.Kind)
		}
	}
	if math.IsNaN(s.Rotation) || math.IsInf(s.Rotation, 0) {
		return invalidf("non-finite rotation")
	}
	if n := s.Kind.fixedPoints(); n > 0 && len(s.Points) != n {
		return invalidf("%s needs exactly %d points, got %d", s.Kind, n, len(s.Points))
	}
	if got := len(distinctPoints(s.Points, s.Kind.Closed())); got < s.Kind.MinPoints() {
		return invalidf("%s needs %d distinct points, got %d", s.Kind, s.Kind.MinPoints(), got)
	}
	return nil
}

// distinctPoints drops consecutive duplicates, and for closed rings a last
// point equal to the first.
func distinctPoints(pts []geometry.Point2D, closed bool) []geometry.Point2D {
	out := make([]geometry.Point2D, 0, len(pts))
	for _, p := range pts {
		if len(out) > 0 && out[len(out)-1].Near(p, 1e-9) {
			continue
		}
		out = append(out, p)
	}
	if closed && len(out) > 1 && out[0].Near(out[len(out)-1], 1e-9) {
		out = out[:len(out)-1]
	}
	return out
}

// Center is the rotation pivot of the shape.
func (s *Shape) Center() geometry.Point2D {
	switch s.Kind {
	case KindRectangle, KindEllipse, KindCircle:
		if len(s.Points) == 2 {
			return s.Points[0].Add(s.Points[1]).Scale(0.5)
		}
	}
	return geometry.BoundingBox(s.Points).Center()
}

func (s *Shape) radians() float64 {
	if !s.Kind.Rotatable() {
		return 0
	}
	return s.Rotation * math.Pi / 180
}

// box is the unrotated bounding box spanned by the two defining corners.
func (s *Shape) box() geometry.Rect {
	if len(s.Points) < 2 {
		return geometry.Rect{}
	}
	return geometry.RectFromCorners(s.Points[0], s.Points[1])
}

func (s *Shape) circle() (center geometry.Point2D, radius float64) {
	b := s.box()
	return b.Center(), math.Max(b.Width, b.Height) / 2
}

// Outline returns the shape's boundary in image coordinates with rotation
// applied. Ellipses and circles are flattened to segments.
func (s *Shape) Outline() []geometry.Point2D {
	switch s.Kind {
	case KindRectangle:
		c := s.box().Corners()
		return s.rotated(c[:])
	case KindEllipse:
		b := s.box()
		return s.rotated(geometry.EllipsePoints(b.Center(), b.Width/2, b.Height/2, 72))
	case KindCircle:
		c, r := s.circle()
		return geometry.EllipsePoints(c, r, r, 72)
	default:
		return append([]geometry.Point2D(nil), s.Points...)
	}
}

func (s *Shape) rotated(pts []geometry.Point2D) []geometry.Point2D {
	rad := s.radians()
	if rad == 0 {
		return pts
	}
	c := s.Center()
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = geometry.RotateAround(p, c, rad)
	}
	return out
}

// Handles are the draggable vertex positions in image coordinates, indexed
// like Points.
func (s *Shape) Handles() []geometry.Point2D {
	return s.rotated(append([]geometry.Point2D(nil), s.Points...))
}

// Bounds is the axis-aligned image-space box around the shape.
func (s *Shape) Bounds() geometry.Rect {
	return geometry.BoundingBox(s.Outline())
}

// setPoints replaces the geometry and drops the measurement cache.
func (s *Shape) setPoints(pts []geometry.Point2D, rotation float64) {
	s.Points = pts
	s.Rotation = rotation
	s.measure = nil
}

// withVertex returns the points after moving vertex i to the image-space
// position p. For rotated boxes the opposite corner stays fixed on screen.
func (s *Shape) withVertex(i int, p geometry.Point2D) ([]geometry.Point2D, error) {
	if i < 0 || i >= len(s.Points) {
		return nil, invalidf("vertex %d out of range for %s with %d points", i, s.Kind, len(s.Points))
	}
	pts := append([]geometry.Point2D(nil), s.Points...)
	rad := s.radians()
	if len(pts) != 2 || rad == 0 || !s.Kind.Rotatable() {
		pts[i] = p
		return pts, nil
	}
	opposite := geometry.RotateAround(pts[1-i], s.Center(), rad)
	c := opposite.Add(p).Scale(0.5)
	pts[i] = geometry.RotateAround(p, c, -rad)
	pts[1-i] = geometry.RotateAround(opposite, c, -rad)
	return pts, nil
}

// translated returns the points moved by d.
func translated(pts []geometry.Point2D, d geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(pts))
	for i, p := range pts {
		out[i] = p.Add(d)
	}
	return out
}
