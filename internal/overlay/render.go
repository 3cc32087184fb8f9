package overlay

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"slidescope/pkg/colorutil"
	"slidescope/pkg/geometry"
)

const (
	pointRadiusPx  = 4.0
	handleSizePx   = 6.0
	arrowHeadPx    = 12.0
	flagPolePx     = 18.0
	labelPaddingPx = 3
)

var (
	handleFill  = colorutil.White
	labelBack   = color.RGBA{A: 160}
	labelText   = colorutil.White
	previewTint = uint8(200)
)

// Render draws every visible shape whose bounds intersect view (the visible
// image-space rectangle) onto dst using xf, followed by the in-progress
// drawing and the handles of the edited shape. It returns the number of
// committed shapes drawn; shapes outside view are skipped for this frame.
func (e *Engine) Render(dst *image.RGBA, xf geometry.AffineTransform, view geometry.Rect) int {
	p := newPainter(dst, xf)
	drawn := 0
	for _, s := range e.shapes.zOrdered() {
		if s.Hidden {
			continue
		}
		// Strokes and markers extend beyond the geometry by a few screen pixels.
		slack := (s.Style.Width + flagPolePx) / p.zoom
		if !s.Bounds().Inflate(slack).Intersects(view) {
			continue
		}
		p.shape(s, e.measureFor(s))
		drawn++
	}
	if prev, ok := e.Preview(); ok {
		prev.Style.Stroke = colorutil.WithAlpha(prev.Style.Stroke, previewTint)
		p.shape(&prev, "")
	}
	if s, ok := e.shapes.get(e.selected); ok && !s.Hidden {
		p.handles(s)
	}
	return drawn
}

// measureFor returns the text drawn next to rulers, or "" for other kinds.
func (e *Engine) measureFor(s *Shape) string {
	if s.Kind != KindLine && !(s.Selected && s.Kind.Closed()) {
		return ""
	}
	m, err := e.Measure(s.ID)
	if err != nil {
		return ""
	}
	return m.String()
}

type painter struct {
	dst  *image.RGBA
	xf   geometry.AffineTransform
	zoom float64
	r    *vector.Rasterizer
}

func newPainter(dst *image.RGBA, xf geometry.AffineTransform) *painter {
	b := dst.Bounds()
	z := xf.ScaleFactor()
	if z <= 0 {
		z = 1
	}
	return &painter{dst: dst, xf: xf, zoom: z, r: vector.NewRasterizer(b.Dx(), b.Dy())}
}

func (p *painter) screen(pts []geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(pts))
	for i, q := range pts {
		out[i] = p.xf.Apply(q)
	}
	return out
}

func (p *painter) shape(s *Shape, caption string) {
	st := s.Style
	width := st.Width
	if width <= 0 {
		width = DefaultStyle().Width
	}
	pts := p.screen(s.Outline())

	switch s.Kind {
	case KindPoint:
		p.fill([][]geometry.Point2D{circle(pts[0], pointRadiusPx)}, st.Stroke)
	case KindFlag:
		base := pts[0]
		top := base.Add(geometry.Point2D{Y: -flagPolePx})
		p.stroke(append(p.segment(base, top, width), circle(base, width)), st.Stroke)
		pennant := []geometry.Point2D{top, top.Add(geometry.Point2D{X: 12, Y: 4}), top.Add(geometry.Point2D{Y: 8})}
		p.fill([][]geometry.Point2D{pennant}, st.Stroke)
		if s.Label != "" {
			p.label(s.Label, top.Add(geometry.Point2D{X: 14}))
		}
		return
	case KindLine, KindArrow:
		p.stroke(p.polyline(pts, false, width), st.Stroke)
		if s.Kind == KindArrow {
			p.fill([][]geometry.Point2D{arrowHead(pts[0], pts[1], arrowHeadPx+width)}, st.Stroke)
		}
	default:
		if st.Fill.A > 0 {
			p.fill([][]geometry.Point2D{pts}, st.Fill)
		}
		p.stroke(p.polyline(pts, true, width), st.Stroke)
	}

	if caption != "" {
		mid := geometry.Centroid(pts)
		if len(pts) == 2 {
			mid = pts[0].Add(pts[1]).Scale(0.5)
		}
		p.label(caption, mid.Add(geometry.Point2D{X: 6, Y: -6}))
	}
	if s.Label != "" {
		tl := geometry.BoundingBox(pts).TopLeft()
		p.label(s.Label, tl.Add(geometry.Point2D{Y: -4}))
	}
}

// handles draws the draggable vertices of the edited shape.
func (p *painter) handles(s *Shape) {
	h := handleSizePx / 2
	for _, c := range p.screen(s.Handles()) {
		sq := []geometry.Point2D{{X: c.X - h, Y: c.Y - h}, {X: c.X + h, Y: c.Y - h}, {X: c.X + h, Y: c.Y + h}, {X: c.X - h, Y: c.Y + h}}
		p.fill([][]geometry.Point2D{sq}, handleFill)
		p.stroke(p.polyline(sq, true, 1), s.Style.Stroke)
	}
}

// polyline returns stroke quads for every segment plus round joins.
func (p *painter) polyline(pts []geometry.Point2D, closed bool, width float64) [][]geometry.Point2D {
	var polys [][]geometry.Point2D
	n := len(pts)
	for i := 0; i+1 < n; i++ {
		polys = append(polys, p.segment(pts[i], pts[i+1], width)...)
	}
	if closed && n > 2 {
		polys = append(polys, p.segment(pts[n-1], pts[0], width)...)
	}
	if width > 1.5 {
		for _, q := range pts {
			polys = append(polys, circle(q, width/2))
		}
	}
	return polys
}

func (p *painter) segment(a, b geometry.Point2D, width float64) [][]geometry.Point2D {
	d := b.Sub(a)
	l := math.Hypot(d.X, d.Y)
	if l == 0 {
		return nil
	}
	n := geometry.Point2D{X: -d.Y / l * width / 2, Y: d.X / l * width / 2}
	return [][]geometry.Point2D{{a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)}}
}

// stroke fills all polygons in one pass. Every polygon is wound the same
// way so overlapping joins do not cancel out.
func (p *painter) stroke(polys [][]geometry.Point2D, c color.RGBA) {
	for i, poly := range polys {
		if signedArea(poly) > 0 {
			polys[i] = reversed(poly)
		}
	}
	p.fill(polys, c)
}

func (p *painter) fill(polys [][]geometry.Point2D, c color.RGBA) {
	if c.A == 0 || len(polys) == 0 {
		return
	}
	b := p.dst.Bounds()
	p.r.Reset(b.Dx(), b.Dy())
	for _, poly := range polys {
		if len(poly) < 3 {
			continue
		}
		p.r.MoveTo(p.local(poly[0]))
		for _, q := range poly[1:] {
			p.r.LineTo(p.local(q))
		}
		p.r.ClosePath()
	}
	p.r.Draw(p.dst, b, image.NewUniform(colorutil.Premultiply(c)), image.Point{})
}

// local converts a screen point to rasterizer coordinates, keeping far
// away vertices within float32 range.
func (p *painter) local(q geometry.Point2D) (float32, float32) {
	const lim = 1 << 20
	b := p.dst.Bounds()
	x := math.Max(-lim, math.Min(lim, q.X-float64(b.Min.X)))
	y := math.Max(-lim, math.Min(lim, q.Y-float64(b.Min.Y)))
	return float32(x), float32(y)
}

// label draws text with a translucent backing box, baseline at.
func (p *painter) label(text string, at geometry.Point2D) {
	face := basicfont.Face7x13
	w := font.MeasureString(face, text).Ceil()
	x, y := int(math.Round(at.X)), int(math.Round(at.Y))
	box := []geometry.Point2D{
		{X: float64(x - labelPaddingPx), Y: float64(y - face.Ascent - labelPaddingPx)},
		{X: float64(x + w + labelPaddingPx), Y: float64(y - face.Ascent - labelPaddingPx)},
		{X: float64(x + w + labelPaddingPx), Y: float64(y + face.Descent + labelPaddingPx)},
		{X: float64(x - labelPaddingPx), Y: float64(y + face.Descent + labelPaddingPx)},
	}
	p.fill([][]geometry.Point2D{box}, labelBack)
	d := font.Drawer{
		Dst:  p.dst,
		Src:  image.NewUniform(labelText),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func circle(c geometry.Point2D, r float64) []geometry.Point2D {
	n := 16
	if r > 8 {
		n = 32
	}
	return geometry.EllipsePoints(c, r, r, n)
}

// arrowHead is the triangle at b for a shaft from a to b.
func arrowHead(a, b geometry.Point2D, size float64) []geometry.Point2D {
	d := b.Sub(a)
	l := math.Hypot(d.X, d.Y)
	if l == 0 {
		return nil
	}
	u := d.Scale(1 / l)
	n := geometry.Point2D{X: -u.Y, Y: u.X}
	back := b.Sub(u.Scale(size))
	return []geometry.Point2D{b, back.Add(n.Scale(size / 2)), back.Sub(n.Scale(size / 2))}
}

func signedArea(poly []geometry.Point2D) float64 {
	var a float64
	for i := range poly {
		j := (i + 1) % len(poly)
		a += poly[i].X*poly[j].Y - poly[j].X*poly[i].Y
	}
	return a / 2
}

func reversed(poly []geometry.Point2D) []geometry.Point2D {
	out := make([]geometry.Point2D, len(poly))
	for i, q := range poly {
		out[len(poly)-1-i] = q
	}
	return out
}
