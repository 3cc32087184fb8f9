package heatmap

import (
	"errors"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"

	"slidescope/internal/logging"
	"slidescope/pkg/geometry"
)

// ErrLayerNotFound is returned for layer indices outside the renderer.
var ErrLayerNotFound = errors.New("heat-map layer not found")

// accum is a premultiplied float raster that disks are added into.
type accum struct {
	w, h int
	pix  []float32
}

func newAccum(w, h int) *accum {
	return &accum{w: w, h: h, pix: make([]float32, w*h*4)}
}

// disk adds a filled circle of colour c at screen position p. The edge is
// anti-aliased over one pixel.
func (a *accum) disk(p geometry.Point2D, radius float64, r, g, b, alpha float32) {
	x0 := max(0, int(math.Floor(p.X-radius-1)))
	y0 := max(0, int(math.Floor(p.Y-radius-1)))
	x1 := min(a.w-1, int(math.Ceil(p.X+radius+1)))
	y1 := min(a.h-1, int(math.Ceil(p.Y+radius+1)))
	for y := y0; y <= y1; y++ {
		dy := float64(y) + 0.5 - p.Y
		for x := x0; x <= x1; x++ {
			dx := float64(x) + 0.5 - p.X
			cov := radius + 0.5 - math.Hypot(dx, dy)
			if cov <= 0 {
				continue
			}
			k := float32(math.Min(1, cov))
			i := (y*a.w + x) * 4
			a.pix[i] += r * k
			a.pix[i+1] += g * k
			a.pix[i+2] += b * k
			a.pix[i+3] += alpha * k
		}
	}
}

func (a *accum) image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, a.w, a.h))
	for i, v := range a.pix {
		if v >= 1 {
			img.Pix[i] = 255
		} else if v > 0 {
			img.Pix[i] = uint8(v*255 + 0.5)
		}
	}
	return img
}

// paint adds the selected points of layer to a.
func paint(a *accum, layer *Layer, scalars []Point, xf geometry.AffineTransform) int {
	opacity := layer.Opacity
	if opacity <= 0 || opacity > 1 {
		opacity = 1
	}
	radius := layer.Radius
	if radius <= 0 {
		radius = DefaultSettings().Radius
	}
	drawn := 0
	for _, i := range layer.Select(scalars) {
		p := xf.Apply(scalars[i].Position)
		if p.X < -radius || p.Y < -radius || p.X > float64(a.w)+radius || p.Y > float64(a.h)+radius {
			continue
		}
		c := layer.Gradient.At(clampUnit(scalars[i].Value))
		al := float32(float64(c.A) / 255 * opacity)
		a.disk(p, radius, float32(c.R)/255*al, float32(c.G)/255*al, float32(c.B)/255*al, al)
		drawn++
	}
	return drawn
}

// Render draws the layer's selection of scalars into a transparent w×h
// raster with xf mapping image to screen pixels. Overlapping disks add up.
// The display flag is not consulted.
func Render(layer *Layer, scalars []Point, xf geometry.AffineTransform, w, h int) *image.RGBA {
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	a := newAccum(w, h)
	if layer != nil {
		paint(a, layer, scalars, xf)
	}
	return a.image()
}

// Renderer holds the heat-map layers of one viewer.
type Renderer struct {
	layers []*Layer
	logger *zap.Logger
}

// NewRenderer returns a renderer without layers.
func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logging.OrNop(logger)}
}

// Add appends a layer and returns its index.
func (r *Renderer) Add(l *Layer) int {
	r.layers = append(r.layers, l)
	r.logger.Debug("heatmap: layer added",
		zap.String("title", l.Title), zap.Stringer("category", l.Category), zap.Int("points", len(l.Scalars)))
	return len(r.layers) - 1
}

// LoadResults replaces all layers with ones built from results.
func (r *Renderer) LoadResults(results []Result, d Defaults) {
	r.layers = r.layers[:0]
	for _, res := range results {
		r.Add(NewLayerFromResult(res, d))
	}
}

// Layers returns the layers in compositing order.
func (r *Renderer) Layers() []*Layer {
	return r.layers
}

// Layer returns the layer at index i.
func (r *Renderer) Layer(i int) (*Layer, error) {
	if i < 0 || i >= len(r.layers) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrLayerNotFound, i, len(r.layers))
	}
	return r.layers[i], nil
}

// SetDisplay shows or hides a layer. Its scalars are kept.
func (r *Renderer) SetDisplay(i int, on bool) error {
	l, err := r.Layer(i)
	if err != nil {
		return err
	}
	l.Display = on
	return nil
}

// SetSelected marks a layer as the selected result; the others are
// unselected.
func (r *Renderer) SetSelected(i int) error {
	if _, err := r.Layer(i); err != nil {
		return err
	}
	for j, l := range r.layers {
		l.Selected = j == i
	}
	return nil
}

// Visible reports whether any layer is displayed.
func (r *Renderer) Visible() bool {
	for _, l := range r.layers {
		if l.Display {
			return true
		}
	}
	return false
}

// Clear drops every layer.
func (r *Renderer) Clear() {
	r.layers = nil
}

// Composite draws every displayed layer into one w×h raster. The output
// depends only on the layers and xf, so hiding and re-showing a layer
// reproduces the same pixels.
func (r *Renderer) Composite(xf geometry.AffineTransform, w, h int) *image.RGBA {
	if w <= 0 || h <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	a := newAccum(w, h)
	for _, l := range r.layers {
		if l.Display {
			paint(a, l, l.Scalars, xf)
		}
	}
	return a.image()
}

// Legend returns the colours of the selected layer's gradient sampled at n
// evenly spaced values, for drawing a colour bar.
func (r *Renderer) Legend(n int) []Stop {
	var g GradientStopTable
	for _, l := range r.layers {
		if l.Selected {
			g = l.Gradient
			break
		}
	}
	if g.Len() == 0 || n < 2 {
		return nil
	}
	out := make([]Stop, n)
	for i := range out {
		v := float64(i) / float64(n-1)
		out[i] = Stop{Value: v, Color: g.At(v)}
	}
	return out
}
