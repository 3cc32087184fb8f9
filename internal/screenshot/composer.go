// Package screenshot composes the visible slide, heat maps and annotations
// into one raster and encodes it for export.
package screenshot

import (
	"image"
	"image/draw"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"slidescope/internal/heatmap"
	"slidescope/internal/logging"
	"slidescope/internal/metrics"
	"slidescope/internal/overlay"
	"slidescope/pkg/geometry"
)

// Scene supplies the base raster of a capture.
type Scene interface {
	// Base returns the filtered slide raster and the image-to-screen
	// transform it was drawn with. It returns nil when nothing is shown.
	Base() (*image.RGBA, geometry.AffineTransform)
}

// Layer is drawn over the base raster, in screen pixels.
type Layer interface {
	Paint(dst *image.RGBA, xf geometry.AffineTransform)
}

// LayerFunc adapts a function to Layer.
type LayerFunc func(dst *image.RGBA, xf geometry.AffineTransform)

// Paint calls f.
func (f LayerFunc) Paint(dst *image.RGBA, xf geometry.AffineTransform) {
	f(dst, xf)
}

// HeatLayer draws the displayed layers of r with the given blend mode.
func HeatLayer(r *heatmap.Renderer, mode BlendMode, opacity float64) Layer {
	return LayerFunc(func(dst *image.RGBA, xf geometry.AffineTransform) {
		if r == nil || !r.Visible() {
			return
		}
		b := dst.Bounds()
		toLocal := geometry.Translation(-float64(b.Min.X), -float64(b.Min.Y))
		heat := r.Composite(toLocal.Compose(xf), b.Dx(), b.Dy())
		Blend(dst, heat, mode, opacity)
	})
}

// OverlayLayer draws the committed shapes of e. The in-progress drawing
// and selection handles are included the same way they are on screen.
func OverlayLayer(e *overlay.Engine) Layer {
	return LayerFunc(func(dst *image.RGBA, xf geometry.AffineTransform) {
		if e == nil {
			return
		}
		inv, ok := xf.Inverse()
		if !ok {
			return
		}
		b := dst.Bounds()
		screen := geometry.NewRect(float64(b.Min.X), float64(b.Min.Y), float64(b.Dx()), float64(b.Dy()))
		e.Render(dst, xf, inv.ApplyRect(screen))
	})
}

// Options configures a Composer.
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Tiles
}

// Composer builds screenshots of a scene. Layers are drawn in order over
// the base raster. Capture never changes the scene or its layers.
type Composer struct {
	scene   Scene
	layers  []Layer
	logger  *zap.Logger
	metrics *metrics.Tiles
}

// NewComposer returns a composer for scene with the given layers, bottom first.
func NewComposer(scene Scene, opts Options, layers ...Layer) *Composer {
	return &Composer{
		scene:   scene,
		layers:  layers,
		logger:  logging.OrNop(opts.Logger),
		metrics: opts.Metrics,
	}
}

// Capture composes the current view. With a non-nil region, given in image
// pixels, the result is cropped to the part of the region that is on
// screen, at the current screen resolution.
func (c *Composer) Capture(region *geometry.Rect) (*image.RGBA, error) {
	start := time.Now()
	var base *image.RGBA
	var xf geometry.AffineTransform
	if c.scene != nil {
		base, xf = c.scene.Base()
	}
	if base == nil || base.Bounds().Empty() {
		return nil, &EmptyViewportError{Reason: "no slide has been shown"}
	}

	var crop image.Rectangle
	if region != nil {
		crop = xf.ApplyRect(*region).Pixels().Intersect(base.Bounds())
		if crop.Empty() {
			return nil, ErrRegionOutsideViewport
		}
	}

	out := image.NewRGBA(base.Bounds())
	draw.Draw(out, out.Bounds(), base, base.Bounds().Min, draw.Src)
	for _, l := range c.layers {
		l.Paint(out, xf)
	}

	if region != nil {
		out = toRGBA(imaging.Crop(out, crop))
	}

	d := time.Since(start)
	c.metrics.ObserveCapture(d)
	c.logger.Debug("screenshot captured",
		zap.Int("width", out.Bounds().Dx()), zap.Int("height", out.Bounds().Dy()),
		zap.Bool("region", region != nil), zap.Duration("took", d))
	return out, nil
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}
