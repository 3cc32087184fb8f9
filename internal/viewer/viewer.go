// Package viewer ties the tiled viewport, colour filters, annotations and
// heat maps of one slide together.
package viewer

import (
	"context"
	"image"

	"go.uber.org/zap"

	"slidescope/internal/filter"
	"slidescope/internal/heatmap"
	"slidescope/internal/logging"
	"slidescope/internal/metrics"
	"slidescope/internal/overlay"
	"slidescope/internal/screenshot"
	"slidescope/internal/tile"
	"slidescope/internal/viewport"
	"slidescope/pkg/geometry"
)

// Options configures a Viewer.
type Options struct {
	Viewport viewport.Options
	Filter   filter.Params
	Overlay  overlay.Options
	Heatmap  heatmap.Defaults

	// HeatBlend and HeatOpacity control how heat maps sit on the slide.
	HeatBlend   screenshot.BlendMode
	HeatOpacity float64

	Logger  *zap.Logger
	Metrics *metrics.Tiles
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Viewport:    viewport.DefaultOptions(),
		Filter:      filter.DefaultParams(),
		Heatmap:     heatmap.DefaultSettings(),
		HeatBlend:   screenshot.BlendNormal,
		HeatOpacity: 1,
	}
}

// Viewer is one slide view. Like its parts it is owned by a single
// goroutine; tile loading happens in the background and is applied by Pump
// or WaitIdle.
type Viewer struct {
	opts   Options
	logger *zap.Logger

	vp      *viewport.Viewport
	filters *filter.Pipeline
	shapes  *overlay.Engine
	heat    *heatmap.Renderer
	shots   *screenshot.Composer
	frames  *screenshot.Composer

	unwatch func()
}

// New returns a viewer with nothing mounted. Captures fail until Open
// succeeds.
func New(opts Options) *Viewer {
	logger := logging.OrNop(opts.Logger)
	if opts.Viewport.Logger == nil {
		opts.Viewport.Logger = logger.Named("viewport")
	}
	if opts.Viewport.Metrics == nil {
		opts.Viewport.Metrics = opts.Metrics
	}
	if opts.Overlay.Logger == nil {
		opts.Overlay.Logger = logger.Named("overlay")
	}
	if opts.HeatOpacity <= 0 {
		opts.HeatOpacity = 1
	}

	v := &Viewer{
		opts:    opts,
		logger:  logger,
		vp:      viewport.New(),
		filters: filter.NewPipeline(),
		shapes:  overlay.NewEngine(opts.Overlay),
		heat:    heatmap.NewRenderer(logger.Named("heatmap")),
	}
	v.filters.SetParams(opts.Filter)
	layers := []screenshot.Layer{
		screenshot.HeatLayer(v.heat, opts.HeatBlend, opts.HeatOpacity),
		screenshot.OverlayLayer(v.shapes),
	}
	v.shots = screenshot.NewComposer(v, screenshot.Options{Logger: logger.Named("screenshot"), Metrics: opts.Metrics}, layers...)
	v.frames = screenshot.NewComposer(liveScene{v}, screenshot.Options{Logger: logger.Named("frame")}, layers...)
	return v
}

// Open mounts the viewer on target and shows src. Shapes and heat maps
// are kept across slides; call Overlay().Clear() and Heatmap().Clear() to
// drop them.
func (v *Viewer) Open(doc viewport.Document, target viewport.Target, src tile.Source) error {
	if err := v.vp.Initialize(doc, target, src, v.opts.Viewport); err != nil {
		return err
	}
	// Initialize detaches earlier listeners, so follow the transform again.
	v.unwatch = v.vp.OnTransform(v.shapes.SetTransform)
	v.shapes.SetTransform(v.vp.Transform())
	// A slide without a resolution falls back to the configured calibration,
	// never to the previous slide's.
	cal := v.opts.Overlay.Calibration
	if mpp := v.vp.MicronsPerPixel(); mpp > 0 {
		cal = overlay.MicronCalibration(mpp)
	}
	v.shapes.SetCalibration(cal)
	return nil
}

// Viewport returns the tiled view.
func (v *Viewer) Viewport() *viewport.Viewport { return v.vp }

// Filters returns the colour pipeline applied to the slide.
func (v *Viewer) Filters() *filter.Pipeline { return v.filters }

// Overlay returns the annotation engine.
func (v *Viewer) Overlay() *overlay.Engine { return v.shapes }

// Heatmap returns the heat-map layers.
func (v *Viewer) Heatmap() *heatmap.Renderer { return v.heat }

// LoadResults replaces the heat-map layers with diagnosis results.
func (v *Viewer) LoadResults(results []heatmap.Result) {
	v.heat.LoadResults(results, v.opts.Heatmap)
}

// Base implements screenshot.Scene: the filtered slide raster and its
// transform, or nil before Open. It leaves the tile cache and the dirty
// flag as they are.
func (v *Viewer) Base() (*image.RGBA, geometry.AffineTransform) {
	return v.filtered(v.vp.Snapshot())
}

func (v *Viewer) filtered(raw *image.RGBA) (*image.RGBA, geometry.AffineTransform) {
	if raw == nil {
		return nil, v.vp.Transform()
	}
	return v.filters.Apply(raw), v.vp.Transform()
}

// liveScene renders for display, marking the raster as drawn.
type liveScene struct{ v *Viewer }

func (s liveScene) Base() (*image.RGBA, geometry.AffineTransform) {
	return s.v.filtered(s.v.vp.Render())
}

// Frame composes what the viewer currently shows. Unlike Capture it
// counts as a redraw, so Pump reports false until the view changes again.
func (v *Viewer) Frame() (*image.RGBA, error) {
	return v.frames.Capture(nil)
}

// Capture composes a screenshot, optionally cropped to an image-space region.
func (v *Viewer) Capture(region *geometry.Rect) (*image.RGBA, error) {
	return v.shots.Capture(region)
}

// Pump applies finished tile loads and reports whether the view changed.
func (v *Viewer) Pump() bool {
	return v.vp.Pump()
}

// WaitIdle blocks until every pending tile has loaded or ctx is done.
func (v *Viewer) WaitIdle(ctx context.Context) error {
	return v.vp.WaitIdle(ctx)
}

// Close releases tiles and detaches the annotation engine from the view.
func (v *Viewer) Close() {
	if v.unwatch != nil {
		v.unwatch()
		v.unwatch = nil
	}
	v.vp.Destroy()
}
