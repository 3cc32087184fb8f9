// Package viewport provides the deep-zoom tiled canvas: pan, zoom and rotate,
// tile scheduling, and the mapping between image and screen coordinates.
package viewport

import (
	"context"
	"errors"
	"image"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"slidescope/internal/logging"
	"slidescope/internal/tile"
	"slidescope/pkg/geometry"
)

// ErrNotInitialized is returned by operations that need a mounted viewport.
var ErrNotInitialized = errors.New("viewport not initialized")

// Stats summarises tile state for diagnostics.
type Stats struct {
	Level    int
	Resident int
	Pending  int
	Failed   int
	Version  uint64
}

// Viewport owns the image-to-screen transform and the tile cache of one viewer.
// It is not safe for concurrent use; all calls must come from the goroutine
// that owns the viewer. Tile fetches run elsewhere and are applied by Pump
// or WaitIdle.
type Viewport struct {
	opts   Options
	logger *zap.Logger

	src    tile.Source
	desc   tile.Descriptor
	mount  Mount
	cache  *tile.Cache
	loader *tile.Loader

	width, height int
	center        geometry.Point2D // image point shown at the viewport center
	zoom          float64          // screen pixels per image pixel
	rotation      float64          // degrees, clockwise on screen
	minZoom       float64
	maxZoom       float64

	xf, inv geometry.AffineTransform
	version uint64

	listeners    map[int]func(geometry.AffineTransform)
	nextListener int

	initialized bool
	dirty       bool
}

// New returns an unmounted viewport. It renders nothing until Initialize succeeds.
func New() *Viewport {
	return &Viewport{
		logger:    zap.NewNop(),
		zoom:      1,
		xf:        geometry.Identity(),
		inv:       geometry.Identity(),
		listeners: make(map[int]func(geometry.AffineTransform)),
	}
}

// Initialize mounts the viewport on target and opens src. It fails with
// *InitializationError when the target is not part of doc. Initializing an
// already mounted viewport replaces the previous slide.
func (v *Viewport) Initialize(doc Document, target Target, src tile.Source, opts Options) error {
	mount, err := target.resolve(doc)
	if err != nil {
		return err
	}
	if src == nil {
		return &InitializationError{Target: target.String(), Reason: "no image source"}
	}
	desc := src.Descriptor()
	if err := desc.Validate(); err != nil {
		return &InitializationError{Target: target.String(), Reason: "unusable image source", Err: err}
	}

	opts.applyDefaults()
	logger := logging.OrNop(opts.Logger)

	cache, err := tile.NewCache(opts.CacheCapacity, func(*tile.Tile) { opts.Metrics.Evicted() })
	if err != nil {
		return &InitializationError{Target: target.String(), Reason: "tile cache", Err: err}
	}

	if v.initialized {
		v.Destroy()
	}

	v.opts = opts
	v.logger = logger
	v.src = src
	v.desc = desc
	v.mount = mount
	v.cache = cache
	v.loader = tile.NewLoader(src, opts.ImageLoaderLimit, logger, opts.Metrics)
	if v.listeners == nil {
		v.listeners = make(map[int]func(geometry.AffineTransform))
	}
	v.width, v.height = mount.Size()
	v.rotation = 0
	v.initialized = true
	v.updateZoomBounds()
	v.center = geometry.Point2D{X: float64(desc.Width) / 2, Y: float64(desc.Height) / 2}
	v.zoom = v.clampZoom(v.homeZoom())
	v.update()

	logger.Info("viewport initialized",
		zap.Stringer("target", target),
		zap.Int("image_width", desc.Width), zap.Int("image_height", desc.Height),
		zap.Int("levels", desc.MaxLevel()+1),
		zap.Int("viewport_width", v.width), zap.Int("viewport_height", v.height))
	return nil
}

// Initialized reports whether the viewport is mounted and has a source.
func (v *Viewport) Initialized() bool {
	return v.initialized
}

// Descriptor returns the pyramid description of the open slide.
func (v *Viewport) Descriptor() tile.Descriptor {
	return v.desc
}

// Options returns the effective options.
func (v *Viewport) Options() Options {
	return v.opts
}

// MicronsPerPixel returns the physical size of one image pixel, 0 if unknown.
func (v *Viewport) MicronsPerPixel() float64 {
	if v.opts.MicronsPerPixel > 0 {
		return v.opts.MicronsPerPixel
	}
	return v.desc.MicronsPerPixel
}

// Size returns the viewport size in screen pixels.
func (v *Viewport) Size() (width, height int) {
	return v.width, v.height
}

// Transform returns the current image-to-screen transform.
func (v *Viewport) Transform() geometry.AffineTransform {
	return v.xf
}

// Zoom returns the current screen pixels per image pixel.
func (v *Viewport) Zoom() float64 {
	return v.zoom
}

// ZoomBounds returns the configured zoom range.
func (v *Viewport) ZoomBounds() (lo, hi float64) {
	return v.minZoom, v.maxZoom
}

// Center returns the image point at the viewport center.
func (v *Viewport) Center() geometry.Point2D {
	return v.center
}

// Rotation returns the rotation in degrees.
func (v *Viewport) Rotation() float64 {
	return v.rotation
}

// Version increments on every transform change.
func (v *Viewport) Version() uint64 {
	return v.version
}

// Level returns the pyramid level matching the current zoom.
func (v *Viewport) Level() int {
	return v.desc.LevelForZoom(v.zoom)
}

// ImageToScreen maps an image-space point to screen space.
func (v *Viewport) ImageToScreen(p geometry.Point2D) geometry.Point2D {
	return v.xf.Apply(p)
}

// ScreenToImage maps a screen-space point to image space.
func (v *Viewport) ScreenToImage(p geometry.Point2D) geometry.Point2D {
	return v.inv.Apply(p)
}

// ScreenBounds returns the viewport rectangle in screen space.
func (v *Viewport) ScreenBounds() geometry.Rect {
	return geometry.Rect{Width: float64(v.width), Height: float64(v.height)}
}

// VisibleImageBounds returns the image-space bounding box of the viewport.
func (v *Viewport) VisibleImageBounds() geometry.Rect {
	return v.inv.ApplyRect(v.ScreenBounds())
}

// Pan moves the view by a screen-space delta, as a drag would.
func (v *Viewport) Pan(dx, dy float64) geometry.AffineTransform {
	if !v.initialized {
		return v.xf
	}
	d := v.inv.ApplyVector(geometry.Point2D{X: dx, Y: dy})
	v.center = v.center.Sub(d)
	v.update()
	return v.xf
}

// PanTo centers the view on an image point.
func (v *Viewport) PanTo(p geometry.Point2D) geometry.AffineTransform {
	if !v.initialized {
		return v.xf
	}
	v.center = p
	v.update()
	return v.xf
}

// ZoomTo sets the zoom, clamped to the configured bounds, keeping the image
// point under the screen-space anchor fixed.
func (v *Viewport) ZoomTo(zoom float64, anchor geometry.Point2D) geometry.AffineTransform {
	if !v.initialized {
		return v.xf
	}
	fixed := v.inv.Apply(anchor)
	v.zoom = v.clampZoom(zoom)
	// Solve center so that fixed maps back onto anchor under the new zoom.
	v.center = geometry.Point2D{}
	v.rebuild()
	v.center = fixed.Sub(v.inv.ApplyVector(anchor.Sub(v.screenCenter())))
	v.update()
	return v.xf
}

// ZoomBy multiplies the zoom by factor around the anchor.
func (v *Viewport) ZoomBy(factor float64, anchor geometry.Point2D) geometry.AffineTransform {
	return v.ZoomTo(v.zoom*factor, anchor)
}

// Scroll zooms by ZoomPerScroll per step; negative steps zoom out.
func (v *Viewport) Scroll(steps float64, anchor geometry.Point2D) geometry.AffineTransform {
	return v.ZoomBy(math.Pow(v.opts.ZoomPerScroll, steps), anchor)
}

// Click zooms in by ZoomPerClick around the anchor, or out when out is set.
func (v *Viewport) Click(anchor geometry.Point2D, out bool) geometry.AffineTransform {
	f := v.opts.ZoomPerClick
	if out {
		f = 1 / f
	}
	return v.ZoomBy(f, anchor)
}

// Rotate rotates the view around its center by degrees.
func (v *Viewport) Rotate(degrees float64) geometry.AffineTransform {
	return v.SetRotation(v.rotation + degrees)
}

// SetRotation sets the absolute rotation in degrees.
func (v *Viewport) SetRotation(degrees float64) geometry.AffineTransform {
	if !v.initialized {
		return v.xf
	}
	v.rotation = math.Mod(degrees, 360)
	if v.rotation < 0 {
		v.rotation += 360
	}
	v.updateZoomBounds()
	v.zoom = v.clampZoom(v.zoom)
	v.update()
	return v.xf
}

// Home fits the whole image into the viewport.
func (v *Viewport) Home() geometry.AffineTransform {
	if !v.initialized {
		return v.xf
	}
	v.center = geometry.Point2D{X: float64(v.desc.Width) / 2, Y: float64(v.desc.Height) / 2}
	v.zoom = v.clampZoom(v.homeZoom())
	v.update()
	return v.xf
}

// Fling continues a released drag with momentum when flick is enabled.
// vx and vy are in screen pixels per second.
func (v *Viewport) Fling(vx, vy float64) geometry.AffineTransform {
	if !v.opts.FlickEnabled {
		return v.xf
	}
	return v.Pan(vx*v.opts.FlickMomentum, vy*v.opts.FlickMomentum)
}

// SetFlickEnabled toggles momentum panning.
func (v *Viewport) SetFlickEnabled(enabled bool) {
	v.opts.FlickEnabled = enabled
}

// SetAnimationEnabled toggles spring animation.
func (v *Viewport) SetAnimationEnabled(enabled bool) {
	v.opts.AnimationEnabled = enabled
}

// Springs returns the animation durations for pan, zoom and rotate.
func (v *Viewport) Springs() Springs {
	if !v.opts.AnimationEnabled {
		return Springs{}
	}
	d := v.opts.AnimationTime
	return Springs{Pan: d, Zoom: d, Rotate: d}
}

// Resize adapts the viewport to a new mount size, keeping center and zoom.
func (v *Viewport) Resize(width, height int) geometry.AffineTransform {
	if !v.initialized || (width == v.width && height == v.height) {
		return v.xf
	}
	v.width, v.height = width, height
	v.updateZoomBounds()
	v.zoom = v.clampZoom(v.zoom)
	v.update()
	return v.xf
}

// OnTransform registers fn to be called after every transform change and
// returns a function that removes it.
func (v *Viewport) OnTransform(fn func(geometry.AffineTransform)) (remove func()) {
	id := v.nextListener
	v.nextListener++
	v.listeners[id] = fn
	return func() { delete(v.listeners, id) }
}

// Pump applies tile completions that have arrived. It reports whether the
// base raster changed.
func (v *Viewport) Pump() bool {
	if !v.initialized {
		return false
	}
	if v.loader.Drain(v.addTile) > 0 {
		v.dirty = true
	}
	return v.dirty
}

// WaitIdle blocks until every pending tile request has completed or ctx is done.
func (v *Viewport) WaitIdle(ctx context.Context) error {
	if !v.initialized {
		return ErrNotInitialized
	}
	return v.loader.Wait(ctx, v.addTile)
}

// RetryFailed requests visible tiles whose last fetch failed.
func (v *Viewport) RetryFailed() {
	if !v.initialized {
		return
	}
	v.loader.Schedule(v.version, v.visibleTiles(), v.cache)
}

// Stats returns tile diagnostics.
func (v *Viewport) Stats() Stats {
	if !v.initialized {
		return Stats{Version: v.version}
	}
	return Stats{
		Level:    v.Level(),
		Resident: v.cache.Len(),
		Pending:  v.loader.Pending(),
		Failed:   v.loader.Failed(),
		Version:  v.version,
	}
}

// Dirty reports whether the raster changed since the last Render.
func (v *Viewport) Dirty() bool {
	return v.dirty
}

// Destroy releases every cached tile, cancels pending requests and detaches
// listeners. It is safe to call more than once.
func (v *Viewport) Destroy() {
	if !v.initialized {
		return
	}
	v.initialized = false
	v.loader.Close()
	v.cache.Purge()
	v.opts.Metrics.SetResident(0)
	clear(v.listeners)
	v.src = nil
	v.mount = nil
	v.logger.Info("viewport destroyed")
}

func (v *Viewport) addTile(id tile.ID, img image.Image) {
	v.cache.Add(&tile.Tile{ID: id, Image: img, Bounds: v.desc.ImageBounds(id)})
	v.opts.Metrics.SetResident(v.cache.Len())
	v.dirty = true
}

func (v *Viewport) screenCenter() geometry.Point2D {
	return geometry.Point2D{X: float64(v.width) / 2, Y: float64(v.height) / 2}
}

// homeZoom fits the whole image, as currently rotated, into the mount.
func (v *Viewport) homeZoom() float64 {
	if v.desc.Width == 0 || v.desc.Height == 0 || v.width == 0 || v.height == 0 {
		return 1
	}
	img := geometry.NewRect(0, 0, float64(v.desc.Width), float64(v.desc.Height))
	b := geometry.Rotation(v.rotation * math.Pi / 180).ApplyRect(img)
	return math.Min(float64(v.width)/b.Width, float64(v.height)/b.Height)
}

func (v *Viewport) updateZoomBounds() {
	v.maxZoom = v.opts.MaxZoom
	v.minZoom = v.opts.MinZoom
	if v.minZoom <= 0 {
		v.minZoom = v.homeZoom() / 2
	}
	if v.minZoom > v.maxZoom {
		v.minZoom = v.maxZoom
	}
}

func (v *Viewport) clampZoom(z float64) float64 {
	if math.IsNaN(z) || z <= 0 {
		return v.minZoom
	}
	return math.Max(v.minZoom, math.Min(v.maxZoom, z))
}

// rebuild recomputes the transform and its inverse from center, zoom and rotation.
func (v *Viewport) rebuild() {
	sc := v.screenCenter()
	v.xf = geometry.Translation(sc.X, sc.Y).
		Compose(geometry.Rotation(v.rotation * math.Pi / 180)).
		Compose(geometry.Scale(v.zoom, v.zoom)).
		Compose(geometry.Translation(-v.center.X, -v.center.Y))
	inv, ok := v.xf.Inverse()
	if !ok {
		// Unreachable while zoom is clamped to a positive range.
		v.logger.Error("non-invertible transform", zap.Float64("zoom", v.zoom))
		return
	}
	v.inv = inv
}

// update publishes a transform change: new version, tile schedule, listeners.
func (v *Viewport) update() {
	v.rebuild()
	v.version++
	v.dirty = true
	v.loader.Schedule(v.version, v.visibleTiles(), v.cache)
	for _, fn := range v.listeners {
		fn(v.xf)
	}
}

// thumbnailLevel is the deepest level that still fits in a single tile. Its
// tile is always requested so that something is drawn while finer tiles load.
func (v *Viewport) thumbnailLevel() int {
	for l := v.desc.MaxLevel(); l >= 0; l-- {
		if cols, rows := v.desc.Grid(l); cols == 1 && rows == 1 {
			return l
		}
	}
	return 0
}

func (v *Viewport) visibleTiles() []tile.ID {
	bounds := v.VisibleImageBounds()
	level := v.Level()
	ids := v.desc.TilesIn(level, bounds)
	if thumb := v.thumbnailLevel(); thumb < level {
		ids = append([]tile.ID{{Level: thumb}}, ids...)
	}
	return ids
}

// Render draws the base raster for the current transform. Coarser cached
// tiles are drawn first so they show through wherever a finer tile has not
// arrived yet. It returns nil while the viewport is not initialized.
func (v *Viewport) Render() *image.RGBA {
	dst := v.render(v.cache.Get)
	if dst != nil {
		v.dirty = false
	}
	return dst
}

// Snapshot draws the same raster as Render without touching the cache
// recency or the dirty flag.
func (v *Viewport) Snapshot() *image.RGBA {
	return v.render(v.cache.Peek)
}

func (v *Viewport) render(get func(tile.ID) (*tile.Tile, bool)) *image.RGBA {
	if !v.initialized || v.width <= 0 || v.height <= 0 {
		return nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, v.width, v.height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(v.opts.Background), image.Point{}, draw.Src)

	bounds := v.VisibleImageBounds()
	level := v.Level()
	// Below the thumbnail level the view level itself is the coarsest.
	for l := min(v.thumbnailLevel(), level); l <= level; l++ {
		for _, id := range v.desc.TilesIn(l, bounds) {
			var t *tile.Tile
			var ok bool
			if l == level {
				t, ok = get(id)
			} else {
				t, ok = v.cache.Peek(id)
			}
			if !ok {
				continue
			}
			v.drawTile(dst, t)
		}
	}
	return dst
}

func (v *Viewport) drawTile(dst *image.RGBA, t *tile.Tile) {
	pb := v.desc.PixelBounds(t.ID)
	sb := t.Image.Bounds()
	inv := 1 / v.desc.LevelScale(t.ID.Level)
	// tile pixel -> level pixel -> image pixel -> screen pixel
	s2d := v.xf.
		Compose(geometry.Scale(inv, inv)).
		Compose(geometry.Translation(float64(pb.Min.X-sb.Min.X), float64(pb.Min.Y-sb.Min.Y)))
	draw.ApproxBiLinear.Transform(dst, s2d.Aff3(), t.Image, sb, draw.Over, nil)
}
