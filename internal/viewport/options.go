package viewport

import (
	"image/color"
	"time"

	"go.uber.org/zap"

	"slidescope/internal/metrics"
	"slidescope/internal/tile"
	"slidescope/pkg/colorutil"
)

// DefaultAnimationTime is the spring duration used while animation is enabled.
const DefaultAnimationTime = 1200 * time.Millisecond

// DefaultMaxZoom allows four screen pixels per image pixel at full resolution.
const DefaultMaxZoom = 4.0

// Options configures a viewport.
type Options struct {
	// ZoomPerScroll is the zoom factor applied per scroll step.
	ZoomPerScroll float64 `mapstructure:"zoom_per_scroll"`
	// ZoomPerClick is the zoom factor applied per click.
	ZoomPerClick float64 `mapstructure:"zoom_per_click"`
	// FlickEnabled keeps panning with momentum after a drag is released.
	FlickEnabled bool `mapstructure:"flick_enabled"`
	// FlickMomentum is how long, in seconds, release velocity keeps panning.
	FlickMomentum float64 `mapstructure:"flick_momentum"`

	CacheCapacity    int `mapstructure:"cache_capacity"`
	ImageLoaderLimit int `mapstructure:"image_loader_limit"`

	// MinZoom and MaxZoom bound screen pixels per image pixel. A zero
	// MinZoom means half of the zoom that fits the whole image.
	MinZoom float64 `mapstructure:"min_zoom"`
	MaxZoom float64 `mapstructure:"max_zoom"`

	AnimationEnabled bool          `mapstructure:"animation_enabled"`
	AnimationTime    time.Duration `mapstructure:"animation_time"`

	// MicronsPerPixel overrides the calibration reported by the source.
	MicronsPerPixel float64 `mapstructure:"microns_per_pixel"`

	Background color.RGBA `mapstructure:"-"`

	Logger  *zap.Logger    `mapstructure:"-"`
	Metrics *metrics.Tiles `mapstructure:"-"`
}

// DefaultOptions returns the stock interaction settings.
func DefaultOptions() Options {
	return Options{
		ZoomPerScroll:    1.2,
		ZoomPerClick:     2.0,
		FlickEnabled:     true,
		FlickMomentum:    0.25,
		CacheCapacity:    tile.DefaultCacheCapacity,
		ImageLoaderLimit: tile.DefaultLoaderLimit,
		MaxZoom:          DefaultMaxZoom,
		AnimationEnabled: true,
		AnimationTime:    DefaultAnimationTime,
		Background:       colorutil.Slate,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()
	if o.ZoomPerScroll <= 1 {
		o.ZoomPerScroll = d.ZoomPerScroll
	}
	if o.ZoomPerClick <= 1 {
		o.ZoomPerClick = d.ZoomPerClick
	}
	if o.FlickMomentum <= 0 {
		o.FlickMomentum = d.FlickMomentum
	}
	if o.CacheCapacity <= 0 {
		o.CacheCapacity = d.CacheCapacity
	}
	if o.ImageLoaderLimit <= 0 {
		o.ImageLoaderLimit = d.ImageLoaderLimit
	}
	if o.MaxZoom <= 0 {
		o.MaxZoom = d.MaxZoom
	}
	if o.AnimationTime <= 0 {
		o.AnimationTime = d.AnimationTime
	}
	if o.Background == (color.RGBA{}) {
		o.Background = d.Background
	}
}

// Springs holds the animation durations a host should use when easing
// between transforms. They never affect the transform itself.
type Springs struct {
	Pan    time.Duration
	Zoom   time.Duration
	Rotate time.Duration
}
