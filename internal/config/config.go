// Package config provides configuration loading, defaults, and validation for
// the slide viewer and its command-line tools.
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"slidescope/internal/filter"
	"slidescope/internal/heatmap"
	"slidescope/internal/logging"
	"slidescope/internal/metrics"
	"slidescope/internal/overlay"
	"slidescope/internal/screenshot"
	"slidescope/internal/tile"
	"slidescope/internal/tile/dzi"
	"slidescope/internal/tile/objstore"
	"slidescope/internal/viewer"
	"slidescope/internal/viewport"
	"slidescope/pkg/colorutil"
)

// Config is the root configuration.
type Config struct {
	Log     logging.Config   `mapstructure:"log"`
	Source  SourceConfig     `mapstructure:"source"`
	Viewer  viewport.Options `mapstructure:"viewer"`
	Filter  filter.Params    `mapstructure:"filter"`
	Overlay OverlayConfig    `mapstructure:"overlay"`
	Heatmap HeatmapConfig    `mapstructure:"heatmap"`
	Capture CaptureConfig    `mapstructure:"capture"`
	Metrics MetricsConfig    `mapstructure:"metrics"`
}

// SourceConfig selects where the slide pyramid is read from. At most one
// of Path and ObjectStore.Bucket may be set.
type SourceConfig struct {
	// Path is a local .dzi descriptor.
	Path        string          `mapstructure:"path"`
	ObjectStore objstore.Config `mapstructure:"object_store"`
}

// OverlayConfig holds annotation settings.
type OverlayConfig struct {
	TolerancePx   float64 `mapstructure:"tolerance_px"`
	CloseRadiusPx float64 `mapstructure:"close_radius_px"`
	// Stroke is the default outline colour as "#rrggbb" or "#rrggbbaa".
	Stroke string  `mapstructure:"stroke"`
	Width  float64 `mapstructure:"width"`
}

// HeatmapConfig holds the layer defaults and how heat maps are blended.
type HeatmapConfig struct {
	heatmap.Defaults `mapstructure:",squash"`
	Blend            string  `mapstructure:"blend"`
	BlendOpacity     float64 `mapstructure:"blend_opacity"`
}

// CaptureConfig holds screenshot export settings.
type CaptureConfig struct {
	Format string `mapstructure:"format"`
	Dir    string `mapstructure:"dir"`
}

// MetricsConfig enables the Prometheus endpoint of the desktop host.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Source.Path != "" && c.Source.ObjectStore.Bucket != "" {
		add("source: path and object_store.bucket are mutually exclusive")
	}
	if c.Source.ObjectStore.Bucket != "" && (c.Source.ObjectStore.Endpoint == "" || c.Source.ObjectStore.Key == "") {
		add("source.object_store: endpoint and key are required with a bucket")
	}

	v := c.Viewer
	if v.MinZoom < 0 || v.MaxZoom <= 0 {
		add("viewer: zoom bounds must be positive")
	} else if v.MinZoom > v.MaxZoom {
		add("viewer: min_zoom %g above max_zoom %g", v.MinZoom, v.MaxZoom)
	}
	if v.ZoomPerScroll <= 1 || v.ZoomPerClick <= 1 {
		add("viewer: zoom_per_scroll and zoom_per_click must be above 1")
	}
	if v.CacheCapacity <= 0 || v.ImageLoaderLimit <= 0 {
		add("viewer: cache_capacity and image_loader_limit must be positive")
	}

	if c.Filter != c.Filter.Clamped() {
		add("filter: value out of range")
	}

	if c.Overlay.Stroke != "" {
		if _, err := colorutil.ParseHex(c.Overlay.Stroke); err != nil {
			add("overlay.stroke: %v", err)
		}
	}

	h := c.Heatmap
	if h.TopPercent < 0 || h.TopPercent > 100 {
		add("heatmap.top_percent %g outside 0..100", h.TopPercent)
	}
	if h.Opacity <= 0 || h.Opacity > 1 || h.BlendOpacity <= 0 || h.BlendOpacity > 1 {
		add("heatmap: opacity values must be in (0,1]")
	}
	if h.Radius <= 0 || h.Density < 0 || math.IsNaN(h.Density) {
		add("heatmap: radius must be positive and density non-negative")
	}
	if _, err := screenshot.ParseBlendMode(h.Blend); err != nil {
		add("heatmap.blend: %v", err)
	}

	if _, err := screenshot.ParseFormat(c.Capture.Format); err != nil {
		add("capture.format: %v", err)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		add("metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// HasSource reports whether a slide source is configured.
func (c *Config) HasSource() bool {
	return c.Source.Path != "" || c.Source.ObjectStore.Bucket != ""
}

// OpenSource opens the configured pyramid.
func (c *Config) OpenSource(ctx context.Context, logger *zap.Logger) (tile.Source, error) {
	switch {
	case c.Source.Path != "":
		return dzi.Open(c.Source.Path)
	case c.Source.ObjectStore.Bucket != "":
		return objstore.New(ctx, c.Source.ObjectStore, logger)
	default:
		return nil, errors.New("config: no slide source configured")
	}
}

// ViewerOptions converts the configuration into viewer options.
func (c *Config) ViewerOptions(logger *zap.Logger, m *metrics.Tiles) viewer.Options {
	opts := viewer.DefaultOptions()
	opts.Viewport = c.Viewer
	opts.Viewport.Background = colorutil.Slate
	opts.Filter = c.Filter
	opts.Heatmap = c.Heatmap.Defaults
	if mode, err := screenshot.ParseBlendMode(c.Heatmap.Blend); err == nil {
		opts.HeatBlend = mode
	}
	opts.HeatOpacity = c.Heatmap.BlendOpacity
	opts.Overlay = overlay.Options{
		TolerancePx:   c.Overlay.TolerancePx,
		CloseRadiusPx: c.Overlay.CloseRadiusPx,
		Style:         overlay.DefaultStyle(),
	}
	if stroke, err := colorutil.ParseHex(c.Overlay.Stroke); err == nil {
		opts.Overlay.Style.Stroke = stroke
	}
	if c.Overlay.Width > 0 {
		opts.Overlay.Style.Width = c.Overlay.Width
	}
	opts.Logger = logger
	opts.Metrics = m
	return opts
}

// CaptureFormat returns the configured export format.
func (c *Config) CaptureFormat() screenshot.Format {
	f, err := screenshot.ParseFormat(c.Capture.Format)
	if err != nil {
		return screenshot.PNG
	}
	return f
}
