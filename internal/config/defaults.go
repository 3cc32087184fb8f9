package config

import (
	"github.com/spf13/viper"

	"slidescope/internal/filter"
	"slidescope/internal/heatmap"
	"slidescope/internal/overlay"
	"slidescope/internal/viewport"
	"slidescope/pkg/colorutil"
)

const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"

	DefaultHeatBlend        = "normal"
	DefaultHeatBlendOpacity = 1.0

	DefaultCaptureFormat = "png"
	DefaultMetricsAddr   = "127.0.0.1:9464"
)

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Viewer.FlickEnabled = true
	cfg.Viewer.AnimationEnabled = true
	return cfg
}

// setDefaults registers defaults with v. Booleans are set here because a
// false in the unmarshalled struct cannot be told apart from an unset key;
// registering every key also lets SLIDESCOPE_* variables reach it.
func setDefaults(v *viper.Viper) {
	vo := viewport.DefaultOptions()
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	v.SetDefault("source.path", "")
	v.SetDefault("source.object_store.endpoint", "")
	v.SetDefault("source.object_store.access_key_id", "")
	v.SetDefault("source.object_store.secret_access_key", "")
	v.SetDefault("source.object_store.use_ssl", true)
	v.SetDefault("source.object_store.region", "")
	v.SetDefault("source.object_store.bucket", "")
	v.SetDefault("source.object_store.key", "")

	v.SetDefault("viewer.zoom_per_scroll", vo.ZoomPerScroll)
	v.SetDefault("viewer.zoom_per_click", vo.ZoomPerClick)
	v.SetDefault("viewer.flick_enabled", vo.FlickEnabled)
	v.SetDefault("viewer.flick_momentum", vo.FlickMomentum)
	v.SetDefault("viewer.cache_capacity", vo.CacheCapacity)
	v.SetDefault("viewer.image_loader_limit", vo.ImageLoaderLimit)
	v.SetDefault("viewer.min_zoom", 0.0)
	v.SetDefault("viewer.max_zoom", vo.MaxZoom)
	v.SetDefault("viewer.animation_enabled", vo.AnimationEnabled)
	v.SetDefault("viewer.animation_time", vo.AnimationTime)
	v.SetDefault("viewer.microns_per_pixel", 0.0)

	fp := filter.DefaultParams()
	v.SetDefault("filter.brightness", fp.Brightness)
	v.SetDefault("filter.contrast", fp.Contrast)
	v.SetDefault("filter.saturation", fp.Saturation)
	v.SetDefault("filter.hue", fp.Hue)
	v.SetDefault("filter.gamma", fp.Gamma)
	v.SetDefault("filter.invert", fp.Invert)
	v.SetDefault("filter.grayscale", fp.Grayscale)

	v.SetDefault("overlay.tolerance_px", overlay.DefaultTolerancePx)
	v.SetDefault("overlay.close_radius_px", overlay.DefaultCloseRadiusPx)
	v.SetDefault("overlay.stroke", colorutil.Hex(overlay.DefaultStyle().Stroke))
	v.SetDefault("overlay.width", overlay.DefaultStyle().Width)

	hd := heatmap.DefaultSettings()
	v.SetDefault("heatmap.radius", hd.Radius)
	v.SetDefault("heatmap.density", hd.Density)
	v.SetDefault("heatmap.top_percent", hd.TopPercent)
	v.SetDefault("heatmap.opacity", hd.Opacity)
	v.SetDefault("heatmap.blend", DefaultHeatBlend)
	v.SetDefault("heatmap.blend_opacity", DefaultHeatBlendOpacity)

	v.SetDefault("capture.format", DefaultCaptureFormat)
	v.SetDefault("capture.dir", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", DefaultMetricsAddr)
}

// ApplyDefaults fills zero-value fields in cfg. Fields that are already set
// are left unchanged so that explicit configuration always wins.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	vo := viewport.DefaultOptions()
	if cfg.Viewer.ZoomPerScroll == 0 {
		cfg.Viewer.ZoomPerScroll = vo.ZoomPerScroll
	}
	if cfg.Viewer.ZoomPerClick == 0 {
		cfg.Viewer.ZoomPerClick = vo.ZoomPerClick
	}
	if cfg.Viewer.FlickMomentum == 0 {
		cfg.Viewer.FlickMomentum = vo.FlickMomentum
	}
	if cfg.Viewer.CacheCapacity == 0 {
		cfg.Viewer.CacheCapacity = vo.CacheCapacity
	}
	if cfg.Viewer.ImageLoaderLimit == 0 {
		cfg.Viewer.ImageLoaderLimit = vo.ImageLoaderLimit
	}
	if cfg.Viewer.MaxZoom == 0 {
		cfg.Viewer.MaxZoom = vo.MaxZoom
	}
	if cfg.Viewer.AnimationTime == 0 {
		cfg.Viewer.AnimationTime = vo.AnimationTime
	}

	if cfg.Filter.Gamma == 0 {
		cfg.Filter.Gamma = filter.DefaultParams().Gamma
	}

	if cfg.Overlay.TolerancePx == 0 {
		cfg.Overlay.TolerancePx = overlay.DefaultTolerancePx
	}
	if cfg.Overlay.CloseRadiusPx == 0 {
		cfg.Overlay.CloseRadiusPx = overlay.DefaultCloseRadiusPx
	}
	if cfg.Overlay.Stroke == "" {
		cfg.Overlay.Stroke = colorutil.Hex(overlay.DefaultStyle().Stroke)
	}
	if cfg.Overlay.Width == 0 {
		cfg.Overlay.Width = overlay.DefaultStyle().Width
	}

	hd := heatmap.DefaultSettings()
	if cfg.Heatmap.Radius == 0 {
		cfg.Heatmap.Radius = hd.Radius
	}
	if cfg.Heatmap.Opacity == 0 {
		cfg.Heatmap.Opacity = hd.Opacity
	}
	if cfg.Heatmap.Blend == "" {
		cfg.Heatmap.Blend = DefaultHeatBlend
	}
	if cfg.Heatmap.BlendOpacity == 0 {
		cfg.Heatmap.BlendOpacity = DefaultHeatBlendOpacity
	}

	if cfg.Capture.Format == "" {
		cfg.Capture.Format = DefaultCaptureFormat
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
}
