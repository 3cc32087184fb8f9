package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidescope/internal/heatmap"
	"slidescope/internal/screenshot"
	"slidescope/pkg/colorutil"
)

const validConfigYAML = `
log:
  level: debug
  format: json
source:
  path: /data/slides/S-1234.dzi
viewer:
  zoom_per_scroll: 1.5
  max_zoom: 2
  flick_enabled: false
  animation_time: 500ms
filter:
  brightness: 0.2
  invert: true
overlay:
  stroke: "#ff0000"
  width: 3
heatmap:
  top_percent: 5
  density: 4
  blend: screen
capture:
  format: jpg
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.True(t, cfg.Viewer.FlickEnabled)
	assert.True(t, cfg.Viewer.AnimationEnabled)
	assert.Equal(t, 1.0, cfg.Filter.Gamma)
	assert.Equal(t, heatmap.DefaultSettings(), cfg.Heatmap.Defaults)
	assert.Equal(t, screenshot.PNG, cfg.CaptureFormat())
	assert.False(t, cfg.HasSource())
	assert.True(t, cfg.Source.ObjectStore.UseSSL)
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.HasSource())
	assert.Equal(t, 1.5, cfg.Viewer.ZoomPerScroll)
	assert.Equal(t, 2.0, cfg.Viewer.MaxZoom)
	assert.False(t, cfg.Viewer.FlickEnabled)
	assert.Equal(t, 500*time.Millisecond, cfg.Viewer.AnimationTime)
	assert.Equal(t, 0.2, cfg.Filter.Brightness)
	assert.True(t, cfg.Filter.Invert)
	assert.Equal(t, 1.0, cfg.Filter.Gamma)
	assert.Equal(t, 5.0, cfg.Heatmap.TopPercent)
	assert.Equal(t, 4.0, cfg.Heatmap.Density)
	assert.Equal(t, screenshot.JPEG, cfg.CaptureFormat())

	opts := cfg.ViewerOptions(nil, nil)
	assert.Equal(t, colorutil.Red, opts.Overlay.Style.Stroke)
	assert.Equal(t, 3.0, opts.Overlay.Style.Width)
	assert.Equal(t, screenshot.BlendScreen, opts.HeatBlend)
	assert.Equal(t, 5.0, opts.Heatmap.TopPercent)
	assert.Equal(t, colorutil.Slate, opts.Viewport.Background)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SLIDESCOPE_VIEWER_MAX_ZOOM", "8")
	t.Setenv("SLIDESCOPE_HEATMAP_TOP_PERCENT", "25")

	cfg, err := Load(createTempConfigFile(t, validConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, 8.0, cfg.Viewer.MaxZoom)
	assert.Equal(t, 25.0, cfg.Heatmap.TopPercent)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigRead)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(createTempConfigFile(t, "viewer: [1, 2"))
	assert.ErrorIs(t, err, ErrConfigRead)
}

func TestValidation(t *testing.T) {
	for name, yaml := range map[string]string{
		"two sources":      "source:\n  path: a.dzi\n  object_store:\n    bucket: slides\n    endpoint: s3:9000\n    key: a.dzi\n",
		"bucket no key":    "source:\n  object_store:\n    bucket: slides\n",
		"zoom inverted":    "viewer:\n  min_zoom: 3\n  max_zoom: 2\n",
		"slow scroll":      "viewer:\n  zoom_per_scroll: 0.5\n",
		"gamma range":      "filter:\n  gamma: 9\n",
		"hue range":        "filter:\n  hue: 200\n",
		"top percent":      "heatmap:\n  top_percent: 150\n",
		"opacity":          "heatmap:\n  opacity: 1.5\n",
		"blend":            "heatmap:\n  blend: dodge\n",
		"stroke":           "overlay:\n  stroke: teal\n",
		"capture format":   "capture:\n  format: bmp\n",
		"negative density": "heatmap:\n  density: -1\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Load(createTempConfigFile(t, yaml))
			assert.ErrorIs(t, err, ErrConfigValidation)
		})
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Viewer.FlickEnabled)
	assert.Equal(t, "#00ffff", cfg.Overlay.Stroke)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Viewer.MaxZoom = 16
	cfg.Heatmap.Radius = 3
	cfg.Capture.Format = "tiff"
	ApplyDefaults(cfg)

	assert.Equal(t, 16.0, cfg.Viewer.MaxZoom)
	assert.Equal(t, 3.0, cfg.Heatmap.Radius)
	assert.Equal(t, "tiff", cfg.Capture.Format)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)

	ApplyDefaults(nil)
}
