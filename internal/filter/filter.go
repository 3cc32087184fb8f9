// Package filter applies colour adjustments to the base slide raster.
// Overlays and heat maps are composited after filtering and are never
// affected by it.
package filter

import (
	"image"
	"math"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/clone"
	"github.com/anthonynsimon/bild/effect"
)

// Parameter ranges. Values outside a range are clamped.
const (
	MinBrightness, MaxBrightness = -1.0, 1.0
	MinContrast, MaxContrast     = -1.0, 1.0
	MinSaturation, MaxSaturation = -1.0, 1.0
	MinHue, MaxHue               = -180.0, 180.0
	MinGamma, MaxGamma           = 0.2, 5.0
)

// Params are the filter settings. The zero value is not neutral because
// Gamma must be 1; use DefaultParams.
type Params struct {
	Brightness float64 `mapstructure:"brightness" json:"brightness"`
	Contrast   float64 `mapstructure:"contrast" json:"contrast"`
	Saturation float64 `mapstructure:"saturation" json:"saturation"`
	Hue        float64 `mapstructure:"hue" json:"hue"` // degrees
	Gamma      float64 `mapstructure:"gamma" json:"gamma"`
	Invert     bool    `mapstructure:"invert" json:"invert"`
	Grayscale  bool    `mapstructure:"grayscale" json:"grayscale"`
}

// DefaultParams returns the identity settings.
func DefaultParams() Params {
	return Params{Gamma: 1}
}

// IsIdentity reports whether p leaves every pixel unchanged.
func (p Params) IsIdentity() bool {
	return p == DefaultParams()
}

// Clamped returns p with every value forced into its range. NaN falls back
// to the default for that parameter.
func (p Params) Clamped() Params {
	d := DefaultParams()
	p.Brightness = clamp(p.Brightness, MinBrightness, MaxBrightness, d.Brightness)
	p.Contrast = clamp(p.Contrast, MinContrast, MaxContrast, d.Contrast)
	p.Saturation = clamp(p.Saturation, MinSaturation, MaxSaturation, d.Saturation)
	p.Hue = clamp(p.Hue, MinHue, MaxHue, d.Hue)
	p.Gamma = clamp(p.Gamma, MinGamma, MaxGamma, d.Gamma)
	return p
}

// Pipeline holds the current filter settings of one viewer.
type Pipeline struct {
	params Params
}

// NewPipeline returns a pipeline with identity settings.
func NewPipeline() *Pipeline {
	return &Pipeline{params: DefaultParams()}
}

// SetParams replaces the settings, clamping out-of-range values.
func (p *Pipeline) SetParams(params Params) {
	p.params = params.Clamped()
}

// Params returns the effective settings.
func (p *Pipeline) Params() Params {
	return p.params
}

// Reset restores the identity settings.
func (p *Pipeline) Reset() {
	p.params = DefaultParams()
}

// Apply returns a filtered copy of frame. frame is never modified; with
// identity settings the copy is pixel-identical to it.
func (p *Pipeline) Apply(frame image.Image) *image.RGBA {
	if frame == nil {
		return nil
	}
	prm := p.params
	out := clone.AsRGBA(frame)
	if prm.IsIdentity() {
		return out
	}

	if prm.Brightness != 0 {
		out = adjust.Brightness(out, prm.Brightness)
	}
	if prm.Contrast != 0 {
		out = adjust.Contrast(out, prm.Contrast)
	}
	if prm.Saturation != 0 {
		out = adjust.Saturation(out, prm.Saturation)
	}
	if h := int(math.Round(prm.Hue)); h != 0 {
		out = adjust.Hue(out, h)
	}
	if prm.Gamma != 1 {
		out = adjust.Gamma(out, prm.Gamma)
	}
	if prm.Grayscale {
		out = clone.AsRGBA(effect.Grayscale(out))
	}
	if prm.Invert {
		out = effect.Invert(out)
	}
	return out
}

func clamp(v, lo, hi, def float64) float64 {
	if math.IsNaN(v) {
		return def
	}
	return math.Max(lo, math.Min(hi, v))
}
