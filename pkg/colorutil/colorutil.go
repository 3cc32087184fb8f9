// Package colorutil provides shared color utilities for the slide viewer.
package colorutil

import (
	"fmt"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Common overlay colors used throughout the application.
var (
	Black   = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	White   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	Red     = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	Orange  = color.RGBA{R: 255, G: 128, B: 0, A: 255}
	Cyan    = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	Magenta = color.RGBA{R: 255, G: 0, B: 255, A: 255}
	Blue    = color.RGBA{R: 0, G: 0, B: 255, A: 255}
	Green   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	Yellow  = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	Slate   = color.RGBA{R: 40, G: 40, B: 40, A: 255}
)

// ParseHex parses "#rrggbb" or "#rrggbbaa" into a non-premultiplied RGBA color.
func ParseHex(s string) (color.RGBA, error) {
	if len(s) == 9 && s[0] == '#' {
		c, err := colorful.Hex(s[:7])
		if err != nil {
			return color.RGBA{}, err
		}
		var a uint8
		if _, err := fmt.Sscanf(s[7:], "%02x", &a); err != nil {
			return color.RGBA{}, fmt.Errorf("invalid alpha in %q: %w", s, err)
		}
		r, g, b := c.RGB255()
		return color.RGBA{R: r, G: g, B: b, A: a}, nil
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, err
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Hex formats a color as "#rrggbb", appending alpha when it is not opaque.
func Hex(c color.RGBA) string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// Lerp linearly interpolates two non-premultiplied colors channel by channel.
// t is clamped to [0,1].
func Lerp(a, b color.RGBA, t float64) color.RGBA {
	t = clamp(t, 0, 1)
	ca := colorful.Color{R: float64(a.R) / 255, G: float64(a.G) / 255, B: float64(a.B) / 255}
	cb := colorful.Color{R: float64(b.R) / 255, G: float64(b.G) / 255, B: float64(b.B) / 255}
	mixed := ca.BlendRgb(cb, t).Clamped()
	return color.RGBA{
		R: to8(mixed.R),
		G: to8(mixed.G),
		B: to8(mixed.B),
		A: to8(float64(a.A)/255 + t*(float64(b.A)-float64(a.A))/255),
	}
}

// WithAlpha returns c with its alpha replaced.
func WithAlpha(c color.RGBA, a uint8) color.RGBA {
	c.A = a
	return c
}

// Premultiply converts a straight-alpha color to the premultiplied form
// expected by image.RGBA.
func Premultiply(c color.RGBA) color.RGBA {
	if c.A == 255 {
		return c
	}
	a := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R)*a + 127) / 255),
		G: uint8((uint32(c.G)*a + 127) / 255),
		B: uint8((uint32(c.B)*a + 127) / 255),
		A: c.A,
	}
}

func to8(v float64) uint8 {
	return uint8(clamp(v, 0, 1)*255 + 0.5)
}

func clamp(x, min, max float64) float64 {
	if x < min {
		return min
	}
	if x > max {
		return max
	}
	return x
}
