// Package heatmap colours per-region scalar results and composites them
// over the slide with additive blending.
package heatmap

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"slidescope/pkg/colorutil"
)

// ErrInvalidGradient is returned for stop tables that are empty, out of
// [0,1] or not strictly increasing.
var ErrInvalidGradient = errors.New("invalid gradient")

// Stop maps a normalised value to a colour.
type Stop struct {
	Value float64
	Color color.RGBA
}

// GradientStopTable is a piecewise-linear colour ramp over [0,1].
type GradientStopTable struct {
	stops []Stop
}

// NewGradient builds a table from stops with strictly increasing values
// in [0,1].
func NewGradient(stops ...Stop) (GradientStopTable, error) {
	if len(stops) == 0 {
		return GradientStopTable{}, fmt.Errorf("%w: no stops", ErrInvalidGradient)
	}
	for i, s := range stops {
		if !(s.Value >= 0 && s.Value <= 1) {
			return GradientStopTable{}, fmt.Errorf("%w: stop %d value %g outside [0,1]", ErrInvalidGradient, i, s.Value)
		}
		if i > 0 && s.Value <= stops[i-1].Value {
			return GradientStopTable{}, fmt.Errorf("%w: stop %d value %g not above %g", ErrInvalidGradient, i, s.Value, stops[i-1].Value)
		}
	}
	return GradientStopTable{stops: append([]Stop(nil), stops...)}, nil
}

func mustGradient(stops ...Stop) GradientStopTable {
	g, err := NewGradient(stops...)
	if err != nil {
		panic(err)
	}
	return g
}

// Warm is the three-stop preset used for primary results.
func Warm() GradientStopTable {
	return mustGradient(
		Stop{0, colorutil.Yellow},
		Stop{0.5, colorutil.Orange},
		Stop{1, colorutil.Red},
	)
}

// Cool is the two-stop preset used for auxiliary results.
func Cool() GradientStopTable {
	return mustGradient(
		Stop{0, colorutil.Cyan},
		Stop{1, colorutil.Blue},
	)
}

// Stops returns a copy of the table.
func (g GradientStopTable) Stops() []Stop {
	return append([]Stop(nil), g.stops...)
}

// Len returns the number of stops.
func (g GradientStopTable) Len() int {
	return len(g.stops)
}

// At returns the colour for v. Values at a stop return that stop's colour,
// values between stops interpolate linearly and values outside the table
// take the nearest stop. An empty table yields transparent black.
func (g GradientStopTable) At(v float64) color.RGBA {
	n := len(g.stops)
	if n == 0 {
		return color.RGBA{}
	}
	if math.IsNaN(v) || v <= g.stops[0].Value {
		return g.stops[0].Color
	}
	if v >= g.stops[n-1].Value {
		return g.stops[n-1].Color
	}
	for i := 1; i < n; i++ {
		hi := g.stops[i]
		if v > hi.Value {
			continue
		}
		lo := g.stops[i-1]
		if v == hi.Value {
			return hi.Color
		}
		return colorutil.Lerp(lo.Color, hi.Color, (v-lo.Value)/(hi.Value-lo.Value))
	}
	return g.stops[n-1].Color
}

// Named returns a preset by name.
func Named(name string) (GradientStopTable, error) {
	switch name {
	case "warm", "":
		return Warm(), nil
	case "cool":
		return Cool(), nil
	default:
		return GradientStopTable{}, fmt.Errorf("%w: unknown preset %q", ErrInvalidGradient, name)
	}
}
