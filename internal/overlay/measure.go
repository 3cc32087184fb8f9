package overlay

import (
	"fmt"
	"math"

	"slidescope/pkg/geometry"
)

// Calibration converts image pixels to a physical unit. The zero value
// reports measurements in pixels.
type Calibration struct {
	UnitsPerPixel float64 `mapstructure:"units_per_pixel" json:"unitsPerPixel"`
	Unit          string  `mapstructure:"unit" json:"unit"`
}

// MicronCalibration is the calibration for a slide scanned at mpp microns
// per pixel. A non-positive mpp yields pixel units.
func MicronCalibration(mpp float64) Calibration {
	if mpp <= 0 {
		return Calibration{}
	}
	return Calibration{UnitsPerPixel: mpp, Unit: "µm"}
}

func (c Calibration) scale() (float64, string) {
	if c.UnitsPerPixel > 0 && !math.IsInf(c.UnitsPerPixel, 0) && c.Unit != "" {
		return c.UnitsPerPixel, c.Unit
	}
	return 1, "px"
}

// Measurement holds the derived sizes of a shape. Length is set for lines
// and arrows; Area and Perimeter for closed kinds.
type Measurement struct {
	Kind      Kind
	Length    float64
	Area      float64
	Perimeter float64
	Unit      string
}

func (m Measurement) String() string {
	switch {
	case m.Kind == KindLine || m.Kind == KindArrow:
		return fmt.Sprintf("%.2f %s", m.Length, m.Unit)
	case m.Kind.Closed():
		return fmt.Sprintf("%.2f %s²", m.Area, m.Unit)
	default:
		return ""
	}
}

// measure computes the measurement of s from scratch.
func measure(s *Shape, cal Calibration) Measurement {
	k, unit := cal.scale()
	m := Measurement{Kind: s.Kind, Unit: unit}
	switch s.Kind {
	case KindLine, KindArrow:
		m.Length = s.Points[0].Distance(s.Points[1]) * k
	case KindRectangle:
		b := s.box()
		m.Area = b.Width * b.Height * k * k
		m.Perimeter = 2 * (b.Width + b.Height) * k
	case KindEllipse:
		b := s.box()
		a, c := b.Width/2, b.Height/2
		m.Area = math.Pi * a * c * k * k
		m.Perimeter = geometry.EllipsePerimeter(a, c) * k
	case KindCircle:
		_, r := s.circle()
		m.Area = math.Pi * r * r * k * k
		m.Perimeter = 2 * math.Pi * r * k
	case KindPolygon, KindFreehand:
		m.Area = geometry.PolygonArea(s.Points) * k * k
		m.Perimeter = geometry.PolylineLength(s.Points, true) * k
	case KindPoint, KindFlag:
	}
	return m
}
