package heatmap

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"

	"slidescope/pkg/geometry"
)

// Category distinguishes the primary result of a diagnosis from
// auxiliary ones.
type Category int

const (
	Primary Category = iota
	Auxiliary
)

func (c Category) String() string {
	if c == Auxiliary {
		return "auxiliary"
	}
	return "primary"
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Category) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "primary", "":
		*c = Primary
	case "auxiliary":
		*c = Auxiliary
	default:
		return fmt.Errorf("unknown result category %q", b)
	}
	return nil
}

// Point is one region scalar: a position in image pixels and a value in [0,1].
type Point struct {
	Position geometry.Point2D `json:"position"`
	Value    float64          `json:"value"`
}

// Result is a diagnosis result for one category as delivered by the
// analysis service.
type Result struct {
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Display  bool     `json:"display"`
	Selected bool     `json:"selected"`
	Regions  []Point  `json:"regions"`
}

// Defaults are the rendering settings given to layers built from results.
type Defaults struct {
	// Radius of each disk in screen pixels.
	Radius float64 `mapstructure:"radius"`
	// Density caps the points drawn per 100x100 image-pixel cell; 0 draws all.
	Density float64 `mapstructure:"density"`
	// TopPercent is the share of highest values drawn, 0..100.
	TopPercent float64 `mapstructure:"top_percent"`
	Opacity    float64 `mapstructure:"opacity"`
}

// DefaultSettings returns the stock layer settings.
func DefaultSettings() Defaults {
	return Defaults{Radius: 8, TopPercent: 10, Opacity: 0.6}
}

// densityCell is the side, in image pixels, of the cells Density counts in.
const densityCell = 100.0

// Layer is one heat-map overlay. Toggling Display never discards Scalars.
type Layer struct {
	Title    string
	Category Category
	Display  bool
	Selected bool

	Gradient   GradientStopTable
	Radius     float64
	Density    float64
	TopPercent float64
	Opacity    float64

	Scalars []Point
}

// NewLayerFromResult builds a layer from a diagnosis result. Primary
// results use the Warm gradient and auxiliary ones Cool.
func NewLayerFromResult(r Result, d Defaults) *Layer {
	g := Warm()
	if r.Category == Auxiliary {
		g = Cool()
	}
	def := DefaultSettings()
	if d.Radius <= 0 {
		d.Radius = def.Radius
	}
	if d.Opacity <= 0 || d.Opacity > 1 {
		d.Opacity = def.Opacity
	}
	if d.Density < 0 {
		d.Density = 0
	}
	return &Layer{
		Title:      r.Title,
		Category:   r.Category,
		Display:    r.Display,
		Selected:   r.Selected,
		Gradient:   g,
		Radius:     d.Radius,
		Density:    d.Density,
		TopPercent: math.Max(0, math.Min(100, d.TopPercent)),
		Opacity:    d.Opacity,
		Scalars:    append([]Point(nil), r.Regions...),
	}
}

// Badge is the short label shown on the layer toggle: the first two
// characters of the title, or the whole title when it is shorter.
func (l *Layer) Badge() string {
	return Badge(l.Title)
}

// Badge returns the first two characters of title.
func Badge(title string) string {
	r := []rune(title)
	if len(r) <= 2 {
		return title
	}
	return string(r[:2])
}

// TopCount is how many of n points a cutoff of pct percent keeps, rounded
// down.
func TopCount(n int, pct float64) int {
	if n <= 0 || !(pct > 0) {
		return 0
	}
	if pct >= 100 {
		return n
	}
	// The epsilon keeps exact products such as 7% of 100 from rounding to 6.
	k := int(math.Floor(float64(n)*pct/100 + 1e-9))
	return min(k, n)
}

// Select returns the indices into scalars drawn by the layer, highest
// values first: the top TopPercent, then thinned to Density per cell.
func (l *Layer) Select(scalars []Point) []int {
	k := TopCount(len(scalars), l.TopPercent)
	if k == 0 {
		return nil
	}
	values := make([]float64, len(scalars))
	for i, p := range scalars {
		values[i] = clampUnit(p.Value)
	}
	idx := make([]int, len(values))
	floats.Argsort(values, idx)

	top := make([]int, 0, k)
	for i := len(idx) - 1; i >= len(idx)-k; i-- {
		top = append(top, idx[i])
	}
	if l.Density <= 0 {
		return top
	}

	perCell := int(math.Max(1, math.Floor(l.Density)))
	counts := make(map[[2]int]int)
	kept := top[:0]
	for _, i := range top {
		p := scalars[i].Position
		cell := [2]int{int(math.Floor(p.X / densityCell)), int(math.Floor(p.Y / densityCell))}
		if counts[cell] >= perCell {
			continue
		}
		counts[cell]++
		kept = append(kept, i)
	}
	return kept
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
