package overlay

import (
	"encoding/json"
	"fmt"

	"slidescope/pkg/colorutil"
	"slidescope/pkg/geometry"
)

const documentVersion = 1

type document struct {
	Version int         `json:"version"`
	Shapes  []shapeJSON `json:"shapes"`
}

type styleJSON struct {
	Stroke string  `json:"stroke"`
	Fill   string  `json:"fill,omitempty"`
	Width  float64 `json:"width"`
}

type shapeJSON struct {
	ID       string             `json:"id"`
	Kind     Kind               `json:"kind"`
	Points   []geometry.Point2D `json:"points"`
	Rotation float64            `json:"rotation,omitempty"`
	Style    styleJSON          `json:"style"`
	Label    string             `json:"label,omitempty"`
	Order    int                `json:"order,omitempty"`
	Locked   bool               `json:"locked,omitempty"`
	Hidden   bool               `json:"hidden,omitempty"`
}

// MarshalShapes encodes shapes as a versioned JSON document. Selection
// and cached measurements are not included.
func MarshalShapes(shapes []Shape) ([]byte, error) {
	doc := document{Version: documentVersion, Shapes: make([]shapeJSON, 0, len(shapes))}
	for _, s := range shapes {
		st := styleJSON{Stroke: colorutil.Hex(s.Style.Stroke), Width: s.Style.Width}
		if s.Style.Fill.A > 0 {
			st.Fill = colorutil.Hex(s.Style.Fill)
		}
		doc.Shapes = append(doc.Shapes, shapeJSON{
			ID:       s.ID,
			Kind:     s.Kind,
			Points:   s.Points,
			Rotation: s.Rotation,
			Style:    st,
			Label:    s.Label,
			Order:    s.Order,
			Locked:   s.Locked,
			Hidden:   s.Hidden,
		})
	}
	return json.MarshalIndent(doc, "", "  ")
}

// UnmarshalShapes decodes a document written by MarshalShapes. Geometry is
// validated per shape.
func UnmarshalShapes(data []byte) ([]Shape, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse shapes: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("unsupported shapes document version %d", doc.Version)
	}
	out := make([]Shape, 0, len(doc.Shapes))
	for i, sj := range doc.Shapes {
		s := Shape{
			ID:       sj.ID,
			Kind:     sj.Kind,
			Points:   sj.Points,
			Rotation: sj.Rotation,
			Label:    sj.Label,
			Order:    sj.Order,
			Locked:   sj.Locked,
			Hidden:   sj.Hidden,
			Style:    Style{Width: sj.Style.Width},
		}
		var err error
		if sj.Style.Stroke != "" {
			if s.Style.Stroke, err = colorutil.ParseHex(sj.Style.Stroke); err != nil {
				return nil, fmt.Errorf("shape %d stroke: %w", i, err)
			}
		}
		if sj.Style.Fill != "" {
			if s.Style.Fill, err = colorutil.ParseHex(sj.Style.Fill); err != nil {
				return nil, fmt.Errorf("shape %d fill: %w", i, err)
			}
		}
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("shape %d (%s): %w", i, sj.ID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// Export encodes the engine's shapes.
func (e *Engine) Export() ([]byte, error) {
	return MarshalShapes(e.Shapes())
}

// Import decodes data and inserts every shape. Nothing is inserted if any
// shape is invalid or its ID already exists.
func (e *Engine) Import(data []byte) (int, error) {
	shapes, err := UnmarshalShapes(data)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(shapes))
	for _, s := range shapes {
		if s.ID == "" {
			continue
		}
		if _, ok := e.shapes.get(s.ID); ok || seen[s.ID] {
			return 0, fmt.Errorf("import %s: %w", s.ID, ErrDuplicateShape)
		}
		seen[s.ID] = true
	}
	for _, s := range shapes {
		if _, err := e.Insert(s); err != nil {
			return 0, err
		}
	}
	return len(shapes), nil
}
