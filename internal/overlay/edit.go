package overlay

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"slidescope/pkg/geometry"
)

func (e *Engine) lookup(id string) (*Shape, error) {
	s, ok := e.shapes.get(id)
	if !ok {
		return nil, &ShapeNotFoundError{ID: id}
	}
	return s, nil
}

// editable returns the shape if it may be changed.
func (e *Engine) editable(id string) (*Shape, error) {
	s, err := e.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.Locked {
		return nil, fmt.Errorf("edit %s: %w", id, ErrShapeLocked)
	}
	if e.mode == ModeDragging && e.drag.id == id {
		return nil, fmt.Errorf("edit %s: %w", id, ErrBusy)
	}
	return s, nil
}

// reshape validates new geometry for s and applies it.
func (e *Engine) reshape(s *Shape, pts []geometry.Point2D, rotation float64) error {
	tmp := s.Clone()
	tmp.Points = pts
	tmp.Rotation = rotation
	if err := tmp.validate(); err != nil {
		return err
	}
	s.setPoints(pts, rotation)
	e.emit(EventUpdated, s)
	return nil
}

// MoveShape translates a shape by an image-space offset.
func (e *Engine) MoveShape(id string, dx, dy float64) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	return e.reshape(s, translated(s.Points, geometry.Point2D{X: dx, Y: dy}), s.Rotation)
}

// MoveVertex moves vertex i of a shape to an image-space position.
func (e *Engine) MoveVertex(id string, i int, to geometry.Point2D) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	pts, err := s.withVertex(i, to)
	if err != nil {
		return err
	}
	return e.reshape(s, pts, s.Rotation)
}

// Resize scales a shape by sx, sy about an image-space anchor, which stays
// fixed. Rotated boxes scale along their own axes.
func (e *Engine) Resize(id string, sx, sy float64, anchor geometry.Point2D) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	if !(sx > 0) || !(sy > 0) || math.IsInf(sx, 0) || math.IsInf(sy, 0) {
		return invalidf("scale %gx%g", sx, sy)
	}
	rad := s.radians()
	local := geometry.RotateAround(anchor, s.Center(), -rad)
	pts := make([]geometry.Point2D, len(s.Points))
	for i, p := range s.Points {
		pts[i] = geometry.Point2D{X: local.X + (p.X-local.X)*sx, Y: local.Y + (p.Y-local.Y)*sy}
	}
	if rad != 0 {
		tmp := Shape{Kind: s.Kind, Points: pts, Rotation: s.Rotation}
		drift := anchor.Sub(geometry.RotateAround(local, tmp.Center(), rad))
		pts = translated(pts, drift)
	}
	return e.reshape(s, pts, s.Rotation)
}

// RotateShape rotates a shape clockwise by degrees about its center.
// Circles, points and flags are unchanged.
func (e *Engine) RotateShape(id string, degrees float64) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	if math.IsNaN(degrees) || math.IsInf(degrees, 0) {
		return invalidf("rotation %g", degrees)
	}
	switch {
	case s.Kind.Rotatable():
		return e.reshape(s, s.Points, math.Mod(s.Rotation+degrees, 360))
	case s.Kind == KindCircle || s.Kind == KindPoint || s.Kind == KindFlag:
		return nil
	default:
		c := s.Center()
		rad := degrees * math.Pi / 180
		pts := make([]geometry.Point2D, len(s.Points))
		for i, p := range s.Points {
			pts[i] = geometry.RotateAround(p, c, rad)
		}
		return e.reshape(s, pts, s.Rotation)
	}
}

// SetLabel changes a shape's label.
func (e *Engine) SetLabel(id, label string) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	s.Label = label
	e.emit(EventUpdated, s)
	return nil
}

// SetStyle changes a shape's style. A non-positive width keeps the default.
func (e *Engine) SetStyle(id string, style Style) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	if style.Width <= 0 {
		style.Width = DefaultStyle().Width
	}
	s.Style = style
	e.emit(EventUpdated, s)
	return nil
}

// SetLocked locks or unlocks a shape. Locked shapes can be selected but
// not edited, dragged or deleted.
func (e *Engine) SetLocked(id string, locked bool) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Locked = locked
	e.emit(EventUpdated, s)
	return nil
}

// SetHidden hides or shows a shape. Hidden shapes are neither drawn nor hit.
func (e *Engine) SetHidden(id string, hidden bool) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Hidden = hidden
	e.emit(EventUpdated, s)
	return nil
}

// SetOrder sets the explicit z-order of a shape.
func (e *Engine) SetOrder(id string, order int) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.Order = order
	e.emit(EventUpdated, s)
	return nil
}

// Delete removes a shape. Deleting the edited shape returns to Idle.
func (e *Engine) Delete(id string) error {
	s, err := e.editable(id)
	if err != nil {
		return err
	}
	if e.selected == id {
		e.selected = ""
		e.mode = ModeIdle
	}
	e.shapes.remove(id)
	e.emit(EventDeleted, s)
	return nil
}

// Clear removes every shape, locked ones included. An edit or drag in
// progress ends; a drawing in progress is kept.
func (e *Engine) Clear() {
	if e.mode == ModeEditing || e.mode == ModeDragging {
		e.mode = ModeIdle
		e.drag = nil
	}
	e.selected = ""
	n := e.shapes.clear()
	e.logger.Debug("overlay: cleared shapes")
	if n > 0 {
		e.emit(EventCleared, nil)
	}
}

// Insert adds a shape programmatically. An empty ID is assigned; a zero
// style gets the engine's drawing style.
func (e *Engine) Insert(s Shape) (Shape, error) {
	shape := s.Clone()
	shape.measure = nil
	shape.Selected = false
	if shape.ID == "" {
		shape.ID = uuid.NewString()
	}
	if _, ok := e.shapes.get(shape.ID); ok {
		return Shape{}, fmt.Errorf("insert %s: %w", shape.ID, ErrDuplicateShape)
	}
	if shape.Style.isZero() {
		shape.Style = e.opts.Style
	}
	if err := shape.validate(); err != nil {
		return Shape{}, err
	}
	e.shapes.add(&shape)
	e.emit(EventCreated, &shape)
	return shape.Clone(), nil
}

// Shape returns a copy of the shape with the given ID.
func (e *Engine) Shape(id string) (Shape, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Shape{}, err
	}
	return s.Clone(), nil
}

// Shapes returns copies of every shape, bottom to top.
func (e *Engine) Shapes() []Shape {
	ordered := e.shapes.zOrdered()
	out := make([]Shape, len(ordered))
	for i, s := range ordered {
		out[i] = s.Clone()
	}
	return out
}

// Len returns the number of shapes.
func (e *Engine) Len() int {
	return e.shapes.len()
}

// Measure returns the measurement of a shape, computing it if the cached
// value was invalidated by a geometry or calibration change.
func (e *Engine) Measure(id string) (Measurement, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Measurement{}, err
	}
	if s.measure == nil {
		m := measure(s, e.cal)
		s.measure = &m
	}
	return *s.measure, nil
}

// SetCalibration changes the physical unit scale and invalidates every
// cached measurement.
func (e *Engine) SetCalibration(c Calibration) {
	e.cal = c
	for _, s := range e.shapes.byID {
		s.measure = nil
	}
}

// Calibration returns the current calibration.
func (e *Engine) Calibration() Calibration {
	return e.cal
}
