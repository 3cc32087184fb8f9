package overlay

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slidescope/internal/logging"
	"slidescope/pkg/geometry"
)

// Mode is the state of the draw/edit machine.
type Mode int

const (
	ModeIdle Mode = iota
	ModeDrawing
	ModeEditing
	ModeDragging
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "Idle"
	case ModeDrawing:
		return "Drawing"
	case ModeEditing:
		return "Editing"
	case ModeDragging:
		return "Dragging"
	default:
		return "Unknown"
	}
}

// State is a snapshot of the machine. Kind is meaningful while drawing,
// ShapeID while editing or dragging.
type State struct {
	Mode    Mode
	Kind    Kind
	ShapeID string
}

// EventType identifies a collection change.
type EventType int

const (
	EventCreated EventType = iota
	EventUpdated
	EventDeleted
	EventCleared
	EventSelected
	EventDeselected
)

// Event is delivered to subscribers after a change has been applied.
// Shape is a copy and may be modified freely.
type Event struct {
	Type  EventType
	ID    string
	Shape Shape
}

const (
	// DefaultTolerancePx is the hit-test distance in screen pixels.
	DefaultTolerancePx = 6.0
	// DefaultCloseRadiusPx is how close, in screen pixels, a click must be
	// to the first polygon vertex to close the polygon.
	DefaultCloseRadiusPx = 10.0
)

// Options configures an Engine.
type Options struct {
	TolerancePx   float64 `mapstructure:"tolerance_px"`
	CloseRadiusPx float64 `mapstructure:"close_radius_px"`

	// Style is given to shapes created by drawing.
	Style       Style       `mapstructure:"-"`
	Calibration Calibration `mapstructure:"-"`
	Logger      *zap.Logger `mapstructure:"-"`
}

// session is the in-progress shape while drawing.
type session struct {
	kind      Kind
	points    []geometry.Point2D
	cursor    geometry.Point2D
	hasCursor bool
	pressed   bool
}

type dragState struct {
	id     string
	vertex int // -1 moves the whole shape
	start  geometry.Point2D
	orig   Shape
	moved  bool
}

// Engine owns the shapes of one viewer and the gesture state machine that
// creates and edits them. It is not safe for concurrent use.
type Engine struct {
	opts   Options
	logger *zap.Logger
	shapes *collection
	cal    Calibration

	xf, inv geometry.AffineTransform

	mode     Mode
	selected string
	draw     *session
	drag     *dragState

	subs    map[int]func(Event)
	nextSub int
}

// NewEngine returns an empty engine in the Idle state with an identity
// transform.
func NewEngine(opts Options) *Engine {
	if opts.TolerancePx <= 0 {
		opts.TolerancePx = DefaultTolerancePx
	}
	if opts.CloseRadiusPx <= 0 {
		opts.CloseRadiusPx = DefaultCloseRadiusPx
	}
	if opts.Style.isZero() {
		opts.Style = DefaultStyle()
	}
	return &Engine{
		opts:   opts,
		logger: logging.OrNop(opts.Logger),
		shapes: newCollection(),
		cal:    opts.Calibration,
		xf:     geometry.Identity(),
		inv:    geometry.Identity(),
		subs:   make(map[int]func(Event)),
	}
}

// SetTransform updates the image-to-screen transform used to interpret
// pointer positions. Non-invertible transforms are ignored.
func (e *Engine) SetTransform(xf geometry.AffineTransform) {
	inv, ok := xf.Inverse()
	if !ok {
		e.logger.Warn("overlay: ignoring non-invertible transform")
		return
	}
	e.xf, e.inv = xf, inv
}

// Transform returns the transform last given to SetTransform.
func (e *Engine) Transform() geometry.AffineTransform {
	return e.xf
}

// State returns the current machine state.
func (e *Engine) State() State {
	st := State{Mode: e.mode}
	switch e.mode {
	case ModeDrawing:
		st.Kind = e.draw.kind
	case ModeEditing, ModeDragging:
		st.ShapeID = e.selected
	}
	return st
}

// Subscribe registers fn for change events and returns a function that
// removes it.
func (e *Engine) Subscribe(fn func(Event)) (cancel func()) {
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	return func() { delete(e.subs, id) }
}

func (e *Engine) emit(t EventType, s *Shape) {
	ev := Event{Type: t}
	if s != nil {
		ev.ID = s.ID
		ev.Shape = s.Clone()
	}
	for _, fn := range e.subs {
		fn(ev)
	}
}

// tolerance converts the screen-space tolerance to image pixels so that
// selection feels the same at every zoom.
func (e *Engine) tolerance() float64 {
	z := e.xf.ScaleFactor()
	if z <= 0 {
		z = 1
	}
	return e.opts.TolerancePx / z
}

// StartDraw enters Drawing for kind. An edited shape is deselected first
// and an unfinished drawing is discarded.
func (e *Engine) StartDraw(kind Kind) error {
	if !kind.Valid() {
		return fmt.Errorf("start draw: unknown shape kind %d", int(kind))
	}
	switch e.mode {
	case ModeDragging:
		return fmt.Errorf("start draw: %w", ErrBusy)
	case ModeEditing:
		e.deselect()
	}
	e.draw = &session{kind: kind}
	e.mode = ModeDrawing
	return nil
}

// PointerDown handles a press at a screen position. While drawing it adds
// geometry; otherwise it selects the shape under the pointer and starts
// dragging it or one of its vertices.
func (e *Engine) PointerDown(p geometry.Point2D) {
	q := e.inv.Apply(p)
	switch e.mode {
	case ModeDrawing:
		e.drawDown(p, q)
	case ModeIdle, ModeEditing:
		e.pick(q)
	}
}

// PointerMove handles pointer motion at a screen position.
func (e *Engine) PointerMove(p geometry.Point2D) {
	q := e.inv.Apply(p)
	switch e.mode {
	case ModeDrawing:
		e.drawMove(q)
	case ModeDragging:
		e.dragTo(q)
	}
}

// PointerUp handles a release. It completes press-drag gestures; polygons
// are completed by clicking their first vertex or by Commit.
func (e *Engine) PointerUp(p geometry.Point2D) {
	q := e.inv.Apply(p)
	switch e.mode {
	case ModeDrawing:
		s := e.draw
		if !s.pressed || s.kind == KindPolygon {
			return
		}
		e.drawMove(q)
		s.pressed = false
		e.Commit()
	case ModeDragging:
		e.dragTo(q)
		e.endDrag()
	}
}

func (e *Engine) drawDown(p, q geometry.Point2D) {
	s := e.draw
	switch s.kind {
	case KindPoint, KindFlag, KindFreehand:
		s.points = []geometry.Point2D{q}
		s.pressed = true
	case KindRectangle, KindEllipse, KindCircle, KindLine, KindArrow:
		s.points = []geometry.Point2D{q, q}
		s.pressed = true
	case KindPolygon:
		if len(distinctPoints(s.points, true)) >= KindPolygon.MinPoints() &&
			p.Distance(e.xf.Apply(s.points[0])) <= e.opts.CloseRadiusPx {
			e.Commit()
			return
		}
		s.points = append(s.points, q)
		s.cursor, s.hasCursor = q, true
	}
}

func (e *Engine) drawMove(q geometry.Point2D) {
	s := e.draw
	if s.kind == KindPolygon {
		s.cursor, s.hasCursor = q, true
		return
	}
	if !s.pressed {
		return
	}
	switch s.kind {
	case KindPoint, KindFlag:
		s.points[0] = q
	case KindRectangle, KindEllipse, KindCircle, KindLine, KindArrow:
		s.points[1] = q
	case KindFreehand:
		if !s.points[len(s.points)-1].Near(q, 1e-9) {
			s.points = append(s.points, q)
		}
	}
}

// Commit finishes the current drawing. The shape is added and returned
// only if it has enough distinct points for its kind; otherwise the
// gesture is discarded without error. The engine returns to Idle either way.
func (e *Engine) Commit() (Shape, bool) {
	if e.mode != ModeDrawing {
		return Shape{}, false
	}
	s := e.draw
	e.draw = nil
	e.mode = ModeIdle

	pts := s.points
	if s.kind == KindPolygon || s.kind == KindFreehand {
		pts = distinctPoints(pts, true)
	}
	shape := &Shape{
		ID:     uuid.NewString(),
		Kind:   s.kind,
		Points: append([]geometry.Point2D(nil), pts...),
		Style:  e.opts.Style,
	}
	if err := shape.validate(); err != nil {
		e.logger.Debug("overlay: discarded gesture", zap.Stringer("kind", s.kind), zap.Error(err))
		return Shape{}, false
	}
	e.shapes.add(shape)
	e.emit(EventCreated, shape)
	return shape.Clone(), true
}

// Cancel abandons the current gesture. Drawing discards the in-progress
// shape, Dragging restores the geometry from before the drag, Editing
// deselects.
func (e *Engine) Cancel() {
	switch e.mode {
	case ModeDrawing:
		e.draw = nil
		e.mode = ModeIdle
	case ModeDragging:
		if s, ok := e.shapes.get(e.drag.id); ok {
			s.setPoints(e.drag.orig.Points, e.drag.orig.Rotation)
		}
		e.drag = nil
		e.mode = ModeEditing
	case ModeEditing:
		e.deselect()
	}
}

// Select enters Editing for the shape. An unfinished drawing is discarded.
// An unknown id returns *ShapeNotFoundError and leaves the state unchanged.
func (e *Engine) Select(id string) error {
	if e.mode == ModeDragging {
		return fmt.Errorf("select: %w", ErrBusy)
	}
	s, ok := e.shapes.get(id)
	if !ok {
		return &ShapeNotFoundError{ID: id}
	}
	if e.mode == ModeDrawing {
		e.draw = nil
	}
	if prev, ok := e.shapes.get(e.selected); ok && prev != s {
		prev.Selected = false
	}
	s.Selected = true
	e.selected = id
	e.mode = ModeEditing
	e.emit(EventSelected, s)
	return nil
}

// Deselect leaves Editing.
func (e *Engine) Deselect() {
	if e.mode == ModeEditing {
		e.deselect()
	}
}

func (e *Engine) deselect() {
	s, ok := e.shapes.get(e.selected)
	e.selected = ""
	e.mode = ModeIdle
	if ok {
		s.Selected = false
		e.emit(EventDeselected, s)
	}
}

// BeginVertexDrag starts dragging vertex i of the edited shape from the
// screen position at.
func (e *Engine) BeginVertexDrag(i int, at geometry.Point2D) error {
	s, err := e.dragTarget()
	if err != nil {
		return err
	}
	if i < 0 || i >= len(s.Points) {
		return invalidf("vertex %d out of range for %s with %d points", i, s.Kind, len(s.Points))
	}
	e.beginDrag(s, i, e.inv.Apply(at))
	return nil
}

// BeginShapeDrag starts moving the edited shape from the screen position at.
func (e *Engine) BeginShapeDrag(at geometry.Point2D) error {
	s, err := e.dragTarget()
	if err != nil {
		return err
	}
	e.beginDrag(s, -1, e.inv.Apply(at))
	return nil
}

func (e *Engine) dragTarget() (*Shape, error) {
	if e.mode != ModeEditing {
		return nil, fmt.Errorf("begin drag in %s: %w", e.mode, ErrBusy)
	}
	s, ok := e.shapes.get(e.selected)
	if !ok {
		return nil, &ShapeNotFoundError{ID: e.selected}
	}
	if s.Locked {
		return nil, fmt.Errorf("drag %s: %w", s.ID, ErrShapeLocked)
	}
	return s, nil
}

func (e *Engine) beginDrag(s *Shape, vertex int, q geometry.Point2D) {
	e.drag = &dragState{id: s.ID, vertex: vertex, start: q, orig: s.Clone()}
	e.mode = ModeDragging
}

// dragTo applies the drag at image position q. Positions that would leave
// the shape invalid are skipped.
func (e *Engine) dragTo(q geometry.Point2D) {
	d := e.drag
	s, ok := e.shapes.get(d.id)
	if !ok {
		e.drag = nil
		e.mode = ModeIdle
		return
	}
	if d.vertex < 0 {
		s.setPoints(translated(d.orig.Points, q.Sub(d.start)), d.orig.Rotation)
		d.moved = d.moved || q != d.start
		return
	}
	pts, err := s.withVertex(d.vertex, q)
	if err != nil {
		return
	}
	tmp := s.Clone()
	tmp.Points = pts
	if tmp.validate() != nil {
		return
	}
	s.setPoints(pts, s.Rotation)
	d.moved = true
}

func (e *Engine) endDrag() {
	d := e.drag
	e.drag = nil
	e.mode = ModeEditing
	if s, ok := e.shapes.get(d.id); ok && d.moved {
		e.emit(EventUpdated, s)
	}
}

// pick selects the shape under q. Pressing on the edited shape or one of
// its handles starts a drag.
func (e *Engine) pick(q geometry.Point2D) {
	tol := e.tolerance()
	if e.mode == ModeEditing {
		if s, ok := e.shapes.get(e.selected); ok && !s.Locked && !s.Hidden {
			if i := vertexAt(s, q, tol); i >= 0 {
				e.beginDrag(s, i, q)
				return
			}
			if hits(s, q, tol) {
				e.beginDrag(s, -1, q)
				return
			}
		}
	}
	top := e.topAt(q, tol)
	if top == nil {
		if e.mode == ModeEditing {
			e.deselect()
		}
		return
	}
	if err := e.Select(top.ID); err != nil {
		return
	}
	if !top.Locked {
		e.beginDrag(top, -1, q)
	}
}

func (e *Engine) topAt(q geometry.Point2D, tol float64) *Shape {
	shapes := e.shapes.zOrdered()
	for i := len(shapes) - 1; i >= 0; i-- {
		if s := shapes[i]; !s.Hidden && hits(s, q, tol) {
			return s
		}
	}
	return nil
}

// HitTest returns the top-most visible shape at a screen position.
func (e *Engine) HitTest(p geometry.Point2D) (Shape, bool) {
	s := e.topAt(e.inv.Apply(p), e.tolerance())
	if s == nil {
		return Shape{}, false
	}
	return s.Clone(), true
}

// Preview returns the in-progress shape while drawing, including the
// rubber-band vertex of an open polygon.
func (e *Engine) Preview() (Shape, bool) {
	if e.mode != ModeDrawing || len(e.draw.points) == 0 {
		return Shape{}, false
	}
	pts := append([]geometry.Point2D(nil), e.draw.points...)
	if e.draw.kind == KindPolygon && e.draw.hasCursor {
		pts = append(pts, e.draw.cursor)
	}
	return Shape{Kind: e.draw.kind, Points: pts, Style: e.opts.Style}, true
}
