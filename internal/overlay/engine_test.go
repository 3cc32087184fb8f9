package overlay

import (
	"errors"
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidescope/pkg/colorutil"
	"slidescope/pkg/geometry"
)

func pt(x, y float64) geometry.Point2D { return geometry.Point2D{X: x, Y: y} }

func click(e *Engine, p geometry.Point2D) {
	e.PointerDown(p)
	e.PointerUp(p)
}

func drag(e *Engine, from, to geometry.Point2D) {
	e.PointerDown(from)
	e.PointerMove(from.Add(to).Scale(0.5))
	e.PointerMove(to)
	e.PointerUp(to)
}

func insert(t *testing.T, e *Engine, s Shape) Shape {
	t.Helper()
	got, err := e.Insert(s)
	require.NoError(t, err)
	return got
}

func TestPolygonBelowMinimumIsDiscarded(t *testing.T) {
	e := NewEngine(Options{})
	require.NoError(t, e.StartDraw(KindPolygon))
	click(e, pt(0, 0))
	click(e, pt(50, 0))
	click(e, pt(50, 0))

	_, ok := e.Commit()
	assert.False(t, ok)
	assert.Zero(t, e.Len())
	assert.Equal(t, ModeIdle, e.State().Mode)
}

func TestPolygonClosesOnFirstVertex(t *testing.T) {
	e := NewEngine(Options{})
	var created []Event
	e.Subscribe(func(ev Event) {
		if ev.Type == EventCreated {
			created = append(created, ev)
		}
	})

	require.NoError(t, e.StartDraw(KindPolygon))
	for _, p := range []geometry.Point2D{pt(0, 0), pt(100, 0), pt(100, 100), pt(0, 100)} {
		click(e, p)
	}
	assert.Equal(t, State{Mode: ModeDrawing, Kind: KindPolygon}, e.State())
	click(e, pt(3, 2))

	require.Len(t, created, 1)
	assert.Equal(t, KindPolygon, created[0].Shape.Kind)
	assert.Len(t, created[0].Shape.Points, 4)
	assert.Equal(t, ModeIdle, e.State().Mode)
}

func TestRectangleFromTwoDistinctCorners(t *testing.T) {
	e := NewEngine(Options{})
	require.NoError(t, e.StartDraw(KindRectangle))
	drag(e, pt(10, 10), pt(50, 40))

	shapes := e.Shapes()
	require.Len(t, shapes, 1)
	assert.Equal(t, []geometry.Point2D{pt(10, 10), pt(50, 40)}, shapes[0].Points)
	assert.Equal(t, geometry.Rect{X: 10, Y: 10, Width: 40, Height: 30}, shapes[0].Bounds())

	// Zero-length gestures are accidental and leave nothing behind.
	require.NoError(t, e.StartDraw(KindRectangle))
	click(e, pt(70, 70))
	assert.Equal(t, 1, e.Len())

	// Distinct corners are enough even when the box is degenerate.
	require.NoError(t, e.StartDraw(KindRectangle))
	drag(e, pt(10, 10), pt(10, 40))
	assert.Equal(t, 2, e.Len())
}

func TestDrawEveryKind(t *testing.T) {
	cases := []struct {
		kind   Kind
		draw   func(e *Engine)
		points int
	}{
		{KindPoint, func(e *Engine) { click(e, pt(5, 5)) }, 1},
		{KindFlag, func(e *Engine) { click(e, pt(5, 5)) }, 1},
		{KindEllipse, func(e *Engine) { drag(e, pt(0, 0), pt(20, 10)) }, 2},
		{KindCircle, func(e *Engine) { drag(e, pt(0, 0), pt(20, 10)) }, 2},
		{KindLine, func(e *Engine) { drag(e, pt(0, 0), pt(30, 40)) }, 2},
		{KindArrow, func(e *Engine) { drag(e, pt(0, 0), pt(30, 40)) }, 2},
		{KindFreehand, func(e *Engine) {
			e.PointerDown(pt(0, 0))
			e.PointerMove(pt(10, 0))
			e.PointerMove(pt(10, 0))
			e.PointerMove(pt(10, 10))
			e.PointerUp(pt(0, 10))
		}, 4},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			e := NewEngine(Options{})
			require.NoError(t, e.StartDraw(tc.kind))
			tc.draw(e)
			shapes := e.Shapes()
			require.Len(t, shapes, 1)
			assert.Equal(t, tc.kind, shapes[0].Kind)
			assert.Len(t, shapes[0].Points, tc.points)
			assert.NotEmpty(t, shapes[0].ID)
		})
	}
}

func TestFreehandTooShortIsDiscarded(t *testing.T) {
	e := NewEngine(Options{})
	require.NoError(t, e.StartDraw(KindFreehand))
	e.PointerDown(pt(0, 0))
	e.PointerMove(pt(5, 5))
	e.PointerUp(pt(5, 5))
	assert.Zero(t, e.Len())
}

func TestCancelDiscardsDrawing(t *testing.T) {
	e := NewEngine(Options{})
	require.NoError(t, e.StartDraw(KindPolygon))
	click(e, pt(0, 0))
	click(e, pt(10, 0))
	click(e, pt(10, 10))
	e.Cancel()

	assert.Equal(t, ModeIdle, e.State().Mode)
	_, ok := e.Commit()
	assert.False(t, ok)
	assert.Zero(t, e.Len())
}

func TestShapeNotFoundAfterClear(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindLine, Points: []geometry.Point2D{pt(0, 0), pt(10, 0)}})
	require.NoError(t, e.Select(s.ID))
	e.Clear()
	assert.Equal(t, ModeIdle, e.State().Mode)

	err := e.Select(s.ID)
	var nf *ShapeNotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, s.ID, nf.ID)
	assert.ErrorIs(t, err, ErrShapeNotFound)
	assert.Equal(t, ModeIdle, e.State().Mode)

	assert.ErrorIs(t, e.MoveShape(s.ID, 1, 1), ErrShapeNotFound)
	assert.ErrorIs(t, e.Delete(s.ID), ErrShapeNotFound)
	_, err = e.Measure(s.ID)
	assert.ErrorIs(t, err, ErrShapeNotFound)
}

func TestSelectUnknownKeepsState(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(1, 1)}})
	require.NoError(t, e.Select(s.ID))

	assert.ErrorIs(t, e.Select("nope"), ErrShapeNotFound)
	assert.Equal(t, State{Mode: ModeEditing, ShapeID: s.ID}, e.State())
	got, err := e.Shape(s.ID)
	require.NoError(t, err)
	assert.True(t, got.Selected)

	e.Deselect()
	assert.Equal(t, ModeIdle, e.State().Mode)
	got, _ = e.Shape(s.ID)
	assert.False(t, got.Selected)
}

func TestStartDrawWhileEditingDeselects(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(1, 1)}})
	require.NoError(t, e.Select(s.ID))
	require.NoError(t, e.StartDraw(KindLine))
	assert.Equal(t, State{Mode: ModeDrawing, Kind: KindLine}, e.State())
	got, _ := e.Shape(s.ID)
	assert.False(t, got.Selected)

	assert.Error(t, e.StartDraw(Kind(99)))
}

func TestHitToleranceIsConstantOnScreen(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindLine, Points: []geometry.Point2D{pt(0, 0), pt(100, 0)}})

	for _, zoom := range []float64{0.25, 1, 4} {
		xf := geometry.Translation(10, 10).Compose(geometry.Scale(zoom, zoom))
		e.SetTransform(xf)
		on := xf.Apply(pt(50, 0))

		hit, ok := e.HitTest(on.Add(pt(0, 5)))
		require.True(t, ok, "zoom %v", zoom)
		assert.Equal(t, s.ID, hit.ID)

		_, ok = e.HitTest(on.Add(pt(0, 8)))
		assert.False(t, ok, "zoom %v", zoom)
	}
}

func TestHitTestTopMostAndHidden(t *testing.T) {
	e := NewEngine(Options{})
	below := insert(t, e, Shape{Kind: KindRectangle, Points: []geometry.Point2D{pt(0, 0), pt(100, 100)}, Order: 2})
	above := insert(t, e, Shape{Kind: KindCircle, Points: []geometry.Point2D{pt(40, 40), pt(60, 60)}})

	// Explicit order beats insertion order.
	hit, ok := e.HitTest(pt(50, 50))
	require.True(t, ok)
	assert.Equal(t, below.ID, hit.ID)

	require.NoError(t, e.SetHidden(below.ID, true))
	hit, ok = e.HitTest(pt(50, 50))
	require.True(t, ok)
	assert.Equal(t, above.ID, hit.ID)

	_, ok = e.HitTest(pt(300, 300))
	assert.False(t, ok)
}

func TestShapeDragAndCancel(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindRectangle, Points: []geometry.Point2D{pt(10, 10), pt(30, 30)}})
	var updates int
	e.Subscribe(func(ev Event) {
		if ev.Type == EventUpdated {
			updates++
		}
	})

	require.NoError(t, e.Select(s.ID))
	require.NoError(t, e.BeginShapeDrag(pt(20, 20)))
	assert.Equal(t, ModeDragging, e.State().Mode)
	e.PointerMove(pt(25, 22))
	e.PointerUp(pt(30, 25))

	assert.Equal(t, State{Mode: ModeEditing, ShapeID: s.ID}, e.State())
	got, _ := e.Shape(s.ID)
	assert.Equal(t, []geometry.Point2D{pt(20, 15), pt(40, 35)}, got.Points)
	assert.Equal(t, 1, updates)

	require.NoError(t, e.BeginVertexDrag(1, pt(40, 35)))
	e.PointerMove(pt(90, 90))
	e.Cancel()
	assert.Equal(t, ModeEditing, e.State().Mode)
	got, _ = e.Shape(s.ID)
	assert.Equal(t, []geometry.Point2D{pt(20, 15), pt(40, 35)}, got.Points)
}

func TestPointerSelectsAndDragsVertex(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindLine, Points: []geometry.Point2D{pt(0, 0), pt(100, 0)}})

	click(e, pt(50, 2))
	assert.Equal(t, State{Mode: ModeEditing, ShapeID: s.ID}, e.State())

	drag(e, pt(99, 1), pt(100, 50))
	got, _ := e.Shape(s.ID)
	assert.Equal(t, pt(100, 50), got.Points[1])
	assert.Equal(t, pt(0, 0), got.Points[0])

	click(e, pt(500, 500))
	assert.Equal(t, ModeIdle, e.State().Mode)
}

func TestLockedShapeRefusesEdits(t *testing.T) {
	e := NewEngine(Options{})
	s := insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(5, 5)}})
	require.NoError(t, e.SetLocked(s.ID, true))

	assert.ErrorIs(t, e.MoveShape(s.ID, 1, 0), ErrShapeLocked)
	assert.ErrorIs(t, e.SetLabel(s.ID, "x"), ErrShapeLocked)
	assert.ErrorIs(t, e.Delete(s.ID), ErrShapeLocked)
	require.NoError(t, e.Select(s.ID))
	assert.ErrorIs(t, e.BeginShapeDrag(pt(5, 5)), ErrShapeLocked)

	require.NoError(t, e.SetLocked(s.ID, false))
	assert.NoError(t, e.MoveShape(s.ID, 1, 0))
}

func TestEditsRevalidateGeometry(t *testing.T) {
	e := NewEngine(Options{})
	line := insert(t, e, Shape{Kind: KindLine, Points: []geometry.Point2D{pt(0, 0), pt(10, 0)}})

	err := e.MoveVertex(line.ID, 1, pt(0, 0))
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	got, _ := e.Shape(line.ID)
	assert.Equal(t, pt(10, 0), got.Points[1])

	assert.ErrorIs(t, e.MoveVertex(line.ID, 5, pt(1, 1)), ErrInvalidGeometry)
	assert.ErrorIs(t, e.Resize(line.ID, 0, 1, pt(0, 0)), ErrInvalidGeometry)

	_, err = e.Insert(Shape{Kind: KindPolygon, Points: []geometry.Point2D{pt(0, 0), pt(1, 1), pt(0, 0)}})
	assert.ErrorIs(t, err, ErrInvalidGeometry)
	_, err = e.Insert(Shape{ID: line.ID, Kind: KindPoint, Points: []geometry.Point2D{pt(0, 0)}})
	assert.ErrorIs(t, err, ErrDuplicateShape)
}

func TestMeasure(t *testing.T) {
	e := NewEngine(Options{})
	line := insert(t, e, Shape{Kind: KindLine, Points: []geometry.Point2D{pt(0, 0), pt(3, 4)}})
	rect := insert(t, e, Shape{Kind: KindRectangle, Points: []geometry.Point2D{pt(10, 30), pt(0, 10)}})
	ell := insert(t, e, Shape{Kind: KindEllipse, Points: []geometry.Point2D{pt(0, 0), pt(10, 6)}})
	circ := insert(t, e, Shape{Kind: KindCircle, Points: []geometry.Point2D{pt(0, 0), pt(10, 6)}})
	tri := insert(t, e, Shape{Kind: KindPolygon, Points: []geometry.Point2D{pt(0, 0), pt(4, 0), pt(0, 3)}})

	m, err := e.Measure(line.ID)
	require.NoError(t, err)
	assert.InDelta(t, 5, m.Length, 1e-9)
	assert.Equal(t, "px", m.Unit)
	assert.Equal(t, "5.00 px", m.String())

	m, _ = e.Measure(rect.ID)
	assert.InDelta(t, 200, m.Area, 1e-9)
	assert.InDelta(t, 60, m.Perimeter, 1e-9)

	m, _ = e.Measure(ell.ID)
	assert.InDelta(t, math.Pi*15, m.Area, 1e-9)

	m, _ = e.Measure(circ.ID)
	assert.InDelta(t, math.Pi*25, m.Area, 1e-9)
	assert.InDelta(t, math.Pi*10, m.Perimeter, 1e-9)

	m, _ = e.Measure(tri.ID)
	assert.InDelta(t, 6, m.Area, 1e-9)
	assert.InDelta(t, 12, m.Perimeter, 1e-9)

	e.SetCalibration(MicronCalibration(0.5))
	m, _ = e.Measure(line.ID)
	assert.InDelta(t, 2.5, m.Length, 1e-9)
	assert.Equal(t, "µm", m.Unit)
	m, _ = e.Measure(rect.ID)
	assert.InDelta(t, 50, m.Area, 1e-9)
}

func TestMeasureCacheFollowsGeometry(t *testing.T) {
	e := NewEngine(Options{})
	line := insert(t, e, Shape{Kind: KindLine, Points: []geometry.Point2D{pt(0, 0), pt(3, 4)}})

	_, err := e.Measure(line.ID)
	require.NoError(t, err)
	stored, _ := e.shapes.get(line.ID)
	require.NotNil(t, stored.measure)

	require.NoError(t, e.MoveVertex(line.ID, 1, pt(6, 8)))
	assert.Nil(t, stored.measure)
	m, _ := e.Measure(line.ID)
	assert.InDelta(t, 10, m.Length, 1e-9)

	require.NoError(t, e.MoveShape(line.ID, 100, 100))
	m, _ = e.Measure(line.ID)
	assert.InDelta(t, 10, m.Length, 1e-9)
}

func TestRotateAndResize(t *testing.T) {
	e := NewEngine(Options{})
	rect := insert(t, e, Shape{Kind: KindRectangle, Points: []geometry.Point2D{pt(0, 0), pt(10, 4)}})

	require.NoError(t, e.RotateShape(rect.ID, 90))
	got, _ := e.Shape(rect.ID)
	b := got.Bounds()
	assert.InDelta(t, 4, b.Width, 1e-9)
	assert.InDelta(t, 10, b.Height, 1e-9)
	hit, ok := e.HitTest(pt(5, 6))
	require.True(t, ok)
	assert.Equal(t, rect.ID, hit.ID)

	anchor := got.Handles()[0]
	require.NoError(t, e.Resize(rect.ID, 2, 2, anchor))
	got, _ = e.Shape(rect.ID)
	after := got.Handles()[0]
	assert.InDelta(t, anchor.X, after.X, 1e-9)
	assert.InDelta(t, anchor.Y, after.Y, 1e-9)
	m, _ := e.Measure(rect.ID)
	assert.InDelta(t, 160, m.Area, 1e-9)

	poly := insert(t, e, Shape{Kind: KindPolygon, Points: []geometry.Point2D{pt(0, 0), pt(10, 0), pt(10, 10), pt(0, 10)}})
	require.NoError(t, e.RotateShape(poly.ID, 45))
	got, _ = e.Shape(poly.ID)
	assert.InDelta(t, 10*math.Sqrt2, got.Bounds().Width, 1e-9)
	m, _ = e.Measure(poly.ID)
	assert.InDelta(t, 100, m.Area, 1e-9)
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	e := NewEngine(Options{})
	var types []EventType
	cancel := e.Subscribe(func(ev Event) { types = append(types, ev.Type) })

	s := insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(0, 0)}})
	require.NoError(t, e.SetLabel(s.ID, "mitosis"))
	require.NoError(t, e.Delete(s.ID))
	insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(0, 0)}})
	e.Clear()
	assert.Equal(t, []EventType{EventCreated, EventUpdated, EventDeleted, EventCreated, EventCleared}, types)

	cancel()
	insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(0, 0)}})
	assert.Len(t, types, 5)
}

func TestEnginesAreIndependent(t *testing.T) {
	a, b := NewEngine(Options{}), NewEngine(Options{})
	s := insert(t, a, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(0, 0)}})
	require.NoError(t, a.StartDraw(KindLine))

	assert.Zero(t, b.Len())
	assert.Equal(t, ModeIdle, b.State().Mode)
	assert.ErrorIs(t, b.Select(s.ID), ErrShapeNotFound)
}

func TestRenderSkipsShapesOutsideView(t *testing.T) {
	e := NewEngine(Options{})
	red := colorutil.Red
	insert(t, e, Shape{
		Kind:   KindRectangle,
		Points: []geometry.Point2D{pt(10, 10), pt(50, 50)},
		Style:  Style{Stroke: colorutil.Blue, Fill: red, Width: 2},
	})
	insert(t, e, Shape{Kind: KindRectangle, Points: []geometry.Point2D{pt(500, 500), pt(600, 600)}})
	hidden := insert(t, e, Shape{Kind: KindPoint, Points: []geometry.Point2D{pt(80, 80)}})
	require.NoError(t, e.SetHidden(hidden.ID, true))

	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	drawn := e.Render(dst, geometry.Identity(), geometry.Rect{Width: 100, Height: 100})
	assert.Equal(t, 1, drawn)
	assert.Equal(t, 3, e.Len(), "skipped shapes stay in the collection")

	fill := dst.RGBAAt(30, 30)
	assert.Greater(t, fill.R, uint8(250))
	assert.Less(t, fill.B, uint8(5))
	edge := dst.RGBAAt(10, 30)
	assert.Greater(t, edge.B, uint8(200))
	assert.Zero(t, dst.RGBAAt(80, 80).A)
	assert.Zero(t, dst.RGBAAt(95, 5).A)
}

func TestRenderFollowsTransform(t *testing.T) {
	e := NewEngine(Options{})
	insert(t, e, Shape{
		Kind:   KindRectangle,
		Points: []geometry.Point2D{pt(1000, 1000), pt(1010, 1010)},
		Style:  Style{Stroke: colorutil.Green, Fill: colorutil.Green, Width: 1},
	})
	xf := geometry.Translation(-3980, -3980).Compose(geometry.Scale(4, 4))
	view := geometry.Rect{X: 995, Y: 995, Width: 25, Height: 25}

	dst := image.NewRGBA(image.Rect(0, 0, 100, 100))
	require.Equal(t, 1, e.Render(dst, xf, view))
	assert.Greater(t, dst.RGBAAt(40, 40).G, uint8(250))
	assert.Zero(t, dst.RGBAAt(10, 10).A)
}

func TestExportImport(t *testing.T) {
	src := NewEngine(Options{})
	insert(t, src, Shape{
		Kind:     KindEllipse,
		Points:   []geometry.Point2D{pt(0, 0), pt(20, 10)},
		Rotation: 30,
		Label:    "tumour margin",
		Style:    Style{Stroke: colorutil.Orange, Fill: colorutil.WithAlpha(colorutil.Yellow, 64), Width: 3},
	})
	flag := insert(t, src, Shape{Kind: KindFlag, Points: []geometry.Point2D{pt(7, 8)}, Label: "review", Order: 3})
	require.NoError(t, src.SetLocked(flag.ID, true))

	data, err := src.Export()
	require.NoError(t, err)

	dst := NewEngine(Options{})
	n, err := dst.Import(data)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, src.Shapes(), dst.Shapes())

	_, err = dst.Import(data)
	assert.ErrorIs(t, err, ErrDuplicateShape)
	assert.Equal(t, 2, dst.Len())

	_, err = UnmarshalShapes([]byte(`{"version":1,"shapes":[{"kind":"line","points":[{"x":1,"y":1},{"x":1,"y":1}],"style":{"stroke":"#ffffff","width":1}}]}`))
	assert.True(t, errors.Is(err, ErrInvalidGeometry))
	_, err = UnmarshalShapes([]byte(`{"version":9,"shapes":[]}`))
	assert.Error(t, err)
}
