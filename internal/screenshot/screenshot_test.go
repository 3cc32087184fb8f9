package screenshot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"slidescope/internal/heatmap"
	"slidescope/internal/metrics"
	"slidescope/internal/overlay"
	"slidescope/pkg/colorutil"
	"slidescope/pkg/geometry"
)

type staticScene struct {
	base *image.RGBA
	xf   geometry.AffineTransform
}

func (s *staticScene) Base() (*image.RGBA, geometry.AffineTransform) { return s.base, s.xf }

func gray(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 100, 100, 100, 255
	}
	return img
}

// ramp encodes each pixel's position in its red and green channels.
func ramp(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	return img
}

func TestCaptureWithoutBaseFails(t *testing.T) {
	for name, c := range map[string]*Composer{
		"nil scene":  NewComposer(nil, Options{}),
		"empty base": NewComposer(&staticScene{xf: geometry.Identity()}, Options{}),
	} {
		t.Run(name, func(t *testing.T) {
			img, err := c.Capture(nil)
			assert.Nil(t, img)
			var empty *EmptyViewportError
			require.True(t, errors.As(err, &empty))
			assert.ErrorIs(t, err, ErrEmptyViewport)
		})
	}
}

func TestCaptureLeavesBaseUntouched(t *testing.T) {
	scene := &staticScene{base: gray(40, 30), xf: geometry.Identity()}
	before := append([]uint8(nil), scene.base.Pix...)

	paintRed := LayerFunc(func(dst *image.RGBA, _ geometry.AffineTransform) {
		dst.SetRGBA(5, 5, colorutil.Red)
	})
	out, err := NewComposer(scene, Options{}, paintRed).Capture(nil)
	require.NoError(t, err)

	assert.Equal(t, colorutil.Red, out.RGBAAt(5, 5))
	assert.Equal(t, before, scene.base.Pix)
	assert.Equal(t, scene.base.Bounds(), out.Bounds())
}

func TestLayersAreDrawnInOrder(t *testing.T) {
	scene := &staticScene{base: gray(10, 10), xf: geometry.Scale(2, 2)}
	var order []string
	var seen geometry.AffineTransform
	layer := func(name string, c color.RGBA) Layer {
		return LayerFunc(func(dst *image.RGBA, xf geometry.AffineTransform) {
			order = append(order, name)
			seen = xf
			dst.SetRGBA(1, 1, c)
		})
	}
	out, err := NewComposer(scene, Options{}, layer("heat", colorutil.Yellow), layer("overlay", colorutil.Blue)).Capture(nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"heat", "overlay"}, order)
	assert.Equal(t, colorutil.Blue, out.RGBAAt(1, 1))
	assert.Equal(t, scene.xf, seen)
}

func TestCaptureRegionCropsAtScreenResolution(t *testing.T) {
	scene := &staticScene{base: ramp(100, 80), xf: geometry.Scale(0.5, 0.5)}
	c := NewComposer(scene, Options{})

	out, err := c.Capture(&geometry.Rect{X: 20, Y: 20, Width: 40, Height: 40})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 20, 20), out.Bounds())
	assert.Equal(t, color.RGBA{R: 10, G: 10, A: 255}, out.RGBAAt(0, 0))
	assert.Equal(t, color.RGBA{R: 29, G: 29, A: 255}, out.RGBAAt(19, 19))

	partial, err := c.Capture(&geometry.Rect{X: -100, Y: -100, Width: 120, Height: 120})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 10, 10), partial.Bounds())

	_, err = c.Capture(&geometry.Rect{X: 1000, Y: 1000, Width: 10, Height: 10})
	assert.ErrorIs(t, err, ErrRegionOutsideViewport)
}

func TestHeatAndOverlayLayers(t *testing.T) {
	heat := heatmap.NewRenderer(nil)
	heat.Add(&heatmap.Layer{
		Title: "Tumour", Display: true, Gradient: heatmap.Warm(),
		Radius: 5, TopPercent: 100, Opacity: 1,
		Scalars: []heatmap.Point{{Position: geometry.Point2D{X: 60, Y: 60}, Value: 1}},
	})

	shapes := overlay.NewEngine(overlay.Options{})
	_, err := shapes.Insert(overlay.Shape{
		Kind:   overlay.KindRectangle,
		Points: []geometry.Point2D{{X: 10, Y: 10}, {X: 50, Y: 50}},
		Style:  overlay.Style{Stroke: colorutil.Blue, Width: 4},
	})
	require.NoError(t, err)

	scene := &staticScene{base: gray(80, 80), xf: geometry.Identity()}
	out, err := NewComposer(scene, Options{}, HeatLayer(heat, BlendNormal, 1), OverlayLayer(shapes)).Capture(nil)
	require.NoError(t, err)

	assert.Equal(t, colorutil.Red, out.RGBAAt(60, 60))
	edge := out.RGBAAt(30, 10)
	assert.Greater(t, edge.B, uint8(250))
	assert.Less(t, edge.R, uint8(5))
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, out.RGBAAt(30, 30), "rectangle interior is not filled")

	require.NoError(t, heat.SetDisplay(0, false))
	hidden, err := NewComposer(scene, Options{}, HeatLayer(heat, BlendNormal, 1)).Capture(nil)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{100, 100, 100, 255}, hidden.RGBAAt(60, 60))
}

func TestBlendModes(t *testing.T) {
	px := func(c color.RGBA) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, 1, 1))
		img.SetRGBA(0, 0, c)
		return img
	}
	base := color.RGBA{R: 200, G: 100, B: 50, A: 255}
	for _, tc := range []struct {
		mode    BlendMode
		src     color.RGBA
		opacity float64
		want    color.RGBA
	}{
		{BlendNormal, colorutil.Red, 1, colorutil.Red},
		{BlendNormal, colorutil.Black, 0.5, color.RGBA{R: 100, G: 50, B: 25, A: 255}},
		{BlendMultiply, colorutil.White, 1, base},
		{BlendScreen, colorutil.Black, 1, base},
		{BlendDifference, base, 1, color.RGBA{A: 255}},
		{BlendNormal, color.RGBA{}, 1, base},
		{BlendNormal, colorutil.Red, 0, base},
	} {
		dst := px(base)
		Blend(dst, px(tc.src), tc.mode, tc.opacity)
		assert.Equal(t, tc.want, dst.RGBAAt(0, 0), "%s over with opacity %v", tc.mode, tc.opacity)
	}
}

func TestParseBlendMode(t *testing.T) {
	m, err := ParseBlendMode("Screen")
	require.NoError(t, err)
	assert.Equal(t, BlendScreen, m)
	m, err = ParseBlendMode("")
	require.NoError(t, err)
	assert.Equal(t, BlendNormal, m)
	_, err = ParseBlendMode("dodge")
	assert.Error(t, err)
}

func TestEncodeFormats(t *testing.T) {
	img := ramp(16, 12)

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, img, PNG))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
	r, g, _, _ := decoded.At(7, 3).RGBA()
	assert.Equal(t, uint32(7*0x101), r)
	assert.Equal(t, uint32(3*0x101), g)

	buf.Reset()
	require.NoError(t, Encode(&buf, img, JPEG))
	decoded, err = jpeg.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	buf.Reset()
	require.NoError(t, Encode(&buf, img, TIFF))
	decoded, err = tiff.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())

	assert.ErrorIs(t, Encode(&buf, img, Format("bmp")), ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{".JPG": JPEG, "jpeg": JPEG, "png": PNG, ".tif": TIFF, "TIFF": TIFF} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	f, err := FormatForPath("/tmp/slide-01.png")
	require.NoError(t, err)
	assert.Equal(t, PNG, f)
	_, err = FormatForPath("notes.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestCaptureRecordsDuration(t *testing.T) {
	m, err := metrics.NewTiles(prometheus.NewRegistry(), nil)
	require.NoError(t, err)
	scene := &staticScene{base: gray(8, 8), xf: geometry.Identity()}
	c := NewComposer(scene, Options{Metrics: m})

	_, err = c.Capture(nil)
	require.NoError(t, err)
	_, err = NewComposer(nil, Options{Metrics: m}).Capture(nil)
	require.Error(t, err)

	var pb dto.Metric
	require.NoError(t, m.CaptureDuration.Write(&pb))
	assert.Equal(t, uint64(1), pb.GetHistogram().GetSampleCount())
}
