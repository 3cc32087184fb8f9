package dzi

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidescope/internal/tile"
)

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img
}

func TestDescriptorRoundTrip(t *testing.T) {
	want := tile.Descriptor{Width: 4000, Height: 3000, TileSize: 254, Overlap: 1, Format: "jpeg", MicronsPerPixel: 0.25}
	var buf bytes.Buffer
	require.NoError(t, WriteDescriptor(&buf, want))
	assert.Contains(t, buf.String(), `TileSize="254"`)

	got, err := ParseDescriptor(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseDescriptorStandardDocument(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<Image xmlns="http://schemas.microsoft.com/deepzoom/2008" Format="JPEG" Overlap="2" TileSize="510">
  <Size Width="91000" Height="70000"/>
</Image>`
	d, err := ParseDescriptor(bytes.NewBufferString(doc))
	require.NoError(t, err)
	assert.Equal(t, tile.Descriptor{Width: 91000, Height: 70000, TileSize: 510, Overlap: 2, Format: "jpeg"}, d)

	_, err = ParseDescriptor(bytes.NewBufferString(`<Image TileSize="0"><Size Width="1" Height="1"/></Image>`))
	assert.ErrorIs(t, err, tile.ErrInvalidDescriptor)
}

func TestBuildAndFetch(t *testing.T) {
	dir := t.TempDir()
	opts := DefaultBuildOptions()
	opts.TileSize = 64
	opts.Format = "png"
	desc, err := Build(gradientImage(200, 120), dir, "slide", opts)
	require.NoError(t, err)
	assert.Equal(t, 8, desc.MaxLevel())

	src, err := Open(filepath.Join(dir, "slide.dzi"))
	require.NoError(t, err)
	assert.Equal(t, desc, src.Descriptor())

	ctx := context.Background()
	id := tile.ID{Level: 8, Col: 1, Row: 1}
	img, err := src.Fetch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, desc.PixelBounds(id).Size(), img.Bounds().Size())

	// PNG tiles are lossless: pixel (63,63) of the source is at (0,0) of tile (1,1) with overlap 1.
	r, g, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	assert.Equal(t, uint32(63), r>>8)
	assert.Equal(t, uint32(63), g>>8)

	top, err := src.Fetch(ctx, tile.ID{Level: 0})
	require.NoError(t, err)
	assert.Equal(t, image.Pt(1, 1), top.Bounds().Size())

	_, err = src.Fetch(ctx, tile.ID{Level: 8, Col: 9})
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = src.Fetch(cancelled, id)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildRejectsUnknownFormat(t *testing.T) {
	_, err := Build(gradientImage(4, 4), t.TempDir(), "x", BuildOptions{TileSize: 2, Format: "gif"})
	assert.Error(t, err)
}

func TestReadTIFFMicronsPerPixel(t *testing.T) {
	// Minimal little-endian TIFF header with an IFD holding only resolution tags.
	var buf bytes.Buffer
	le := binary.LittleEndian
	buf.WriteString("II")
	binary.Write(&buf, le, uint16(42))
	binary.Write(&buf, le, uint32(8))
	binary.Write(&buf, le, uint16(3))
	entry := func(tag, typ uint16, count, value uint32) {
		binary.Write(&buf, le, tag)
		binary.Write(&buf, le, typ)
		binary.Write(&buf, le, count)
		binary.Write(&buf, le, value)
	}
	const rationalAt = 8 + 2 + 3*12 + 4
	entry(282, 5, 1, rationalAt)
	entry(283, 5, 1, rationalAt)
	entry(296, 3, 1, 3) // centimeters
	binary.Write(&buf, le, uint32(0))
	binary.Write(&buf, le, uint32(4000))
	binary.Write(&buf, le, uint32(1))

	path := filepath.Join(t.TempDir(), "scan.tif")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	mpp, err := ReadTIFFMicronsPerPixel(path)
	require.NoError(t, err)
	assert.InDelta(t, 2.5, mpp, 1e-9)

	require.NoError(t, os.WriteFile(path, []byte("not a tiff"), 0o644))
	_, err = ReadTIFFMicronsPerPixel(path)
	assert.Error(t, err)
}
