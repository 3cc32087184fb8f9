// Package tile describes deep-zoom image pyramids and loads their tiles.
package tile

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"slidescope/pkg/geometry"
)

// ErrInvalidDescriptor is returned when a pyramid description is unusable.
var ErrInvalidDescriptor = errors.New("invalid image descriptor")

// ID identifies one tile of the pyramid.
type ID struct {
	Level int
	Col   int
	Row   int
}

func (id ID) String() string {
	return fmt.Sprintf("%d/%d_%d", id.Level, id.Col, id.Row)
}

// Tile is a decoded tile held by the cache.
type Tile struct {
	ID    ID
	Image image.Image
	// Bounds is the area the tile covers in image space, overlap included.
	Bounds geometry.Rect
}

// Source supplies decoded tiles for a single slide.
// Fetch must honour ctx cancellation.
type Source interface {
	Descriptor() Descriptor
	Fetch(ctx context.Context, id ID) (image.Image, error)
}

// Descriptor is the Deep Zoom description of a pyramid. Level MaxLevel()
// holds the image at native resolution; each lower level halves it.
type Descriptor struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	TileSize int    `json:"tile_size"`
	Overlap  int    `json:"overlap"`
	Format   string `json:"format"`
	// MicronsPerPixel is the physical calibration at full resolution, 0 if unknown.
	MicronsPerPixel float64 `json:"microns_per_pixel,omitempty"`
}

// Validate checks that the descriptor describes a non-empty pyramid.
func (d Descriptor) Validate() error {
	switch {
	case d.Width <= 0 || d.Height <= 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidDescriptor, d.Width, d.Height)
	case d.TileSize <= 0:
		return fmt.Errorf("%w: tile size %d", ErrInvalidDescriptor, d.TileSize)
	case d.Overlap < 0 || d.Overlap >= d.TileSize:
		return fmt.Errorf("%w: overlap %d", ErrInvalidDescriptor, d.Overlap)
	}
	return nil
}

// MaxLevel returns the index of the full-resolution level.
func (d Descriptor) MaxLevel() int {
	longest := max(d.Width, d.Height)
	if longest <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(longest))))
}

// LevelScale returns the ratio of level pixels to image pixels.
func (d Descriptor) LevelScale(level int) float64 {
	return math.Ldexp(1, level-d.MaxLevel())
}

// LevelSize returns the pixel dimensions of a level.
func (d Descriptor) LevelSize(level int) (w, h int) {
	s := d.LevelScale(level)
	return int(math.Ceil(float64(d.Width) * s)), int(math.Ceil(float64(d.Height) * s))
}

// Grid returns the number of tile columns and rows at a level.
func (d Descriptor) Grid(level int) (cols, rows int) {
	w, h := d.LevelSize(level)
	return (w + d.TileSize - 1) / d.TileSize, (h + d.TileSize - 1) / d.TileSize
}

// Contains reports whether id addresses an existing tile.
func (d Descriptor) Contains(id ID) bool {
	if id.Level < 0 || id.Level > d.MaxLevel() {
		return false
	}
	cols, rows := d.Grid(id.Level)
	return id.Col >= 0 && id.Row >= 0 && id.Col < cols && id.Row < rows
}

// PixelBounds returns the rectangle a tile covers in level pixels, overlap included.
// This is also the size of the tile image the source returns.
func (d Descriptor) PixelBounds(id ID) image.Rectangle {
	w, h := d.LevelSize(id.Level)
	x0 := id.Col * d.TileSize
	y0 := id.Row * d.TileSize
	if id.Col > 0 {
		x0 -= d.Overlap
	}
	if id.Row > 0 {
		y0 -= d.Overlap
	}
	x1 := min((id.Col+1)*d.TileSize+d.Overlap, w)
	y1 := min((id.Row+1)*d.TileSize+d.Overlap, h)
	return image.Rect(x0, y0, x1, y1)
}

// ImageBounds returns the area a tile covers in image space, overlap included.
func (d Descriptor) ImageBounds(id ID) geometry.Rect {
	pb := d.PixelBounds(id)
	inv := 1 / d.LevelScale(id.Level)
	return geometry.Rect{
		X:      float64(pb.Min.X) * inv,
		Y:      float64(pb.Min.Y) * inv,
		Width:  float64(pb.Dx()) * inv,
		Height: float64(pb.Dy()) * inv,
	}
}

// LevelForZoom returns the coarsest level whose resolution is at least zoom
// screen pixels per image pixel.
func (d Descriptor) LevelForZoom(zoom float64) int {
	maxLevel := d.MaxLevel()
	if zoom <= 0 {
		return 0
	}
	level := maxLevel + int(math.Ceil(math.Log2(zoom)-1e-9))
	return max(0, min(level, maxLevel))
}

// TilesIn lists the tiles of a level intersecting an image-space rectangle,
// row by row.
func (d Descriptor) TilesIn(level int, r geometry.Rect) []ID {
	if level < 0 || level > d.MaxLevel() {
		return nil
	}
	clip := r.Intersect(geometry.Rect{Width: float64(d.Width), Height: float64(d.Height)})
	if clip.Empty() {
		return nil
	}
	s := d.LevelScale(level)
	ts := float64(d.TileSize)
	cols, rows := d.Grid(level)
	c0 := max(0, int(math.Floor(clip.X*s/ts)))
	r0 := max(0, int(math.Floor(clip.Y*s/ts)))
	c1 := min(cols-1, int(math.Floor((clip.X+clip.Width)*s/ts)))
	r1 := min(rows-1, int(math.Floor((clip.Y+clip.Height)*s/ts)))

	ids := make([]ID, 0, (c1-c0+1)*(r1-r0+1))
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			ids = append(ids, ID{Level: level, Col: col, Row: row})
		}
	}
	return ids
}
