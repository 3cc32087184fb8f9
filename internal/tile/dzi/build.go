package dzi

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"slidescope/internal/logging"
	"slidescope/internal/tile"
)

// BuildOptions controls pyramid generation.
type BuildOptions struct {
	TileSize        int
	Overlap         int
	Format          string // "jpeg" or "png"
	Quality         int    // JPEG quality
	MicronsPerPixel float64
	Logger          *zap.Logger
}

// DefaultBuildOptions matches the layout most slide servers emit.
func DefaultBuildOptions() BuildOptions {
	return BuildOptions{TileSize: 254, Overlap: 1, Format: "jpeg", Quality: 90}
}

// Build writes img as <dir>/<name>.dzi plus <dir>/<name>_files/ and returns
// the descriptor it wrote.
func Build(img image.Image, dir, name string, opts BuildOptions) (tile.Descriptor, error) {
	logger := logging.OrNop(opts.Logger)
	if opts.Format == "" {
		opts.Format = "jpeg"
	}
	if opts.Format != "jpeg" && opts.Format != "png" {
		return tile.Descriptor{}, fmt.Errorf("unsupported tile format %q", opts.Format)
	}
	if opts.Quality <= 0 {
		opts.Quality = 90
	}

	b := img.Bounds()
	desc := tile.Descriptor{
		Width:           b.Dx(),
		Height:          b.Dy(),
		TileSize:        opts.TileSize,
		Overlap:         opts.Overlap,
		Format:          opts.Format,
		MicronsPerPixel: opts.MicronsPerPixel,
	}
	if err := desc.Validate(); err != nil {
		return tile.Descriptor{}, err
	}

	filesDir := filepath.Join(dir, name+"_files")
	level := toRGBA(img)
	for l := desc.MaxLevel(); l >= 0; l-- {
		if l < desc.MaxLevel() {
			w, h := desc.LevelSize(l)
			level = downscale(level, w, h)
		}
		if err := writeLevel(level, filesDir, desc, l, opts); err != nil {
			return tile.Descriptor{}, err
		}
		logger.Debug("pyramid level written", zap.Int("level", l),
			zap.Int("width", level.Bounds().Dx()), zap.Int("height", level.Bounds().Dy()))
	}

	f, err := os.Create(filepath.Join(dir, name+".dzi"))
	if err != nil {
		return tile.Descriptor{}, fmt.Errorf("failed to create dzi: %w", err)
	}
	defer f.Close()
	if err := WriteDescriptor(f, desc); err != nil {
		return tile.Descriptor{}, err
	}

	logger.Info("pyramid built", zap.String("name", name),
		zap.Int("levels", desc.MaxLevel()+1), zap.Int("width", desc.Width), zap.Int("height", desc.Height))
	return desc, nil
}

func writeLevel(level *image.RGBA, filesDir string, desc tile.Descriptor, l int, opts BuildOptions) error {
	levelDir := filepath.Join(filesDir, fmt.Sprint(l))
	if err := os.MkdirAll(levelDir, 0o755); err != nil {
		return err
	}
	cols, rows := desc.Grid(l)
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			id := tile.ID{Level: l, Col: col, Row: row}
			sub := level.SubImage(desc.PixelBounds(id))
			path := filepath.Join(filesDir, filepath.FromSlash(TilePath(id, desc.Format)))
			if err := writeTile(path, sub, opts); err != nil {
				return fmt.Errorf("tile %s: %w", id, err)
			}
		}
	}
	return nil
}

func writeTile(path string, img image.Image, opts BuildOptions) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	switch opts.Format {
	case "png":
		return png.Encode(f, img)
	default:
		return jpeg.Encode(f, img, &jpeg.Options{Quality: opts.Quality})
	}
}

func toRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func downscale(src *image.RGBA, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}
