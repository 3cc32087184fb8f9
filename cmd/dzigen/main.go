// Command dzigen turns a TIFF, PNG, JPEG or WebP image into a Deep Zoom pyramid.
package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"slidescope/internal/logging"
	"slidescope/internal/tile/dzi"
	"slidescope/internal/version"
)

type options struct {
	outDir   string
	name     string
	tileSize int
	overlap  int
	format   string
	quality  int
	mpp      float64
	logLevel string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	def := dzi.DefaultBuildOptions()

	cmd := &cobra.Command{
		Use:           "dzigen <image>",
		Short:         "Build a Deep Zoom pyramid from a slide image",
		Args:          cobra.ExactArgs(1),
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.outDir, "out", "o", ".", "output directory")
	f.StringVar(&opts.name, "name", "", "pyramid name (default: input file name without extension)")
	f.IntVar(&opts.tileSize, "tile-size", def.TileSize, "tile edge in pixels, overlap excluded")
	f.IntVar(&opts.overlap, "overlap", def.Overlap, "tile overlap in pixels")
	f.StringVar(&opts.format, "format", def.Format, "tile format: jpeg|png")
	f.IntVar(&opts.quality, "quality", def.Quality, "JPEG quality")
	f.Float64Var(&opts.mpp, "mpp", 0, "microns per pixel (default: read from TIFF resolution tags)")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func run(input string, opts *options) error {
	logger, err := logging.New(logging.Config{Level: opts.logLevel})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	f, err := os.Open(input)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	img, kind, err := image.Decode(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", input, err)
	}

	mpp := opts.mpp
	if mpp == 0 && kind == "tiff" {
		if mpp, err = dzi.ReadTIFFMicronsPerPixel(input); err != nil {
			logger.Warn("no resolution in tiff", zap.String("path", input), zap.Error(err))
			mpp = 0
		}
	}

	name := opts.name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	}
	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	desc, err := dzi.Build(img, opts.outDir, name, dzi.BuildOptions{
		TileSize:        opts.tileSize,
		Overlap:         opts.overlap,
		Format:          opts.format,
		Quality:         opts.quality,
		MicronsPerPixel: mpp,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s: %dx%d, %d levels, %.4f µm/px\n",
		filepath.Join(opts.outDir, name+".dzi"), desc.Width, desc.Height, desc.MaxLevel()+1, desc.MicronsPerPixel)
	return nil
}
