// Command slideshot renders a view of a slide with its annotations and heat
// maps and writes it as an image, without a window.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"slidescope/internal/config"
	"slidescope/internal/heatmap"
	"slidescope/internal/logging"
	"slidescope/internal/screenshot"
	"slidescope/internal/version"
	"slidescope/internal/viewer"
	"slidescope/internal/viewport"
	"slidescope/pkg/geometry"
)

type options struct {
	configPath string
	output     string
	width      int
	height     int
	zoom       float64
	center     string
	rotate     float64
	region     string
	shapes     string
	results    string
	thumb      int
	timeout    time.Duration
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "slideshot",
		Short:         "Capture a screenshot of a slide view",
		Long:          "slideshot opens a Deep Zoom slide, positions the view, overlays annotations\nand heat-map results, and writes the composed image.",
		Version:       version.String(),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				v.SetConfigFile(opts.configPath)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("%w: %q: %w", config.ErrConfigRead, opts.configPath, err)
				}
			}
			cfg, err := config.LoadViper(v)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return run(ctx, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	f.StringVarP(&opts.output, "out", "o", "slideshot.png", "output file; the extension selects the format")
	f.IntVar(&opts.width, "width", 1280, "viewport width in pixels")
	f.IntVar(&opts.height, "height", 800, "viewport height in pixels")
	f.Float64Var(&opts.zoom, "zoom", 0, "screen pixels per image pixel (default: fit the slide)")
	f.StringVar(&opts.center, "center", "", "image point to center on, as x,y")
	f.Float64Var(&opts.rotate, "rotate", 0, "rotation in degrees, clockwise")
	f.StringVar(&opts.region, "region", "", "image-space region to crop to, as x,y,w,h")
	f.StringVar(&opts.shapes, "shapes", "", "annotation document to draw")
	f.StringVar(&opts.results, "results", "", "diagnosis results (JSON array) to draw as heat maps")
	f.IntVar(&opts.thumb, "thumb", 0, "fit the output into a square of this size")
	f.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "time allowed for loading tiles")

	f.String("source", "", "local .dzi descriptor (overrides source.path)")
	f.String("log-level", "", "log level (overrides log.level)")
	_ = v.BindPFlag("source.path", f.Lookup("source"))
	_ = v.BindPFlag("log.level", f.Lookup("log-level"))
	return cmd
}

func run(ctx context.Context, cfg *config.Config, opts *options) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	format, err := screenshot.FormatForPath(opts.output)
	if err != nil {
		format = cfg.CaptureFormat()
		logger.Warn("output extension not recognised, using configured format",
			zap.String("out", opts.output), zap.String("format", string(format)))
	}
	var region *geometry.Rect
	if opts.region != "" {
		r, err := parseRegion(opts.region)
		if err != nil {
			return err
		}
		region = &r
	}

	src, err := cfg.OpenSource(ctx, logger)
	if err != nil {
		return err
	}

	vw := viewer.New(cfg.ViewerOptions(logger, nil))
	defer vw.Close()
	doc := viewport.Elements{"slide": &viewport.StaticMount{Width: opts.width, Height: opts.height}}
	if err := vw.Open(doc, viewport.ByID("slide"), src); err != nil {
		return err
	}

	vp := vw.Viewport()
	if opts.center != "" {
		p, err := parsePoint(opts.center)
		if err != nil {
			return err
		}
		vp.PanTo(p)
	}
	if opts.zoom > 0 {
		w, h := vp.Size()
		vp.ZoomTo(opts.zoom, geometry.Point2D{X: float64(w) / 2, Y: float64(h) / 2})
	}
	if opts.rotate != 0 {
		vp.SetRotation(opts.rotate)
	}

	if opts.shapes != "" {
		data, err := os.ReadFile(opts.shapes)
		if err != nil {
			return fmt.Errorf("failed to read shapes: %w", err)
		}
		n, err := vw.Overlay().Import(data)
		if err != nil {
			return fmt.Errorf("failed to import %s: %w", opts.shapes, err)
		}
		logger.Info("shapes imported", zap.Int("count", n))
	}
	if opts.results != "" {
		results, err := readResults(opts.results)
		if err != nil {
			return err
		}
		vw.LoadResults(results)
		logger.Info("heat maps loaded", zap.Int("layers", len(results)))
	}

	if err := vw.WaitIdle(ctx); err != nil {
		return fmt.Errorf("tiles did not load: %w", err)
	}
	if st := vp.Stats(); st.Failed > 0 {
		logger.Warn("some tiles failed to load, placeholders kept", zap.Int("failed", st.Failed))
	}

	img, err := vw.Capture(region)
	if err != nil {
		return err
	}
	var out image.Image = img
	if opts.thumb > 0 {
		out = imaging.Fit(img, opts.thumb, opts.thumb, imaging.Lanczos)
	}

	if dir := filepath.Dir(opts.output); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := screenshot.Encode(f, out, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	b := out.Bounds()
	logger.Info("screenshot written", zap.String("path", opts.output),
		zap.Int("width", b.Dx()), zap.Int("height", b.Dy()), zap.Float64("zoom", vp.Zoom()))
	return nil
}

func readResults(path string) ([]heatmap.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results: %w", err)
	}
	var results []heatmap.Result
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to parse results %s: %w", path, err)
	}
	return results, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma-separated numbers, got %q", n, s)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}

func parsePoint(s string) (geometry.Point2D, error) {
	v, err := parseFloats(s, 2)
	if err != nil {
		return geometry.Point2D{}, fmt.Errorf("center: %w", err)
	}
	return geometry.Point2D{X: v[0], Y: v[1]}, nil
}

func parseRegion(s string) (geometry.Rect, error) {
	v, err := parseFloats(s, 4)
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("region: %w", err)
	}
	if v[2] <= 0 || v[3] <= 0 {
		return geometry.Rect{}, fmt.Errorf("region: width and height must be positive")
	}
	return geometry.NewRect(v[0], v[1], v[2], v[3]), nil
}
