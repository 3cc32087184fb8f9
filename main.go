// Package main provides the entry point for the Slidescope viewer.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"slidescope/internal/app"
	"slidescope/internal/config"
	"slidescope/internal/logging"
	"slidescope/internal/metrics"
	"slidescope/internal/version"
	"slidescope/internal/viewer"
	"slidescope/ui/mainwindow"
	"slidescope/ui/prefs"
)

const (
	appID = "io.slidescope.viewer"

	configCheckInterval = 2 * time.Second
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "slidescope [slide.dzi | session" + app.SessionExt + "]",
		Short:         "Whole-slide image viewer",
		Version:       version.String(),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			var target string
			if len(args) == 1 {
				target = args[0]
			}
			return run(cmd.Context(), cfg, configPath, target)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file path")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, configPath, target string) error {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("starting", zap.String("version", version.Version))

	var m *metrics.Tiles
	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		m, err = metrics.NewTiles(reg, nil)
		if err != nil {
			return err
		}
		srv := serveMetrics(cfg.Metrics.Addr, reg, logger)
		defer srv.Close()
	}

	a := fyneapp.NewWithID(appID)
	a.Settings().SetTheme(&app.SlidescopeTheme{})

	win := mainwindow.New(a, mainwindow.Deps{
		Config: cfg,
		Prefs:  prefs.Load(),
		State:  app.NewState(),
		Viewer: viewer.New(cfg.ViewerOptions(logger, m)),
		Logger: logger,
	})

	if err := openInitial(ctx, win, cfg, target, logger); err != nil {
		logger.Error("failed to open", zap.String("target", target), zap.Error(err))
	}

	if configPath != "" {
		if w := watchConfig(win, configPath, logger); w != nil {
			defer w.Stop()
		}
	}

	win.ShowAndRun()
	return nil
}

// openInitial opens the slide or session named on the command line, or the
// configured source when there is none.
func openInitial(ctx context.Context, win *mainwindow.MainWindow, cfg *config.Config, target string, logger *zap.Logger) error {
	switch {
	case target != "" && strings.EqualFold(filepath.Ext(target), app.SessionExt):
		return win.OpenSession(target)
	case target != "":
		return win.OpenSlide(target)
	case cfg.HasSource():
		src, err := cfg.OpenSource(ctx, logger)
		if err != nil {
			return err
		}
		name := cfg.Source.Path
		if name == "" {
			name = cfg.Source.ObjectStore.Bucket + "/" + cfg.Source.ObjectStore.Key
		}
		return win.OpenSource(src, name)
	}
	return nil
}

// watchConfig reapplies filter and navigation settings when the config file
// changes on disk.
func watchConfig(win *mainwindow.MainWindow, path string, logger *zap.Logger) *app.FileWatcher {
	w := app.NewFileWatcher(path, configCheckInterval)
	if w == nil {
		logger.Warn("config file cannot be watched", zap.String("path", path))
		return nil
	}
	w.OnChange(func(path string) {
		cfg, err := config.Load(path)
		if err != nil {
			logger.Warn("config reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		logger.Info("config reloaded", zap.String("path", path))
		win.ApplyConfig(cfg)
	})
	w.Start()
	return w
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	return srv
}
