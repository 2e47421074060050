// Package serve provides the "sheetkit serve" command.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/sheetkit/cmd/version"
	"github.com/klytics/sheetkit/internal/app"
	"github.com/klytics/sheetkit/internal/config"
	"github.com/klytics/sheetkit/internal/server"
	"github.com/klytics/sheetkit/internal/watch"
)

// NewCommand creates the "serve" command.
func NewCommand() *cobra.Command {
	var (
		host        string
		port        int
		noWatch     bool
		allowOrigin string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin agent API for the browser console",
		Long: `Start the HTTP API the browser console talks to.

Endpoints:
  POST /api/ai             run a command ({command, currentAdmin, sheetData})
  GET  /api/sheet          current rows
  POST /api/sheet/refresh  reload the sheet from its source
  GET  /health             liveness and load status

A local source file is watched and reloaded on change; set source.refresh
to also poll the source on an interval.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}

			a, err := app.New(cfg, app.Options{Channel: "http"})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, a, serveOptions{
				watch:       cfg.Source.Watch && !noWatch,
				allowOrigin: allowOrigin,
			})
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Interface to listen on (default all)")
	cmd.Flags().IntVar(&port, "port", 8787, "Port to listen on")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload a local source file on change")
	cmd.Flags().StringVar(&allowOrigin, "allow-origin", "*", "Access-Control-Allow-Origin value")
	return cmd
}

type serveOptions struct {
	watch       bool
	allowOrigin string
}

// run serves until ctx is cancelled, alongside the optional refresher and
// file watcher. An error in any of them stops the rest.
func run(ctx context.Context, a *app.App, opts serveOptions) error {
	cfg := a.Config

	// A failed first load is not fatal: the console can still post rows.
	if err := a.Load(ctx); err != nil {
		slog.Warn("initial sheet load failed", "error", err)
	}

	srv := server.NewServer(a.Dispatcher, a.Store, server.Options{
		RequestTimeout: cfg.Server.RequestTimeout,
		AllowOrigin:    opts.allowOrigin,
		Version:        version.Version,
	})

	var watcher *watch.Watcher
	if path, ok := a.WatchPath(); ok && opts.watch {
		w, err := watch.New(watch.Config{Path: path}, a.Store)
		if err != nil {
			return fmt.Errorf("could not watch source: %w", err)
		}
		watcher = w
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Addr(), cfg.Server.ShutdownTimeout)
	})
	if cfg.Source.Refresh > 0 && a.Store.SourceName() != "" {
		r := &watch.Refresher{Interval: cfg.Source.Refresh, Loader: a.Store}
		g.Go(func() error { return r.Run(gctx) })
	}
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}

	slog.Info("sheetkit serving",
		"addr", cfg.Addr(),
		"source", a.Store.SourceName(),
		"resolver", cfg.Resolver,
	)
	return g.Wait()
}
