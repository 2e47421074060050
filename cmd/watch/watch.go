// Package watch provides the "sheetkit watch" command, which follows the sheet
// source and reports every reload.
package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/klytics/sheetkit/internal/app"
	"github.com/klytics/sheetkit/internal/config"
	w "github.com/klytics/sheetkit/internal/watch"
)

// NewCommand creates the "watch" command.
func NewCommand() *cobra.Command {
	var (
		refresh  time.Duration
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the sheet source and report reloads",
		Long: `Load the sheet, then reload it whenever a local source file changes or
every --refresh interval, printing one line per reload.

Example:
  sheetkit watch --source ./people.xlsx
  sheetkit watch --source https://example.com/sheet.csv --refresh 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("refresh") {
				cfg.Source.Refresh = refresh
			}
			cfg.Audit.Enabled = false

			a, err := app.New(cfg, app.Options{})
			if err != nil {
				return err
			}
			if a.Store.SourceName() == "" {
				return fmt.Errorf("no data source configured — set source.url or pass --source")
			}

			path, isFile := a.WatchPath()
			if !isFile && cfg.Source.Refresh <= 0 {
				return fmt.Errorf("%s is not a local file — pass --refresh to poll it", a.Store.SourceName())
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var mu sync.Mutex
			report := func(ev w.Event) {
				mu.Lock()
				defer mu.Unlock()
				printEvent(ev, jsonOut)
			}

			n, err := a.Store.Load(ctx)
			report(loadEvent("initial", path, n, err))

			g, gctx := errgroup.WithContext(ctx)
			if isFile {
				watcher, err := w.New(w.Config{Path: path, Debounce: debounce, OnReload: report}, a.Store)
				if err != nil {
					return err
				}
				g.Go(func() error { return watcher.Run(gctx) })
			}
			if cfg.Source.Refresh > 0 {
				r := &w.Refresher{Interval: cfg.Source.Refresh, Loader: a.Store, OnReload: report}
				g.Go(func() error { return r.Run(gctx) })
			}

			if !jsonOut {
				fmt.Printf("Watching %s (Ctrl+C to stop)\n", a.Store.SourceName())
			}
			return g.Wait()
		},
	}

	cmd.Flags().DurationVar(&refresh, "refresh", 0, "Also reload on this interval (e.g. 30s, 5m)")
	cmd.Flags().DurationVar(&debounce, "debounce", 500*time.Millisecond, "Quiet period before reloading a changed file")
	return cmd
}

func loadEvent(trigger, path string, n int, err error) w.Event {
	ev := w.Event{Time: time.Now(), Trigger: trigger, Path: path, Records: n, Status: "loaded"}
	if err != nil {
		ev.Status = "error"
		ev.Error = err.Error()
	}
	return ev
}

func printEvent(ev w.Event, asJSON bool) {
	if asJSON {
		json.NewEncoder(os.Stdout).Encode(ev)
		return
	}
	ts := ev.Time.Format("15:04:05")
	if ev.Status == "error" {
		color.New(color.FgRed).Printf("[%s] %-8s reload failed, keeping previous data: %s\n", ts, ev.Trigger, ev.Error)
		return
	}
	color.New(color.FgGreen).Printf("[%s] %-8s %d records\n", ts, ev.Trigger, ev.Records)
}
