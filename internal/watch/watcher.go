// Package watch keeps the store in step with its source: Watcher reloads a
// local sheet file when it changes on disk, Refresher reloads any source on
// a fixed interval.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// Loader reloads a dataset. *store.Store satisfies it.
type Loader interface {
	Load(ctx context.Context) (int, error)
}

// Event records one reload triggered by the watcher or refresher.
type Event struct {
	Time    time.Time `json:"time"`
	Trigger string    `json:"trigger"` // "file" or "interval"
	Path    string    `json:"path,omitempty"`
	Records int       `json:"records"`
	Status  string    `json:"status"` // "loaded" or "error"
	Error   string    `json:"error,omitempty"`
}

// Config configures a Watcher.
type Config struct {
	Path     string
	Debounce time.Duration
	Logger   *slog.Logger
	// OnReload, when set, receives every reload outcome.
	OnReload func(Event)
}

// Watcher reloads Loader whenever the watched file is written, created or
// renamed into place. It watches the parent directory so that editors which
// replace the file atomically are still seen.
type Watcher struct {
	path     string
	debounce time.Duration
	loader   Loader
	log      *slog.Logger
	fsw      *fsnotify.Watcher
	onReload func(Event)

	mu     sync.Mutex
	timer  *time.Timer
	events []Event
}

// New creates a Watcher for cfg.Path.
func New(cfg Config, loader Loader) (*Watcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch: no file to watch")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s: %w", cfg.Path, err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Watcher{
		path:     abs,
		debounce: cfg.Debounce,
		loader:   loader,
		log:      cfg.Logger.With("component", "watch", "path", abs),
		fsw:      fsw,
		onReload: cfg.OnReload,
	}, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string { return w.path }

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	dir := filepath.Dir(w.path)
	if err := w.fsw.Add(dir); err != nil {
		w.fsw.Close()
		return fmt.Errorf("could not watch %s: %w", dir, err)
	}
	w.log.Info("watching source file")

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return w.fsw.Close()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !w.relevant(ev) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.record(reload(ctx, w.loader, "file", w.path, w.log))
	})
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(ev.Name)
	if err != nil || name != w.path {
		return false
	}
	// Office lock files live next to the sheet.
	base := filepath.Base(name)
	return !strings.HasPrefix(base, "~$") && !strings.HasPrefix(base, ".~")
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// MaxEvents bounds the reload history a Watcher keeps.
const MaxEvents = 100

func (w *Watcher) record(ev Event) {
	w.mu.Lock()
	w.events = append(w.events, ev)
	if n := len(w.events); n > MaxEvents {
		w.events = append(w.events[:0:0], w.events[n-MaxEvents:]...)
	}
	w.mu.Unlock()
	if w.onReload != nil {
		w.onReload(ev)
	}
}

// Events returns the most recent reloads, oldest first, keeping at most
// MaxEvents.
func (w *Watcher) Events() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]Event, len(w.events))
	copy(out, w.events)
	return out
}

// Refresher reloads Loader every Interval.
type Refresher struct {
	Interval time.Duration
	Loader   Loader
	Logger   *slog.Logger
	// OnReload, when set, receives every reload outcome.
	OnReload func(Event)
}

// Run ticks until ctx is cancelled. A non-positive interval returns at once.
func (r *Refresher) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		return nil
	}
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "refresh", "interval", r.Interval.String())

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ev := reload(ctx, r.Loader, "interval", "", log)
			if r.OnReload != nil {
				r.OnReload(ev)
			}
		}
	}
}

func reload(ctx context.Context, loader Loader, trigger, path string, log *slog.Logger) Event {
	ev := Event{Time: time.Now(), Trigger: trigger, Path: path}
	n, err := loader.Load(ctx)
	if err != nil {
		ev.Status = "error"
		ev.Error = err.Error()
		log.Warn("reload failed, keeping previous data", "error", err)
		return ev
	}
	ev.Status = "loaded"
	ev.Records = n
	log.Info("source reloaded", "records", n)
	return ev
}
