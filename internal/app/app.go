// Package app assembles a ready-to-use dispatcher and store from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/klytics/sheetkit/internal/ai"
	"github.com/klytics/sheetkit/internal/audit"
	"github.com/klytics/sheetkit/internal/config"
	"github.com/klytics/sheetkit/internal/dispatch"
	"github.com/klytics/sheetkit/internal/generate"
	"github.com/klytics/sheetkit/internal/intent"
	"github.com/klytics/sheetkit/internal/store"
)

// Options override configuration for one process.
type Options struct {
	// Source replaces source.url when set.
	Source string
	// Channel tags audit entries ("http", "shell", "cli").
	Channel string
	// Observers are notified after every dispatch, after the audit log.
	Observers []dispatch.Observer
}

// App holds the wired components.
type App struct {
	Config     *config.Config
	Store      *store.Store
	Dispatcher *dispatch.Dispatcher
	Resolver   intent.Resolver
	// Provider is nil when no model backend is configured.
	Provider ai.Provider
	// Audit is nil when auditing is disabled.
	Audit *audit.Logger

	source store.Source
}

// New wires an App from cfg. A missing source is not an error: the store
// stays empty and callers may still post their own rows.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	location := opts.Source
	if location == "" {
		location = cfg.Source.URL
	}
	if location != "" {
		s, err := store.NewSource(location, cfg.Timeouts.Fetch)
		if err != nil {
			return nil, err
		}
		if fs, ok := s.(*store.FileSource); ok {
			fs.Sheet = cfg.Source.Sheet
		}
		a.source = s
	}
	a.Store = store.New(a.source)

	if cfg.HasAIKey() {
		p, err := ai.NewProvider(cfg.AISettings())
		if err != nil {
			return nil, fmt.Errorf("could not configure AI provider: %w", err)
		}
		a.Provider = p
	}

	rules := intent.NewRuleResolver()
	a.Resolver = rules
	if cfg.Resolver == config.ResolverAI {
		if a.Provider == nil {
			return nil, fmt.Errorf("resolver %q needs an AI provider — configure an API key or set resolver to %q",
				config.ResolverAI, config.ResolverRules)
		}
		cc := intent.ClassifierConfig{Timeout: cfg.Timeouts.Classify}
		if cfg.Fallback {
			cc.Fallback = rules
		}
		a.Resolver = intent.NewClassifierResolver(a.Provider, cc)
	}

	var gen generate.Generator
	if a.Provider != nil {
		gen = generate.NewAIGenerator(a.Provider, cfg.Timeouts.AI)
	}

	var observers []dispatch.Observer
	if cfg.Audit.Enabled {
		a.Audit = audit.NewLogger(cfg.Audit.Path, opts.Channel)
		observers = append(observers, a.Audit)
	}
	observers = append(observers, opts.Observers...)

	a.Dispatcher = dispatch.New(dispatch.Config{
		Resolver:  a.Resolver,
		Generator: gen,
		Observers: observers,
	})
	return a, nil
}

// Load performs the initial fetch. Without a source it is a no-op.
func (a *App) Load(ctx context.Context) error {
	if a.Store.SourceName() == "" {
		slog.Warn("no data source configured; commands run against posted rows only")
		return nil
	}
	n, err := a.Store.Load(ctx)
	if err != nil {
		return err
	}
	slog.Info("sheet loaded", "source", a.Store.SourceName(), "records", n)
	return nil
}

// WatchPath returns the local file backing the store, if any.
func (a *App) WatchPath() (string, bool) {
	fs, ok := a.source.(*store.FileSource)
	if !ok {
		return "", false
	}
	return fs.Path, true
}
