package doctor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/klytics/sheetkit/internal/config"
)

func find(checks []Check, name string) (Check, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return Check{}, false
}

func TestRunChecks(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHEETKIT_ORG_CONFIG", filepath.Join(home, "none.yaml"))

	src := filepath.Join(home, "people.csv")
	if err := os.WriteFile(src, []byte("name,company\nAda,Acme\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{Resolver: config.ResolverRules}
	cfg.Source.URL = src
	cfg.Audit.Enabled = true
	cfg.Audit.Path = filepath.Join(home, ".sheetkit", "audit.jsonl")

	checks := runChecks(context.Background(), cfg)

	if c, ok := find(checks, "Sheet Source"); !ok || c.Status != "ok" {
		t.Errorf("source check = %+v", c)
	}
	if c, ok := find(checks, "AI Provider"); !ok || c.Status != "warning" {
		t.Errorf("provider check = %+v", c)
	}
	if c, ok := find(checks, "Config File"); !ok || c.Status != "warning" {
		t.Errorf("config file check = %+v", c)
	}
	if c, ok := find(checks, "Audit Log"); !ok || c.Status != "ok" {
		t.Errorf("audit check = %+v", c)
	}
}

func TestRunChecksMissingSource(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHEETKIT_ORG_CONFIG", filepath.Join(home, "none.yaml"))

	cfg := &config.Config{Resolver: config.ResolverRules}
	cfg.Source.URL = filepath.Join(home, "missing.csv")

	c, ok := find(runChecks(context.Background(), cfg), "Sheet Source")
	if !ok || c.Status != "error" {
		t.Errorf("source check = %+v", c)
	}
}
