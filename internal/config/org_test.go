package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadOrgConfigMissing(t *testing.T) {
	cfg, err := LoadOrgConfigFrom("/nonexistent/org.yaml")
	if err != nil {
		t.Fatalf("expected nil error for missing file, got: %v", err)
	}
	if cfg != nil {
		t.Error("expected nil config for missing file")
	}
}

func TestLoadOrgConfigValid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	content := `
org_name: "Test Corp"
org_domain: "test.com"
ai:
  provider: anthropic
source:
  url: https://example.com/sheet.csv
locked:
  source: true
audit:
  enabled: true
`
	os.WriteFile(path, []byte(content), 0644)

	cfg, err := LoadOrgConfigFrom(path)
	if err != nil {
		t.Fatalf("LoadOrgConfigFrom failed: %v", err)
	}
	if cfg.OrgName != "Test Corp" {
		t.Errorf("OrgName = %q", cfg.OrgName)
	}
	if cfg.Source.URL != "https://example.com/sheet.csv" || !cfg.Locked.Source {
		t.Errorf("source = %+v, locked = %+v", cfg.Source, cfg.Locked)
	}
	if cfg.Audit.Enabled == nil || !*cfg.Audit.Enabled {
		t.Error("expected audit.enabled = true")
	}
}

func TestLoadOrgConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "org.yaml")
	os.WriteFile(path, []byte("org_name: [\n"), 0644)
	if _, err := LoadOrgConfigFrom(path); err == nil {
		t.Error("expected error for malformed org config")
	}
}

func TestApplyLockedAndDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("provider", "openai")
	viper.Set("source.url", "https://user.example.com")

	org := &OrgConfig{}
	org.AI.Provider = "ollama"
	org.Locked.AIProvider = true
	org.Source.URL = "https://org.example.com"
	org.Apply()

	if got := viper.GetString("provider"); got != "ollama" {
		t.Errorf("locked provider = %q", got)
	}
	if got := viper.GetString("source.url"); got != "https://user.example.com" {
		t.Errorf("unlocked source should stay with user, got %q", got)
	}

	var nilOrg *OrgConfig
	nilOrg.Apply()
}

func TestValidateOrgConfig(t *testing.T) {
	cfg := &OrgConfig{OrgName: "Test", OrgDomain: "test.com"}
	cfg.AI.Provider = "anthropic"
	if issues := ValidateOrgConfig(cfg); len(issues) != 0 {
		t.Errorf("expected no issues, got: %v", issues)
	}

	bad := &OrgConfig{}
	bad.AI.Provider = "gpt5"
	bad.Locked.Source = true
	issues := ValidateOrgConfig(bad)
	if len(issues) != 3 {
		t.Errorf("expected 3 issues, got %v", issues)
	}
}

func TestOrgConfigPath(t *testing.T) {
	t.Setenv("SHEETKIT_ORG_CONFIG", "")
	path := OrgConfigPath()
	if runtime.GOOS == "windows" {
		if path == "" {
			t.Error("expected non-empty path on Windows")
		}
	} else if path != "/etc/sheetkit/org.yaml" {
		t.Errorf("expected /etc/sheetkit/org.yaml, got %q", path)
	}

	t.Setenv("SHEETKIT_ORG_CONFIG", "/tmp/custom.yaml")
	if got := OrgConfigPath(); got != "/tmp/custom.yaml" {
		t.Errorf("override path = %q", got)
	}
}

func TestGenerateOrgTemplate(t *testing.T) {
	tmpl := GenerateOrgTemplate("Acme Corp", "acme.com")
	if !strings.Contains(tmpl, "Acme Corp") || !strings.Contains(tmpl, "acme.com") {
		t.Error("template should contain org name and domain")
	}

	path := filepath.Join(t.TempDir(), "org.yaml")
	os.WriteFile(path, []byte(tmpl), 0644)
	cfg, err := LoadOrgConfigFrom(path)
	if err != nil {
		t.Fatalf("template does not parse: %v", err)
	}
	if issues := ValidateOrgConfig(cfg); len(issues) != 0 {
		t.Errorf("template has issues: %v", issues)
	}
}
