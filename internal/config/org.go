package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// OrgConfig is the admin-managed policy layer. Its values become defaults
// under the user's config; locked values override the user entirely.
type OrgConfig struct {
	OrgName   string `yaml:"org_name" json:"org_name"`
	OrgDomain string `yaml:"org_domain" json:"org_domain"`

	AI struct {
		Provider string `yaml:"provider" json:"provider"`
		Model    string `yaml:"model" json:"model"`
	} `yaml:"ai" json:"ai"`

	Source struct {
		URL     string `yaml:"url" json:"url"`
		Refresh string `yaml:"refresh" json:"refresh"`
	} `yaml:"source" json:"source"`

	Locked struct {
		AIProvider bool `yaml:"ai_provider" json:"ai_provider"`
		Source     bool `yaml:"source" json:"source"`
		Audit      bool `yaml:"audit" json:"audit"`
	} `yaml:"locked" json:"locked"`

	Audit struct {
		Enabled *bool  `yaml:"enabled" json:"enabled,omitempty"`
		Path    string `yaml:"path" json:"path"`
	} `yaml:"audit" json:"audit"`
}

// OrgConfigPath returns the platform-specific path for org config.
// SHEETKIT_ORG_CONFIG overrides it.
func OrgConfigPath() string {
	if p := os.Getenv("SHEETKIT_ORG_CONFIG"); p != "" {
		return p
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("ProgramData"), "sheetkit", "org.yaml")
	}
	return "/etc/sheetkit/org.yaml"
}

// LoadOrgConfig reads the org config file. Returns nil (not error) if file does not exist.
func LoadOrgConfig() (*OrgConfig, error) {
	return LoadOrgConfigFrom(OrgConfigPath())
}

// LoadOrgConfigFrom reads the org config from a specific path.
func LoadOrgConfigFrom(path string) (*OrgConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("could not read org config at %s: %w", path, err)
	}

	var cfg OrgConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid org config at %s: %w", path, err)
	}
	return &cfg, nil
}

// Apply layers the org values into viper. A nil OrgConfig does nothing.
func (o *OrgConfig) Apply() {
	if o == nil {
		return
	}
	layer := func(key, value string, locked bool) {
		if value == "" {
			return
		}
		if locked {
			viper.Set(key, value)
			return
		}
		viper.SetDefault(key, value)
	}

	layer("provider", o.AI.Provider, o.Locked.AIProvider)
	layer("model", o.AI.Model, o.Locked.AIProvider)
	layer("source.url", o.Source.URL, o.Locked.Source)
	layer("source.refresh", o.Source.Refresh, o.Locked.Source)
	layer("audit.path", o.Audit.Path, o.Locked.Audit)
	if o.Audit.Enabled != nil {
		if o.Locked.Audit {
			viper.Set("audit.enabled", *o.Audit.Enabled)
		} else {
			viper.SetDefault("audit.enabled", *o.Audit.Enabled)
		}
	}
}

// ValidateOrgConfig checks that an org config is valid.
func ValidateOrgConfig(cfg *OrgConfig) []string {
	var issues []string
	if cfg.OrgName == "" {
		issues = append(issues, "org_name is required")
	}
	if cfg.AI.Provider != "" {
		valid := map[string]bool{"anthropic": true, "openai": true, "ollama": true}
		if !valid[cfg.AI.Provider] {
			issues = append(issues, fmt.Sprintf("ai.provider must be anthropic, openai, or ollama, got %q", cfg.AI.Provider))
		}
	}
	if cfg.Locked.Source && cfg.Source.URL == "" {
		issues = append(issues, "locked.source is set but source.url is empty")
	}
	return issues
}

// GenerateOrgTemplate returns a YAML template for org config.
func GenerateOrgTemplate(orgName, domain string) string {
	return fmt.Sprintf(`# sheetkit organization policy
# Deploy to: %s
# Permissions: readable by all users, writable only by root/Administrators

org_name: %q
org_domain: %q

ai:
  provider: openai
  model: gpt-4o-mini

source:
  url: ""
  refresh: 5m

locked:
  ai_provider: false
  source: false
  audit: false

audit:
  enabled: true
  path: "~/.sheetkit/audit.jsonl"
`, OrgConfigPath(), orgName, domain)
}
