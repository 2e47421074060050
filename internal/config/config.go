// Package config manages application configuration from files and environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/klytics/sheetkit/internal/ai"
	"github.com/klytics/sheetkit/internal/email"
)

// Resolver modes.
const (
	ResolverRules = "rules"
	ResolverAI    = "ai"
)

// Config holds the application configuration.
type Config struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKeys  struct {
		Anthropic string `mapstructure:"anthropic"`
		OpenAI    string `mapstructure:"openai"`
	} `mapstructure:"api_keys"`
	Ollama struct {
		Host string `mapstructure:"host"`
	} `mapstructure:"ollama"`

	Source struct {
		URL     string        `mapstructure:"url"`
		Sheet   string        `mapstructure:"sheet"`
		Refresh time.Duration `mapstructure:"refresh"`
		Watch   bool          `mapstructure:"watch"`
	} `mapstructure:"source"`
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	} `mapstructure:"server"`

	// Resolver selects how commands become intents: "ai" classifies with
	// the provider, "rules" never calls out. A failed classification is
	// unknown unless Fallback is set.
	Resolver string `mapstructure:"resolver"`
	// Fallback lets the keyword rules answer when classification fails.
	Fallback bool   `mapstructure:"fallback"`
	Actor    string `mapstructure:"actor"`

	Timeouts struct {
		Fetch    time.Duration `mapstructure:"fetch"`
		AI       time.Duration `mapstructure:"ai"`
		Classify time.Duration `mapstructure:"classify"`
	} `mapstructure:"timeouts"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	Audit struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"audit"`
	SMTP email.Config `mapstructure:"smtp"`
}

// envAliases are the unprefixed variable names honoured alongside SHEETKIT_*.
var envAliases = map[string][]string{
	"api_keys.openai":    {"OPENAI_API_KEY"},
	"api_keys.anthropic": {"ANTHROPIC_API_KEY"},
	"model":              {"OPENAI_MODEL"},
	"ollama.host":        {"OLLAMA_HOST"},
	"server.port":        {"PORT"},
}

// Load reads .env, ~/.sheetkit/config.yaml, the org policy file and the
// environment, in increasing order of precedence (locked org values win).
func Load() (*Config, error) {
	// A missing .env is normal; values already in the environment are kept.
	_ = godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir())

	setDefaults()

	viper.SetEnvPrefix("SHEETKIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for key, names := range envAliases {
		prefixed := "SHEETKIT_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(append([]string{key, prefixed}, names...)...)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("could not read %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	org, err := LoadOrgConfig()
	if err != nil {
		return nil, err
	}
	org.Apply()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	cfg.Resolver = resolverMode(&cfg)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("provider", "openai")
	viper.SetDefault("model", "")
	viper.SetDefault("api_keys.openai", "")
	viper.SetDefault("api_keys.anthropic", "")
	viper.SetDefault("ollama.host", "")

	viper.SetDefault("source.url", "")
	viper.SetDefault("source.sheet", "")
	viper.SetDefault("source.refresh", "0s")
	viper.SetDefault("source.watch", true)

	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 8787)
	viper.SetDefault("server.shutdown_timeout", "10s")
	viper.SetDefault("server.request_timeout", "90s")

	viper.SetDefault("resolver", "")
	viper.SetDefault("fallback", false)
	viper.SetDefault("actor", "Admin")

	viper.SetDefault("timeouts.fetch", "15s")
	viper.SetDefault("timeouts.ai", "45s")
	viper.SetDefault("timeouts.classify", "20s")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("audit.enabled", true)
	viper.SetDefault("audit.path", "~/.sheetkit/audit.jsonl")

	viper.SetDefault("smtp.host", "")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.username", "")
	viper.SetDefault("smtp.password", "")
	viper.SetDefault("smtp.from", "")
}

// resolverMode picks "ai" only when the provider can actually be reached.
func resolverMode(cfg *Config) string {
	switch strings.ToLower(cfg.Resolver) {
	case ResolverRules:
		return ResolverRules
	case ResolverAI:
		return ResolverAI
	}
	if cfg.HasAIKey() {
		return ResolverAI
	}
	return ResolverRules
}

// HasAIKey reports whether the configured provider has what it needs.
func (c *Config) HasAIKey() bool {
	switch c.Provider {
	case "anthropic":
		return c.APIKeys.Anthropic != ""
	case "ollama":
		return true
	default:
		return c.APIKeys.OpenAI != ""
	}
}

// AISettings maps the configuration onto provider settings.
func (c *Config) AISettings() ai.Settings {
	return ai.Settings{
		Provider:     c.Provider,
		Model:        c.Model,
		OpenAIKey:    c.APIKeys.OpenAI,
		AnthropicKey: c.APIKeys.Anthropic,
		OllamaHost:   c.Ollama.Host,
		Timeout:      c.Timeouts.AI,
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sheetkit"
	}
	return filepath.Join(home, ".sheetkit")
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
