package config

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/klytics/sheetkit/internal/email"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// secretKeys are masked by ShowConfig and ShowYAML.
var secretKeys = map[string]bool{
	"api_keys.openai":    true,
	"api_keys.anthropic": true,
	"smtp.password":      true,
}

// Wizard runs the interactive setup wizard.
// If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader, out io.Writer) error {
	if reader == nil {
		reader = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	scanner := bufio.NewScanner(reader)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Fprintln(out, "sheetkit setup")
	fmt.Fprintln(out, strings.Repeat("-", 48))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 1/3: Sheet source")
	if src := ask("  Published CSV URL or local file path: "); src != "" {
		viper.Set("source.url", src)
		fmt.Fprintln(out, "  Source saved")
	} else {
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 2/3: AI provider")
	fmt.Fprintln(out, "  [1] OpenAI (default)")
	fmt.Fprintln(out, "  [2] Anthropic")
	fmt.Fprintln(out, "  [3] Ollama (local)")
	fmt.Fprintln(out, "  [4] None: keyword rules only")
	switch ask("  Choice: ") {
	case "", "1":
		viper.Set("provider", "openai")
		if key := ask("  OpenAI API key (sk-...): "); key != "" {
			viper.Set("api_keys.openai", key)
		}
	case "2":
		viper.Set("provider", "anthropic")
		if key := ask("  Anthropic API key (sk-ant-...): "); key != "" {
			viper.Set("api_keys.anthropic", key)
		}
	case "3":
		viper.Set("provider", "ollama")
		host := ask("  Ollama host (default: http://localhost:11434): ")
		if host == "" {
			host = "http://localhost:11434"
		}
		viper.Set("ollama.host", host)
	default:
		viper.Set("resolver", ResolverRules)
		fmt.Fprintln(out, "  Commands will be routed by keyword rules")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 3/3: Email delivery (optional)")
	if choice := strings.ToLower(ask("  Set up SMTP for ask --send? [y/N]: ")); choice == "y" || choice == "yes" {
		viper.Set("smtp.host", ask("  SMTP host: "))
		port := ask("  SMTP port (default: 587): ")
		if port == "" {
			port = "587"
		}
		viper.Set("smtp.port", port)
		viper.Set("smtp.username", ask("  SMTP username: "))
		viper.Set("smtp.from", ask("  From address: "))
		fmt.Fprintln(out, "  SMTP configured (set smtp.password or SHEETKIT_SMTP_PASSWORD)")
	} else {
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}
	fmt.Fprintf(out, "Config file: %s\n", ConfigPath())
	fmt.Fprintln(out, "Try: sheetkit ask \"show sheet data\"")
	return nil
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	provider := strings.ToLower(viper.GetString("provider"))
	resolver := strings.ToLower(viper.GetString("resolver"))

	switch provider {
	case "", "openai":
		if viper.GetString("api_keys.openai") == "" {
			issues = append(issues, missingKey("OPENAI_API_KEY", "api_keys.openai", "sk-...", resolver))
		} else {
			issues = append(issues, ConfigIssue{Key: "provider", Severity: "info", Message: "OpenAI API key configured"})
		}
	case "anthropic":
		if viper.GetString("api_keys.anthropic") == "" {
			issues = append(issues, missingKey("ANTHROPIC_API_KEY", "api_keys.anthropic", "sk-ant-...", resolver))
		} else {
			issues = append(issues, ConfigIssue{Key: "provider", Severity: "info", Message: "Anthropic API key configured"})
		}
	case "ollama":
		issues = append(issues, ConfigIssue{Key: "provider", Severity: "info", Message: "Ollama configured (no API key needed)"})
	default:
		issues = append(issues, ConfigIssue{
			Key:      "provider",
			Severity: "error",
			Message:  fmt.Sprintf("unknown provider %q", provider),
			Fix:      "sheetkit config set provider openai|anthropic|ollama",
		})
	}

	if resolver != "" && resolver != ResolverAI && resolver != ResolverRules {
		issues = append(issues, ConfigIssue{
			Key:      "resolver",
			Severity: "error",
			Message:  fmt.Sprintf("resolver must be %q or %q, got %q", ResolverAI, ResolverRules, resolver),
		})
	}

	src := viper.GetString("source.url")
	switch {
	case src == "":
		issues = append(issues, ConfigIssue{
			Key:      "source.url",
			Severity: "warning",
			Message:  "no sheet source configured; the server starts with an empty dataset",
			Fix:      "sheetkit config set source.url https://docs.google.com/.../pub?output=csv",
		})
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		if _, err := url.ParseRequestURI(src); err != nil {
			issues = append(issues, ConfigIssue{Key: "source.url", Severity: "error", Message: fmt.Sprintf("invalid source URL: %v", err)})
		}
	default:
		if _, err := os.Stat(expandHome(src)); err != nil {
			issues = append(issues, ConfigIssue{Key: "source.url", Severity: "error", Message: fmt.Sprintf("source file not readable: %v", err)})
		}
	}

	port := viper.GetInt("server.port")
	if port <= 0 || port > 65535 {
		issues = append(issues, ConfigIssue{Key: "server.port", Severity: "error", Message: fmt.Sprintf("invalid port %d", port)})
	}

	var smtpCfg email.Config
	if err := viper.UnmarshalKey("smtp", &smtpCfg); err == nil {
		if smtpCfg.Host == "" {
			issues = append(issues, ConfigIssue{
				Key:      "smtp.host",
				Severity: "warning",
				Message:  "SMTP host is not set; ask --send will not work",
				Fix:      "sheetkit config set smtp.host your-smtp-host",
			})
		} else if err := smtpCfg.Validate(); err != nil {
			issues = append(issues, ConfigIssue{Key: "smtp", Severity: "error", Message: err.Error()})
		}
	}

	if org, err := LoadOrgConfig(); err != nil {
		issues = append(issues, ConfigIssue{Key: "org", Severity: "error", Message: err.Error()})
	} else if org != nil {
		for _, msg := range ValidateOrgConfig(org) {
			issues = append(issues, ConfigIssue{Key: "org", Severity: "warning", Message: msg})
		}
	}

	return issues
}

func missingKey(env, key, example, resolver string) ConfigIssue {
	severity := "error"
	msg := fmt.Sprintf("%s is not set", env)
	if resolver == ResolverRules {
		severity = "warning"
		msg += "; summaries and email drafts will be unavailable"
	}
	return ConfigIssue{
		Key:      key,
		Severity: severity,
		Message:  msg,
		Fix:      fmt.Sprintf("export %s=%s\nOr: sheetkit config set %s %s", env, example, key, example),
	}
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// SaveConfig writes the current config to ~/.sheetkit/config.yaml.
func SaveConfig() error {
	dir := configDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	path := filepath.Join(dir, "config.yaml")
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// The file may hold API keys.
	os.Chmod(path, 0600)
	return nil
}

// ResetConfig removes the config file.
func ResetConfig() error {
	if err := os.Remove(ConfigPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// ShowConfig returns a formatted string of the current configuration.
func ShowConfig() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Config: %s\n\n", ConfigPath())

	sb.WriteString("AI\n")
	fmt.Fprintf(&sb, "  provider:  %s\n", viper.GetString("provider"))
	fmt.Fprintf(&sb, "  model:     %s\n", valueOr(viper.GetString("model"), "(provider default)"))
	fmt.Fprintf(&sb, "  resolver:  %s\n", valueOr(viper.GetString("resolver"), "(auto)"))
	for _, k := range []string{"api_keys.openai", "api_keys.anthropic"} {
		if v := viper.GetString(k); v != "" {
			fmt.Fprintf(&sb, "  %s: %s\n", strings.TrimPrefix(k, "api_keys."), Mask(v))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("Source\n")
	fmt.Fprintf(&sb, "  url:       %s\n", valueOr(viper.GetString("source.url"), "(none)"))
	fmt.Fprintf(&sb, "  refresh:   %s\n", viper.GetString("source.refresh"))
	sb.WriteString("\n")

	sb.WriteString("Server\n")
	fmt.Fprintf(&sb, "  listen:    %s:%d\n", viper.GetString("server.host"), viper.GetInt("server.port"))
	sb.WriteString("\n")

	if smtpHost := viper.GetString("smtp.host"); smtpHost != "" {
		sb.WriteString("Email (SMTP)\n")
		fmt.Fprintf(&sb, "  host:      %s\n", smtpHost)
		fmt.Fprintf(&sb, "  port:      %s\n", viper.GetString("smtp.port"))
		fmt.Fprintf(&sb, "  username:  %s\n", viper.GetString("smtp.username"))
		fmt.Fprintf(&sb, "  from:      %s\n", viper.GetString("smtp.from"))
		sb.WriteString("\n")
	}

	return sb.String()
}

// ShowYAML renders every known setting as YAML with secrets masked.
func ShowYAML() (string, error) {
	keys := viper.AllKeys()
	sort.Strings(keys)

	root := map[string]any{}
	for _, key := range keys {
		val := viper.Get(key)
		if secretKeys[key] {
			val = Mask(viper.GetString(key))
		}
		setPath(root, strings.Split(key, "."), val)
	}
	data, err := yaml.Marshal(root)
	if err != nil {
		return "", fmt.Errorf("could not render config: %w", err)
	}
	return string(data), nil
}

func setPath(m map[string]any, path []string, val any) {
	if len(path) == 1 {
		m[path[0]] = val
		return
	}
	child, ok := m[path[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[path[0]] = child
	}
	setPath(child, path[1:], val)
}

// Mask hides all but a short prefix of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:min(6, len(secret)/3)] + "****"
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
