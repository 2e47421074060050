package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

// setupTestConfig isolates viper, HOME and the environment variables Load reads.
func setupTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	viper.Reset()
	t.Setenv("HOME", dir)
	t.Setenv("SHEETKIT_ORG_CONFIG", filepath.Join(dir, "no-org.yaml"))
	for _, names := range envAliases {
		for _, n := range names {
			t.Setenv(n, "")
		}
	}
	for _, k := range []string{"SHEETKIT_PROVIDER", "SHEETKIT_RESOLVER", "SHEETKIT_SERVER_PORT", "SHEETKIT_SOURCE_URL", "SHEETKIT_API_KEYS_OPENAI"} {
		t.Setenv(k, "")
	}
	t.Cleanup(viper.Reset)
	return dir
}

func writeUserConfig(t *testing.T, home, content string) {
	t.Helper()
	dir := filepath.Join(home, ".sheetkit")
	os.MkdirAll(dir, 0700)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDefaults(t *testing.T) {
	home := setupTestConfig(t)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("default provider = %q", cfg.Provider)
	}
	if cfg.Server.Port != 8787 {
		t.Errorf("default port = %d", cfg.Server.Port)
	}
	if cfg.Timeouts.Fetch != 15*time.Second || cfg.Timeouts.AI != 45*time.Second {
		t.Errorf("timeouts = %+v", cfg.Timeouts)
	}
	if cfg.Resolver != ResolverRules {
		t.Errorf("resolver without key = %q, want rules", cfg.Resolver)
	}
	if cfg.Actor != "Admin" {
		t.Errorf("actor = %q", cfg.Actor)
	}
	if want := filepath.Join(home, ".sheetkit", "audit.jsonl"); cfg.Audit.Path != want {
		t.Errorf("audit path = %q, want %q", cfg.Audit.Path, want)
	}
	if cfg.SMTP.Port != 587 {
		t.Errorf("smtp port = %d", cfg.SMTP.Port)
	}
}

func TestLoadEnvAliases(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")
	t.Setenv("OPENAI_MODEL", "gpt-test")
	t.Setenv("PORT", "9000")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.APIKeys.OpenAI != "sk-from-env" || cfg.Model != "gpt-test" {
		t.Errorf("key = %q, model = %q", cfg.APIKeys.OpenAI, cfg.Model)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Resolver != ResolverAI {
		t.Errorf("resolver with key = %q, want ai", cfg.Resolver)
	}
	if cfg.Addr() != ":9000" {
		t.Errorf("addr = %q", cfg.Addr())
	}
}

func TestLoadPrefixedEnvWins(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("PORT", "9000")
	t.Setenv("SHEETKIT_SERVER_PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
}

func TestLoadConfigFile(t *testing.T) {
	home := setupTestConfig(t)
	writeUserConfig(t, home, `
provider: Anthropic
api_keys:
  anthropic: sk-ant-secret
resolver: rules
source:
  url: https://example.com/pub?output=csv
  refresh: 5m
timeouts:
  ai: 30s
`)
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("provider = %q", cfg.Provider)
	}
	if cfg.Resolver != ResolverRules {
		t.Errorf("explicit resolver = %q", cfg.Resolver)
	}
	if cfg.Source.URL != "https://example.com/pub?output=csv" || cfg.Source.Refresh != 5*time.Minute {
		t.Errorf("source = %+v", cfg.Source)
	}
	s := cfg.AISettings()
	if s.Provider != "anthropic" || s.AnthropicKey != "sk-ant-secret" || s.Timeout != 30*time.Second {
		t.Errorf("ai settings = %+v", s)
	}
}

func TestLoadInvalidFile(t *testing.T) {
	home := setupTestConfig(t)
	writeUserConfig(t, home, "provider: [unclosed\n")
	if _, err := Load(); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestLoadOrgPolicy(t *testing.T) {
	home := setupTestConfig(t)
	orgPath := filepath.Join(home, "org.yaml")
	os.WriteFile(orgPath, []byte(`
org_name: Test Corp
ai:
  provider: ollama
source:
  url: https://org.example.com/sheet.csv
  refresh: 10m
locked:
  ai_provider: true
audit:
  enabled: false
`), 0644)
	t.Setenv("SHEETKIT_ORG_CONFIG", orgPath)
	writeUserConfig(t, home, `
provider: openai
source:
  refresh: 1m
`)

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "ollama" {
		t.Errorf("locked provider = %q, want ollama", cfg.Provider)
	}
	if cfg.Source.URL != "https://org.example.com/sheet.csv" {
		t.Errorf("org default source = %q", cfg.Source.URL)
	}
	if cfg.Source.Refresh != time.Minute {
		t.Errorf("user refresh should override unlocked org value, got %v", cfg.Source.Refresh)
	}
	if cfg.Audit.Enabled {
		t.Error("org audit default not applied")
	}
}

func TestValidateMissingKey(t *testing.T) {
	setupTestConfig(t)
	viper.Set("provider", "openai")

	issues := Validate()
	if !hasIssue(issues, "error", "OPENAI_API_KEY") {
		t.Errorf("expected error about missing key, got %+v", issues)
	}

	viper.Set("resolver", "rules")
	issues = Validate()
	if !hasIssue(issues, "warning", "OPENAI_API_KEY") || hasIssue(issues, "error", "OPENAI_API_KEY") {
		t.Errorf("rules mode should downgrade to warning, got %+v", issues)
	}
}

func TestValidateWithKey(t *testing.T) {
	setupTestConfig(t)
	viper.Set("provider", "anthropic")
	viper.Set("api_keys.anthropic", "sk-ant-test")
	viper.Set("server.port", 8787)

	for _, issue := range Validate() {
		if issue.Key == "api_keys.anthropic" || (issue.Key == "provider" && issue.Severity == "error") {
			t.Errorf("unexpected issue: %+v", issue)
		}
	}
}

func TestValidateBadValues(t *testing.T) {
	dir := setupTestConfig(t)
	viper.Set("provider", "mystery")
	viper.Set("resolver", "magic")
	viper.Set("server.port", 70000)
	viper.Set("source.url", filepath.Join(dir, "missing.csv"))
	viper.Set("smtp.host", "smtp.example.com")
	viper.Set("smtp.from", "not-an-address")

	issues := Validate()
	for _, want := range []string{"unknown provider", "resolver must be", "invalid port", "source file not readable", "smtp.from"} {
		if !hasIssue(issues, "error", want) {
			t.Errorf("missing error %q in %+v", want, issues)
		}
	}
}

func TestValidateWarnings(t *testing.T) {
	setupTestConfig(t)
	viper.Set("provider", "ollama")
	viper.Set("server.port", 8787)

	issues := Validate()
	if !hasIssue(issues, "warning", "SMTP") {
		t.Error("expected SMTP warning")
	}
	if !hasIssue(issues, "warning", "no sheet source") {
		t.Error("expected source warning")
	}
}

func hasIssue(issues []ConfigIssue, severity, substr string) bool {
	for _, issue := range issues {
		if issue.Severity == severity && strings.Contains(issue.Message, substr) {
			return true
		}
	}
	return false
}

func TestSetAndGet(t *testing.T) {
	setupTestConfig(t)

	if err := Set("provider", "openai"); err != nil {
		t.Fatal(err)
	}
	if got := Get("provider"); got != "openai" {
		t.Errorf("Get(provider) = %q, want %q", got, "openai")
	}
	info, err := os.Stat(ConfigPath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	if err := ResetConfig(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(ConfigPath()); !os.IsNotExist(err) {
		t.Error("config file still present after reset")
	}
}

func TestConfigPath(t *testing.T) {
	path := ConfigPath()
	if !strings.Contains(path, ".sheetkit") || !strings.HasSuffix(path, "config.yaml") {
		t.Errorf("unexpected path: %q", path)
	}
}

func TestShowConfigMasksKeys(t *testing.T) {
	setupTestConfig(t)
	viper.Set("provider", "openai")
	viper.Set("model", "gpt-4o-mini")
	viper.Set("api_keys.openai", "sk-abcdefghijklmnopqrstuvwxyz")

	out := ShowConfig()
	if !strings.Contains(out, "openai") || !strings.Contains(out, "gpt-4o-mini") {
		t.Errorf("ShowConfig missing values:\n%s", out)
	}
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwxyz") {
		t.Error("ShowConfig leaked the API key")
	}
}

func TestShowYAML(t *testing.T) {
	setupTestConfig(t)
	viper.Set("api_keys.openai", "sk-abcdefghijklmnopqrstuvwxyz")
	viper.Set("server.port", 8787)

	out, err := ShowYAML()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "sk-abcdefghijklmnopqrstuvwxyz") {
		t.Error("ShowYAML leaked the API key")
	}
	if !strings.Contains(out, "server:\n") || !strings.Contains(out, "port: 8787") {
		t.Errorf("ShowYAML not nested:\n%s", out)
	}
}

func TestMask(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"short", "****"},
		{"sk-abcdefghijklmnop", "sk-abc****"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWizardInteractive(t *testing.T) {
	setupTestConfig(t)

	input := strings.NewReader("https://example.com/pub?output=csv\n2\nsk-ant-123\nn\n")
	var out strings.Builder
	if err := Wizard(input, &out); err != nil {
		t.Fatal(err)
	}
	if viper.GetString("provider") != "anthropic" || viper.GetString("api_keys.anthropic") != "sk-ant-123" {
		t.Errorf("provider = %q", viper.GetString("provider"))
	}
	if viper.GetString("source.url") != "https://example.com/pub?output=csv" {
		t.Errorf("source.url = %q", viper.GetString("source.url"))
	}
	if _, err := os.Stat(ConfigPath()); err != nil {
		t.Errorf("wizard did not save config: %v", err)
	}
}

func TestWizardRulesOnly(t *testing.T) {
	setupTestConfig(t)

	if err := Wizard(strings.NewReader("\n4\n\n"), &strings.Builder{}); err != nil {
		t.Fatal(err)
	}
	if viper.GetString("resolver") != ResolverRules {
		t.Errorf("resolver = %q", viper.GetString("resolver"))
	}
}
